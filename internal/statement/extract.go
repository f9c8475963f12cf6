// Package statement turns an uploaded statement file into plain text.
// PDFs are decrypted (when a password is supplied) and their pages joined;
// any other upload is read as UTF-8 text.
package statement

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultMinTextChars is the shortest PDF text accepted as a real statement.
const DefaultMinTextChars = 50

var (
	// ErrPasswordRequired is returned for an encrypted PDF uploaded without a password.
	ErrPasswordRequired = errors.New("PDF is password protected")

	// ErrIncorrectPassword is returned when no password variant opens the PDF.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrInvalidPDF is returned for files that cannot be parsed as PDF.
	ErrInvalidPDF = errors.New("invalid PDF")

	// ErrNoText is returned when a PDF yields too little text, which usually
	// means a scanned or image-only statement.
	ErrNoText = errors.New("could not extract text from PDF, it might be scanned or image-based")
)

// Extractor pulls text out of uploaded statements.
type Extractor struct {
	// MinTextChars is the minimum number of characters a PDF must yield.
	MinTextChars int
}

// ExtractText extracts text with the default minimum length.
func ExtractText(data []byte, filename, contentType, password string) (string, error) {
	e := Extractor{MinTextChars: DefaultMinTextChars}
	return e.Extract(data, filename, contentType, password)
}

// IsPDF reports whether an upload should be treated as a PDF, judged by its
// file extension or declared content type.
func IsPDF(filename, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return true
	}
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/pdf")
}

// Extract returns the text content of an upload. Non-PDF uploads are decoded
// as UTF-8 with invalid bytes dropped.
func (e Extractor) Extract(data []byte, filename, contentType, password string) (string, error) {
	if !IsPDF(filename, contentType) {
		return strings.ToValidUTF8(string(data), ""), nil
	}

	text, err := extractPDF(data, password)
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(text) < e.MinTextChars {
		return "", ErrNoText
	}
	return text, nil
}

// PasswordCandidates lists the passwords tried in order: as given, trimmed,
// then trimmed and upper-cased. Duplicates and empty values are dropped.
func PasswordCandidates(password string) []string {
	trimmed := strings.TrimSpace(password)
	var out []string
	for _, p := range []string{password, trimmed, strings.ToUpper(trimmed)} {
		if p == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func extractPDF(data []byte, password string) (text string, err error) {
	// The PDF reader panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := openPDF(data, password)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrInvalidPDF, i, err)
		}
		if pageText == "" {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func openPDF(data []byte, password string) (*pdf.Reader, error) {
	candidates := PasswordCandidates(password)
	next := 0
	pw := func() string {
		if next >= len(candidates) {
			return ""
		}
		p := candidates[next]
		next++
		return p
	}

	r, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), pw)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, pdf.ErrInvalidPassword) {
		if len(candidates) == 0 {
			return nil, ErrPasswordRequired
		}
		return nil, ErrIncorrectPassword
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
}
