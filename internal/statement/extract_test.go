package statement

import (
	"errors"
	"reflect"
	"testing"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
		want        bool
	}{
		{"statement.pdf", "", true},
		{"STATEMENT.PDF", "application/octet-stream", true},
		{"upload", "application/pdf", true},
		{"upload", "application/PDF; charset=binary", true},
		{"statement.txt", "text/plain", false},
		{"statement.csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename+"|"+tt.contentType, func(t *testing.T) {
			if got := IsPDF(tt.filename, tt.contentType); got != tt.want {
				t.Errorf("IsPDF(%q, %q) = %v, want %v", tt.filename, tt.contentType, got, tt.want)
			}
		})
	}
}

func TestPasswordCandidates(t *testing.T) {
	tests := []struct {
		password string
		want     []string
	}{
		{"", nil},
		{"   ", []string{"   "}},
		{"abcd1234", []string{"abcd1234", "ABCD1234"}},
		{" abcd1234 ", []string{" abcd1234 ", "abcd1234", "ABCD1234"}},
		{"ABCD1234", []string{"ABCD1234"}},
		{"1234", []string{"1234"}},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			got := PasswordCandidates(tt.password)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PasswordCandidates(%q) = %q, want %q", tt.password, got, tt.want)
			}
		})
	}
}

func TestExtractText_PlainUpload(t *testing.T) {
	data := []byte("15/03/2024  UBER TRIP  245.00\n\xffbroken byte")
	got, err := ExtractText(data, "statement.txt", "text/plain", "")
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	want := "15/03/2024  UBER TRIP  245.00\nbroken byte"
	if got != want {
		t.Errorf("ExtractText() = %q, want %q", got, want)
	}
}

func TestExtractText_ShortPlainUploadAccepted(t *testing.T) {
	got, err := ExtractText([]byte("hi"), "note.txt", "", "")
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if got != "hi" {
		t.Errorf("ExtractText() = %q, want %q", got, "hi")
	}
}

func TestExtractText_InvalidPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("this is not a pdf at all")},
		{"truncated header", []byte("%PDF-1.4\n%garbage without xref")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractText(tt.data, "statement.pdf", "application/pdf", "")
			if !errors.Is(err, ErrInvalidPDF) {
				t.Errorf("ExtractText() error = %v, want ErrInvalidPDF", err)
			}
		})
	}
}
