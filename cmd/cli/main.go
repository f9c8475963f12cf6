package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/statement-scrubber/internal/app"
	bq "github.com/dvloznov/statement-scrubber/internal/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/config"
	"github.com/dvloznov/statement-scrubber/internal/gcsuploader"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/redact"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout carries only command output.
	log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logger.ParseLevel(cfg.LogLevel))

	switch os.Args[1] {
	case "scrub":
		runScrub(log, cfg)
	case "classify":
		runClassify(log, cfg)
	case "mask":
		runMask(log)
	case "analyze":
		runAnalyze(log, cfg)
	case "upload":
		runUpload(log, cfg)
	case "runs":
		runRuns(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Scrubber CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  scrub     Redact PII from statement text (file or stdin)")
	fmt.Println("  classify  Show how each line of a statement is classified")
	fmt.Println("  mask      Mask account numbers in the given values (args or stdin)")
	fmt.Println("  analyze   Extract, scrub and structure a statement into masked records")
	fmt.Println("  upload    Upload a statement file to GCS")
	fmt.Println("  runs      List recent analysis runs from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// openInput returns the named file, or stdin for "" and "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func mustRedactor(log zerolog.Logger, cfg *config.Config, keywordsFile string) *redact.Redactor {
	path := cfg.KeywordsFile
	if keywordsFile != "" {
		path = keywordsFile
	}
	r, err := app.NewRedactor(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load keywords")
	}
	return r
}

func runScrub(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("scrub", flag.ExitOnError)
	inPath := fs.String("file", "", "text file to scrub (default stdin)")
	keywords := fs.String("keywords", "", "YAML keyword file merged over the defaults")
	report := fs.Bool("report", false, "print the redaction report to stderr as JSON")
	fs.Parse(os.Args[2:])

	in, err := openInput(*inPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open input")
	}
	defer in.Close()

	var reportOut io.Writer
	if *report {
		reportOut = os.Stderr
	}
	if err := scrubText(mustRedactor(log, cfg, *keywords), in, os.Stdout, reportOut); err != nil {
		log.Fatal().Err(err).Msg("Scrub failed")
	}
}

// scrubText writes the scrubbed form of in to out. When reportOut is set
// the redaction report is written there as JSON.
func scrubText(r *redact.Redactor, in io.Reader, out, reportOut io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("scrubText: read input: %w", err)
	}

	scrubbed, report := r.ScrubWithReport(string(data))
	if _, err := io.WriteString(out, scrubbed); err != nil {
		return fmt.Errorf("scrubText: write output: %w", err)
	}

	if reportOut != nil {
		enc := json.NewEncoder(reportOut)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("scrubText: write report: %w", err)
		}
	}
	return nil
}

func runClassify(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	inPath := fs.String("file", "", "text file to classify (default stdin)")
	keywords := fs.String("keywords", "", "YAML keyword file merged over the defaults")
	fs.Parse(os.Args[2:])

	in, err := openInput(*inPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open input")
	}
	defer in.Close()

	if err := classifyLines(mustRedactor(log, cfg, *keywords), in, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Classify failed")
	}
}

// classifyLines prints "<kind>\t<scrubbed line>" for every input line. The
// kind is decided on the original line.
func classifyLines(r *redact.Redactor, in io.Reader, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintf(tw, "%s\t%s\n", r.Classify(line), r.Scrub(line))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("classifyLines: read input: %w", err)
	}
	return tw.Flush()
}

func runMask(log zerolog.Logger) {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() > 0 {
		for _, v := range fs.Args() {
			fmt.Println(redact.MaskAccountNumber(v))
		}
		return
	}
	if err := maskLines(os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Mask failed")
	}
}

// maskLines applies MaskAccountNumber to every input line.
func maskLines(in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		w.WriteString(redact.MaskAccountNumber(sc.Text()))
		w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("maskLines: read input: %w", err)
	}
	return w.Flush()
}

func runAnalyze(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "local statement file (PDF or text)")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the statement")
	password := fs.String("password", "", "password for an encrypted PDF")
	timeout := fs.Duration("timeout", 5*time.Minute, "time limit for the analysis")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli analyze (-file PATH | -gcs-uri URI) [-password PW]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	analyzer, err := app.NewAnalyzer(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analyzer")
	}
	defer analyzer.Runs().Close()

	in := pipeline.Input{GCSURI: *gcsURI, Password: *password, Source: pipeline.SourceCLI}
	if *filePath != "" {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read statement")
		}
		in.Data = data
		in.Filename = filepath.Base(*filePath)
	}

	res, err := analyzer.Analyze(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	log.Info().
		Str("run_id", res.RunID).
		Str("model", res.ModelName).
		Int("records", len(res.Records)).
		Int("skipped", res.Skipped).
		Int("redactions", res.Report.Total()).
		Bool("truncated", res.Truncated).
		Msg("Analysis completed")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Records); err != nil {
		log.Fatal().Err(err).Msg("Failed to write records")
	}
}

func runUpload(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.Bucket, "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to statements/YYYY/MM/DD/<uuid>-<filename>)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = gcsuploader.ObjectNameFor("statements", filepath.Base(*filePath), time.Now())
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := gcsuploader.UploadFile(ctx, *bucketName, *objectName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Println(uri)
}

func runRuns(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of runs to list")
	fs.Parse(os.Args[2:])

	if !cfg.BigQueryEnabled() {
		log.Fatal().Msg("GOOGLE_CLOUD_PROJECT is not set; runs are only persisted in BigQuery")
	}

	ctx := logger.WithContext(context.Background(), log)

	repo, err := app.NewRunRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	runs, err := repo.ListRecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}
	printRuns(os.Stdout, runs)
}

// printRuns writes runs as an aligned table.
func printRuns(out io.Writer, runs []*bq.AnalysisRunRow) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSTATUS\tSOURCE\tMODEL\tRECORDS\tREDACTIONS\tERROR")
	for _, r := range runs {
		records, redactions := "-", "-"
		if r.RecordCount.Valid {
			records = fmt.Sprint(r.RecordCount.Int64)
		}
		if r.Redactions.Valid {
			redactions = fmt.Sprint(r.Redactions.Int64)
		}
		model := "-"
		if r.ModelName.Valid {
			model = r.ModelName.StringVal
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID,
			r.StartedTS.Format(time.RFC3339),
			r.Status,
			r.Source,
			model,
			records,
			redactions,
			r.ErrorMessage,
		)
	}
	tw.Flush()
}
