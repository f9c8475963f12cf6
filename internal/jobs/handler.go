package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/internal/pipeline"
	"github.com/dvloznov/statement-scrubber/internal/statement"
)

// Analyzer is the part of pipeline.Analyzer the job handler needs.
type Analyzer interface {
	AnalyzeFromGCS(ctx context.Context, gcsURI, password string) (*pipeline.Result, error)
}

// permanentCauses fail a job immediately: retrying cannot change the outcome.
var permanentCauses = []error{
	statement.ErrPasswordRequired,
	statement.ErrIncorrectPassword,
	statement.ErrInvalidPDF,
	statement.ErrNoText,
	pipeline.ErrMissingAPIKey,
	pipeline.ErrNoInput,
}

// NewAnalyzeHandler returns a JobHandler that runs AnalyzeStatementJobs
// through the analyzer and stores the masked records on the job.
func NewAnalyzeHandler(analyzer Analyzer) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*AnalyzeStatementJob)
		if !ok {
			return Permanent(fmt.Errorf("unsupported job type %s", job.GetType()))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Int("attempt", j.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		res, err := analyzer.AnalyzeFromGCS(ctx, j.GCSURI, j.Password)
		if err != nil {
			for _, cause := range permanentCauses {
				if errors.Is(err, cause) {
					return Permanent(err)
				}
			}
			return err
		}

		j.RunID = res.RunID
		j.Records = res.Records
		report := res.Report
		j.Report = &report
		log.Info().Int("records", len(res.Records)).Msg("Analyze job finished")
		return nil
	}
}
