package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-scrubber/internal/config"
	"github.com/dvloznov/statement-scrubber/internal/logger"
	"github.com/dvloznov/statement-scrubber/migrations"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Pattern to match migration files: 0001_name.sql
var migrationFilePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// migrator applies migrations to one dataset.
type migrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		projectID     = flag.String("project", cfg.ProjectID, "GCP project ID (or set GOOGLE_CLOUD_PROJECT env)")
		datasetID     = flag.String("dataset", cfg.Dataset, "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Path to a migrations directory (default: the embedded migrations)")
		dryRun        = flag.Bool("dry-run", false, "List pending migrations without applying them")
	)
	flag.Parse()

	log := logger.NewWithConfig(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	// Validate required flags
	if *projectID == "" {
		log.Fatal().Msg("-project flag or GOOGLE_CLOUD_PROJECT is required")
	}

	var source fs.FS
	if *migrationsDir != "" {
		source = os.DirFS(*migrationsDir)
	} else {
		source, err = fs.Sub(migrations.BigQuery, "bigquery")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open embedded migrations")
		}
	}

	// Read migration files
	pending, err := loadMigrations(source, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(pending)).Msg("Found migration files")

	// Create BigQuery client
	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{
		client:    client,
		projectID: *projectID,
		datasetID: *datasetID,
		appliedBy: *appliedBy,
	}

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	// Ensure schema_migrations table exists
	if !*dryRun {
		if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure schema_migrations table")
		}
	}

	// Get applied migrations
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get applied migrations")
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo := pendingMigrations(pending, applied, func(mig Migration, am AppliedMigration) {
		log.Warn().
			Int("version", mig.Version).
			Str("name", mig.Name).
			Msg("Applied migration has changed since it was applied")
	})

	// Apply pending migrations
	for _, mig := range todo {
		migLog := log.With().Int("version", mig.Version).Str("name", mig.Name).Logger()
		if *dryRun {
			migLog.Info().Msg("Pending")
			continue
		}

		migLog.Info().Msg("Applying")

		if err := m.execute(ctx, mig.SQL, nil); err != nil {
			migLog.Fatal().Err(err).Msg("Failed to execute migration")
		}
		if err := m.recordMigration(ctx, mig); err != nil {
			migLog.Fatal().Err(err).Msg("Failed to record migration")
		}

		migLog.Info().Msg("Applied")
	}

	switch {
	case len(todo) == 0:
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	case *dryRun:
		log.Info().Int("pending", len(todo)).Msg("Dry run finished")
	default:
		log.Info().Int("applied", len(todo)).Msg("Successfully applied migrations")
	}
}

// parseMigrationFilename extracts the version and name from NNNN_name.sql.
func parseMigrationFilename(filename string) (version int, name string, ok bool) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// loadMigrations reads all migration files at the root of fsys, fills in the
// project and dataset placeholders and returns them ordered by version.
// Files that do not follow the naming pattern are ignored; duplicate
// versions are an error.
func loadMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		// The checksum covers the file as written, so the same migration
		// applied to another project or dataset keeps its checksum.
		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		out = append(out, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	// Sort by version
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// pendingMigrations returns the migrations whose version has not been
// applied. changed is called for applied migrations whose checksum differs.
func pendingMigrations(all []Migration, applied []AppliedMigration, changed func(Migration, AppliedMigration)) []Migration {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var todo []Migration
	for _, mig := range all {
		am, ok := byVersion[mig.Version]
		if !ok {
			todo = append(todo, mig)
			continue
		}
		if am.Checksum != "" && am.Checksum != mig.Checksum && changed != nil {
			changed(mig, am)
		}
	}
	return todo
}

func (m *migrator) table(name string) string {
	return "`" + m.projectID + "." + m.datasetID + "." + name + "`"
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	return m.execute(ctx, `
		CREATE TABLE IF NOT EXISTS `+m.table("schema_migrations")+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, nil)
}

// getAppliedMigrations retrieves the list of already applied migrations
func (m *migrator) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table("schema_migrations") + `
		ORDER BY version ASC
	`)

	it, err := query.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func (m *migrator) recordMigration(ctx context.Context, mig Migration) error {
	return m.execute(ctx, `
		INSERT INTO `+m.table("schema_migrations")+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

// execute runs sql and waits for the job to finish.
func (m *migrator) execute(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
