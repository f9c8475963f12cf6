// Package migrations embeds the BigQuery schema migrations applied by
// cmd/migrate.
package migrations

import "embed"

// BigQuery holds the files under bigquery/, named NNNN_description.sql.
//
//go:embed bigquery/*.sql
var BigQuery embed.FS
