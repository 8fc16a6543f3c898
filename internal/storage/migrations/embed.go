package migrations

import "embed"

// FS embeds all migration files, one directory per dialect.
//
//go:embed postgres/*.sql clickhouse/*.sql
var FS embed.FS
