package migrations

import "embed"

// PostgresFS embeds the Postgres schema migrations, applied in lexical
// order at startup.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the ClickHouse telemetry schema migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
