package storage

var sqliteMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS lore_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lore_fact (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			upvotes INTEGER NOT NULL DEFAULT 0,
			downvotes INTEGER NOT NULL DEFAULT 0,
			flag_count INTEGER NOT NULL DEFAULT 0,
			visibility TEXT NOT NULL DEFAULT 'public',
			date_created TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lore_fact_topic ON lore_fact (topic)`,
		`CREATE TABLE IF NOT EXISTS lore_alias (
			"trigger" TEXT PRIMARY KEY,
			replacement TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lore_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
}

// Postgres keeps embeddings in a pgvector column; the extension must be
// installable by the connecting role.
var postgresMigrations = map[int][]string{
	1: {
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS lore_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lore_fact (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector,
			upvotes BIGINT NOT NULL DEFAULT 0,
			downvotes BIGINT NOT NULL DEFAULT 0,
			flag_count BIGINT NOT NULL DEFAULT 0,
			visibility TEXT NOT NULL DEFAULT 'public',
			date_created TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lore_fact_topic ON lore_fact (topic)`,
		`CREATE TABLE IF NOT EXISTS lore_alias (
			"trigger" TEXT PRIMARY KEY,
			replacement TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS lore_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
}
