package storage

// Backends self-register here. Every driver serves the same three record
// sets (facts, aliases, config), so the engine never cares which one
// Manager.Start resolves.
func init() {
	RegisterAdapter(isSQLDB, newSQLAdapter)
	RegisterAdapter(isMongoDB, newMongoAdapter)

	RegisterDriver("sqlite", newSQLDriver("sqlite"))
	RegisterDriver("postgres", newSQLDriver("postgres"))
	RegisterDriver("mongodb", newMongoDriver)
}
