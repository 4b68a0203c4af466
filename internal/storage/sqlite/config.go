package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:noaat.db?cache=shared"
	//   ":memory:"
	DSN string

	// BatchSize bounds the rows inserted per prepared-statement batch.
	BatchSize int
}
