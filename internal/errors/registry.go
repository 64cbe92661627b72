package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (E100-E119)

	"E100": {
		Category:   CategoryConfig,
		Message:    "Cannot read config file",
		Suggestion: "Check the --config path and its permissions",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Invalid config file",
		Suggestion: "Check that the file is valid YAML",
	},
	"E102": {
		Category:   CategoryConfig,
		Message:    "Unknown store driver",
		Suggestion: "Use one of: memory, sqlite, postgres, s3",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Missing store DSN",
		Suggestion: "Set store.dsn, or DATABASE_URL for postgres",
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Missing S3 bucket",
		Suggestion: "Set store.bucket",
	},
	"E105": {
		Category:   CategoryConfig,
		Message:    "Invalid log setting",
		Suggestion: "log.level is one of debug, info, warn, error; log.format is text or json",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Invalid timeout",
		Suggestion: "Durations must be positive, and server.heartbeat shorter than server.read_timeout",
	},
	"E107": {
		Category:   CategoryConfig,
		Message:    "Invalid limit",
		Suggestion: "Sizes and counts must not be negative",
	},

	// Store (E120-E139)

	"E120": {
		Category:   CategoryStore,
		Message:    "Cannot open store",
		Suggestion: "Check that the database or bucket is reachable with the configured credentials",
	},
	"E121": {
		Category:   CategoryStore,
		Message:    "Store migration failed",
		Suggestion: "Check that the database user may create tables, or run with store.migrate: false",
	},

	// Server (E140-E159)

	"E140": {
		Category:   CategoryServer,
		Message:    "Cannot listen on address",
		Suggestion: "Check that the port is free, or change server.address / --addr",
	},
	"E141": {
		Category:   CategoryServer,
		Message:    "Shutdown did not complete in time",
		Suggestion: "Raise persist.shutdown_timeout if the store is slow; unsaved snapshots were dropped",
	},

	// Processes (E160-E179)

	"E160": {
		Category:   CategoryProcess,
		Message:    "Process not found",
		Suggestion: "Check the process id; processes are created on first connection",
	},
	"E161": {
		Category:   CategoryProcess,
		Message:    "Stored snapshot is corrupt",
		Suggestion: "Inspect the row with --json and restore it from a backup",
	},

	// CLI (E180-E199)

	"E180": {
		Category:   CategoryCLI,
		Message:    "Cannot connect to server",
		Suggestion: "Check --url and --token",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
