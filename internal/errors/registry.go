package errors

// Registered error codes.
const (
	CodeConfigRead      = "E100"
	CodeConfigParse     = "E101"
	CodeInvalidPort     = "E102"
	CodeInvalidStore    = "E103"
	CodeMissingS3Bucket = "E104"
	CodeInvalidLogLevel = "E105"
	CodeInvalidLogFmt   = "E106"
	CodeInvalidFormat   = "E107"
	CodeInvalidSession  = "E108"

	CodeStoreOpen   = "E200"
	CodeSQLiteOpen  = "E201"
	CodeS3Config    = "E202"
	CodeStoreFlush  = "E203"
	CodeStoreRead   = "E204"
	CodeRoomMissing = "E205"

	CodeListen     = "E300"
	CodeServe      = "E301"
	CodeInvalidArg = "E302"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (E100-E199)

	CodeConfigRead: {
		Category: CategoryConfig,
		Message:  "Cannot read config file",
		Detail:   "The configuration file exists but could not be read.",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The configuration file is not valid JSON or has fields of the wrong type.",
	},
	CodeInvalidPort: {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The port must be a number between 1 and 65535.",
	},
	CodeInvalidStore: {
		Category: CategoryConfig,
		Message:  "Invalid store kind",
		Detail:   "The store must be one of file, sqlite, s3 or memory.",
	},
	CodeMissingS3Bucket: {
		Category: CategoryConfig,
		Message:  "Missing S3 bucket",
		Detail:   "The s3 store needs a bucket name.",
	},
	CodeInvalidLogLevel: {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "The log level must be one of debug, info, warn or error.",
	},
	CodeInvalidLogFmt: {
		Category: CategoryConfig,
		Message:  "Invalid log format",
		Detail:   "The log format must be text or json.",
	},
	CodeInvalidFormat: {
		Category: CategoryConfig,
		Message:  "Invalid store format",
		Detail:   "The data file format must be json or yaml.",
	},
	CodeInvalidSession: {
		Category: CategoryConfig,
		Message:  "Invalid session settings",
		Detail:   "Session timeouts and sizes must not be negative.",
	},

	// Room store (E200-E299)

	CodeStoreOpen: {
		Category: CategoryStore,
		Message:  "Cannot open room store",
		Detail:   "The configured storage backend could not be initialized.",
	},
	CodeSQLiteOpen: {
		Category: CategoryStore,
		Message:  "Cannot open SQLite database",
		Detail:   "The SQLite file could not be opened or its schema could not be created.",
	},
	CodeS3Config: {
		Category: CategoryStore,
		Message:  "Cannot configure S3 client",
		Detail:   "AWS configuration could not be loaded from the environment or shared config files.",
	},
	CodeStoreFlush: {
		Category: CategoryStore,
		Message:  "Final flush failed",
		Detail:   "Rooms changed since the last successful write may be lost.",
	},
	CodeStoreRead: {
		Category: CategoryStore,
		Message:  "Cannot read rooms",
		Detail:   "The storage backend returned an error while loading rooms.",
	},
	CodeRoomMissing: {
		Category: CategoryStore,
		Message:  "Room not found",
		Detail:   "No room with this id exists in the store.",
	},

	// Server and CLI (E300-E399)

	CodeListen: {
		Category: CategoryServer,
		Message:  "Cannot listen",
		Detail:   "The server could not bind its address. Another process may be using the port.",
	},
	CodeServe: {
		Category: CategoryServer,
		Message:  "Server stopped with an error",
	},
	CodeInvalidArg: {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
