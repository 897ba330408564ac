package errors

import "slices"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (D001-D019)
	// ============================================

	"D001": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The configuration file passed with --config does not exist or cannot be read.",
	},
	"D002": {
		Category: CategoryConfig,
		Message:  "Config file parse error",
		Detail:   "The configuration file is not valid for its format.",
	},
	"D003": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Configuration files must end in .json, .yaml, .yml or .toml.",
	},
	"D004": {
		Category: CategoryConfig,
		Message:  "Invalid root id",
		Detail:   "The root node id must be between 1 and 2147483647.",
	},
	"D005": {
		Category: CategoryConfig,
		Message:  "Invalid root size",
		Detail:   "Root width and height must be finite and non-negative.",
	},
	"D006": {
		Category: CategoryConfig,
		Message:  "Invalid server address",
		Detail:   "The server address must have the form host:port or :port.",
	},
	"D007": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "The log level must be one of debug, info, warn or error.",
	},
	"D008": {
		Category: CategoryConfig,
		Message:  "Invalid log format",
		Detail:   "The log format must be text or json.",
	},
	"D009": {
		Category: CategoryConfig,
		Message:  "Invalid snapshot store",
		Detail:   "Configure either snapshot.bucket for S3 or snapshot.dir for local files, not both.",
	},
	"D010": {
		Category: CategoryConfig,
		Message:  "Invalid timeout",
		Detail:   "Timeouts must be non-negative durations such as 10s or 1m.",
	},

	// ============================================
	// Script Errors (D020-D039)
	// ============================================

	"D020": {
		Category: CategoryScript,
		Message:  "Script file not found",
		Detail:   "The replay script does not exist or cannot be read.",
	},
	"D021": {
		Category: CategoryScript,
		Message:  "Script parse error",
		Detail:   "The replay script is not valid YAML or does not match the script schema.",
	},
	"D022": {
		Category: CategoryScript,
		Message:  "Unknown script operation",
		Detail:   "Script steps support create, update, move, delete, listen, unlisten, event, size, layout and call.",
	},
	"D023": {
		Category: CategoryScript,
		Message:  "Script step rejected",
		Detail:   "The manager rejected a script step, usually because it has been closed.",
	},
	"D024": {
		Category: CategoryScript,
		Message:  "Invalid script step",
		Detail:   "A script step is missing a required field.",
	},

	// ============================================
	// Runtime Errors (D040-D059)
	// ============================================

	"D040": {
		Category: CategoryRuntime,
		Message:  "Manager failed to start",
		Detail:   "The manager's task runner could not be started.",
	},
	"D041": {
		Category: CategoryRuntime,
		Message:  "Server failed",
		Detail:   "The HTTP server stopped with an error. Check that the address is free.",
	},

	// ============================================
	// Storage Errors (D060-D079)
	// ============================================

	"D060": {
		Category: CategoryStorage,
		Message:  "Snapshot export failed",
		Detail:   "The tree snapshot could not be written to the snapshot store.",
	},
	"D061": {
		Category: CategoryStorage,
		Message:  "Snapshot store not configured",
		Detail:   "Set snapshot.bucket or snapshot.dir in the configuration, or pass --bucket or --dir.",
	},

	// ============================================
	// CLI Errors (D080-D099)
	// ============================================

	"D080": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command was called with missing or extra arguments.",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	slices.Sort(codes)
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
