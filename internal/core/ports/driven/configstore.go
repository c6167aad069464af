package driven

// ConfigStore is a dotted-key view over the config file
// (e.g. "embedding.provider" reads [embedding] provider).
// Typed getters return the zero value for missing or mistyped keys.
type ConfigStore interface {
	// Get returns the raw value and whether the key is set.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool

	// GetStringSlice also accepts a comma separated string.
	GetStringSlice(key string) []string

	// Set stores a value and persists the file.
	Set(key string, value any) error

	// Save writes the current values to disk.
	Save() error

	// Load re-reads the file. A missing file is an empty config.
	Load() error

	// Path returns the config file location.
	Path() string
}
