package driven

// PromptStore serves answer prompt templates by name.
type PromptStore interface {
	// Load returns the template for name. Templates must contain both
	// placeholders below.
	Load(name string) (string, error)

	// Reload drops cached templates so edits are picked up.
	Reload() error
}

// Placeholders substituted into answer prompt templates.
const (
	PlaceholderContext  = "{context}"
	PlaceholderQuestion = "{question}"
)
