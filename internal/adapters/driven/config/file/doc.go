// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable answer prompt templates
//   - StagingStore: converted markdown documents with YAML metadata sidecars
package file
