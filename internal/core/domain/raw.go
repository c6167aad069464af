package domain

// RawDocument represents the opaque bytes of one file found during ingestion.
// It is the input of a normaliser.
type RawDocument struct {
	// URI is the original location of the file.
	URI string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata carries caller-supplied key-value pairs such as doc_type.
	Metadata map[string]string
}
