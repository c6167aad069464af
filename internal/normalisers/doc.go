// Package normalisers converts source files into markdown documents.
// Each sub-package handles one family of formats and keeps heading
// structure as "#" markers for the chunker.
//
// The Registry picks a normaliser by file extension; when several claim
// an extension the highest priority wins.
package normalisers
