package chunker

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes chunk IDs so they never collide with other UUIDv5 users.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/docqa/chunk"))

// ChunkID returns the stable ID of the chunk at position within the
// document identified by docID. Re-chunking an unchanged document yields
// the same IDs; documents that share a file name in different folders do not.
func ChunkID(docID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(position))).String()
}
