// Package fileid provides deterministic identifiers for source documents and their chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

const prefix = "doc:"

// chunkNamespace scopes chunk UUIDs so they never collide with other v5 names.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hyperjump.tech/docqa/chunk"))

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkID returns a name-based UUID for the chunk at index within docID, so rebuilding
// the same document with the same chunking yields the same chunk IDs.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(index))).String()
}
