// Package fileid derives document IDs for contracts read from files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const (
	prefix = "file-"
	idLen  = 32
)

// DocumentID returns a stable document ID for the file at absolutePath with the given
// content hash. Re-reading an unchanged file yields the same ID; editing the file in
// place yields a new one, so the edit becomes a new document (and version) rather than
// a mutation of immutable chunks.
func DocumentID(absolutePath, contentHash string) string {
	h := sha256.New()
	h.Write([]byte(filepath.Clean(absolutePath)))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	return prefix + hex.EncodeToString(h.Sum(nil))[:idLen]
}
