package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
)

// FileArtifact is a single source file of the app's generated project.
// The set handed to the orchestrator is an immutable snapshot taken at
// orchestration start; nothing re-reads files mid-deployment.
type FileArtifact struct {
	Path        string `json:"path" validate:"required"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
}

// New builds a FileArtifact with its content hash and size filled in.
func New(path, content string) FileArtifact {
	sum := sha256.Sum256([]byte(content))
	return FileArtifact{
		Path:        path,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(content)),
	}
}

// Normalize fills in hash and size for artifacts received over the wire
// where only path and content are supplied.
func Normalize(files []FileArtifact) []FileArtifact {
	out := make([]FileArtifact, len(files))
	for i, f := range files {
		if f.ContentHash == "" || f.SizeBytes == 0 {
			out[i] = New(f.Path, f.Content)
		} else {
			out[i] = f
		}
	}
	return out
}

// TotalSize sums the byte sizes of all artifacts.
func TotalSize(files []FileArtifact) int64 {
	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}
	return total
}
