// Package artifact writes JSON documents to a file store.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

const maxNameLen = 120

// Writer stores documents by key. Write errors are returned, never panicked.
type Writer interface {
	Location(key domain.ArtifactKey) string
	Write(ctx context.Context, key domain.ArtifactKey, document any) (string, error)
}

// FileWriter writes indented JSON files under a base directory.
type FileWriter struct {
	baseDir string
}

// NewFileWriter creates a writer rooted at baseDir. The directory is created
// on first write.
func NewFileWriter(baseDir string) *FileWriter {
	return &FileWriter{baseDir: baseDir}
}

// NewKey names a new document of category for sessionID. The name embeds the
// unix time and a short random suffix so that documents written within the
// same second do not collide.
func NewKey(category, sessionID string, at time.Time) domain.ArtifactKey {
	category = Sanitize(category)
	sessionID = Sanitize(sessionID)
	name := fmt.Sprintf("%s__%s__%d_%s.json", category, sessionID, at.Unix(), uuid.New().String()[:8])
	return domain.ArtifactKey{Category: category, SessionID: sessionID, Name: name}
}

// Location returns where key is (or will be) stored.
func (w *FileWriter) Location(key domain.ArtifactKey) string {
	return filepath.Join(w.baseDir, key.Name)
}

// Write serializes document to the key's location and returns it.
func (w *FileWriter) Write(ctx context.Context, key domain.ArtifactKey, document any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.TransientIO("write artifact", err)
	}
	if key.IsZero() {
		return "", domain.TransientIO("write artifact", fmt.Errorf("empty artifact key"))
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", domain.TransientIO("encode artifact", err)
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return "", domain.TransientIO("create artifact dir", err)
	}

	path := w.Location(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", domain.TransientIO("write artifact", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", domain.TransientIO("write artifact", err)
	}
	return path, nil
}

// Sanitize keeps ASCII letters, digits and "-_." and replaces anything else
// with "_". The result is at most 120 bytes; empty input becomes "artifact".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	out := b.String()
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" {
		return "artifact"
	}
	return out
}
