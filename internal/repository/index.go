// Package repository provides the relational index of session activity.
package repository

import (
	"context"
	"time"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Tables lists the append-only tables of the index.
var Tables = []string{"artifacts", "dialogs", "searches", "comparisons", "explores"}

// ArtifactRow indexes one written artifact document.
type ArtifactRow struct {
	SessionID string
	Category  string
	Path      string
	MimeType  string
	Meta      map[string]any
	CreatedAt time.Time
}

// Index defines the append-only write contract of the relational index.
// There are no update or delete operations.
type Index interface {
	// Artifact operations
	InsertArtifact(ctx context.Context, row ArtifactRow) error

	// Event operations
	InsertDialog(ctx context.Context, sessionID string, d domain.DialogSummary, at time.Time) error
	InsertSearch(ctx context.Context, sessionID string, s domain.SearchRecord, at time.Time) error
	InsertComparison(ctx context.Context, sessionID string, c domain.ComparisonRecord, at time.Time) error
	InsertExplore(ctx context.Context, sessionID string, e domain.ExploreRecord, at time.Time) error

	// Stats operations
	Counts(ctx context.Context) map[string]int64

	// Lifecycle
	Close() error
}
