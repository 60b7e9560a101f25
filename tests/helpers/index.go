// Package helpers provides shared test fixtures.
package helpers

import (
	"testing"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/repository"
)

// NewTestSQLiteIndex returns an in-memory index closed at test cleanup.
func NewTestSQLiteIndex(t *testing.T) *repository.SQLiteIndex {
	t.Helper()

	idx, err := repository.NewSQLiteIndex(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite index: %v", err)
	}

	t.Cleanup(func() {
		_ = idx.Close()
	})

	return idx
}
