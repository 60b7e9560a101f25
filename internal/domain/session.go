package domain

import "time"

const (
	ArtifactRefType      = "artifact"
	ArtifactMimeTypeJSON = "application/json"
)

// ArtifactRef points at a durably written document. It never owns the document.
type ArtifactRef struct {
	Type      string    `json:"type"`
	MimeType  string    `json:"mime_type"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// NewArtifactRef creates a JSON artifact reference for path.
func NewArtifactRef(path string, at time.Time) ArtifactRef {
	return ArtifactRef{
		Type:      ArtifactRefType,
		MimeType:  ArtifactMimeTypeJSON,
		Path:      path,
		CreatedAt: at,
	}
}

// ArtifactKey names an artifact document before it is written.
type ArtifactKey struct {
	Category  string `json:"category"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

// IsZero reports whether the key names nothing.
func (k ArtifactKey) IsZero() bool {
	return k.Name == ""
}

// LatencyStat is a snapshot of the process-wide latency statistic.
type LatencyStat struct {
	EWMA        float64 `json:"ewma_seconds"`
	Alpha       float64 `json:"alpha"`
	SampleCount int64   `json:"sample_count"`
}
