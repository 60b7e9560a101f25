package domain

import "time"

// JobPayload is the kind-specific body of a persistence job.
type JobPayload interface {
	JobKind() JobKind
}

// Job is an immutable unit of background persistence work.
type Job struct {
	ID         string      `json:"id"`
	Kind       JobKind     `json:"kind"`
	SessionID  string      `json:"session_id"`
	Payload    JobPayload  `json:"payload"`
	Artifact   ArtifactKey `json:"artifact"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// DialogSummary records one user question and the agent's answer.
type DialogSummary struct {
	UserQuestion string         `json:"user_question"`
	AgentAnswer  string         `json:"agent_answer"`
	Intent       string         `json:"intent"`
	KeyInfo      map[string]any `json:"key_info"`
}

func (DialogSummary) JobKind() JobKind { return JobKindDialogSummary }

// SearchRecord records one product search and its most relevant results.
type SearchRecord struct {
	Query        string           `json:"query"`
	Filters      map[string]any   `json:"filters"`
	Page         int              `json:"page"`
	Intent       string           `json:"intent"`
	UserQuestion string           `json:"user_question"`
	Meta         SearchMeta       `json:"metadata"`
	TopProducts  []MinimalProduct `json:"important_products"`
	RawCount     int              `json:"raw_count"`
}

func (SearchRecord) JobKind() JobKind { return JobKindSearch }

// ComparisonRecord records a product comparison.
type ComparisonRecord struct {
	ProductIDs []string         `json:"product_ids"`
	Products   []MinimalProduct `json:"products"`
}

func (ComparisonRecord) JobKind() JobKind { return JobKindComparison }

// ExploreRecord records a product detail lookup.
type ExploreRecord struct {
	Input    string           `json:"input"`
	Products []MinimalProduct `json:"products"`
}

func (ExploreRecord) JobKind() JobKind { return JobKindExplore }
