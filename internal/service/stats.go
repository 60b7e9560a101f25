package service

import (
	"context"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// Stats is a snapshot of the runtime.
type Stats struct {
	Latency  domain.LatencyStat `json:"latency"`
	Pending  int                `json:"pending_jobs"`
	Sessions int                `json:"sessions"`
	Counts   map[string]int64   `json:"db_counts"`
}

// Stats reports the latency average, the persistence backlog and the index
// row counts. The counts are also logged at debug level.
func (r *Runtime) Stats(ctx context.Context) Stats {
	s := Stats{
		Latency:  r.latency.Stat(),
		Pending:  r.pipeline.Pending(),
		Sessions: r.sessions.Len(),
		Counts:   r.index.Counts(ctx),
	}

	ev := r.log.Debug()
	for table, n := range s.Counts {
		ev = ev.Int64(table, n)
	}
	ev.Int("pending_jobs", s.Pending).Msg("db counts")
	return s
}
