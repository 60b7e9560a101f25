// Package service is the entry point used by the orchestrator and the tool
// adapters: it trims history before model calls, shapes tool replies, keeps
// per-session state and hands activity to the persistence pipeline.
package service

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/artifact"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/config"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/contextwindow"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/latency"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/persist"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/repository"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/sessionstate"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/shaper"
)

// anonymousSession is used when a caller has no session id.
const anonymousSession = "unknown"

// Runtime bundles the runtime support components behind the calls made by
// the orchestrator and the tool adapters. It is safe for concurrent use.
type Runtime struct {
	trimmer   *contextwindow.Trimmer
	shaper    *shaper.Shaper
	sessions  *sessionstate.Store
	pipeline  *persist.Pipeline
	latency   *latency.Tracker
	artifacts artifact.Writer
	index     repository.Index
	metrics   *metrics.Metrics
	log       zerolog.Logger
	now       func() time.Time

	// One turn at a time per session; the state itself is unsynchronized.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a runtime. Queued activity goes to pipeline; artifacts and
// index are only read, for artifact locations and row counts. A nil m gets a
// fresh registry.
func New(cfg *config.Config, pipeline *persist.Pipeline, artifacts artifact.Writer, index repository.Index, m *metrics.Metrics, log zerolog.Logger) *Runtime {
	if m == nil {
		m = metrics.New()
	}
	return &Runtime{
		trimmer: contextwindow.NewTrimmer(contextwindow.Config{
			MaxInvocations: cfg.Context.MaxInvocations,
			TokenBudget:    cfg.Context.TokenBudget,
			MaxPartChars:   cfg.Context.MaxPartChars,
		}, log.With().Str("component", "trimmer").Logger()),
		shaper: shaper.New(shaper.Config{
			MaxItems:        cfg.Shaper.MaxItems,
			MaxOutputTokens: cfg.Shaper.MaxOutputTokens,
		}, log.With().Str("component", "shaper").Logger()),
		sessions:  sessionstate.NewStore(),
		pipeline:  pipeline,
		latency:   latency.NewTracker(cfg.Latency.Alpha, latency.WithCollectors(m.LatencyEWMA, m.TurnLatency)),
		artifacts: artifacts,
		index:     index,
		metrics:   m,
		log:       log,
		now:       time.Now,
		locks:     map[string]*sync.Mutex{},
	}
}

// withState runs fn with exclusive access to the state of sessionID.
func (r *Runtime) withState(sessionID string, fn func(st *sessionstate.State)) {
	r.locksMu.Lock()
	mu, ok := r.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[sessionID] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	fn(r.sessions.Get(sessionID))
}

// Forget drops the state of sessionID once its turn in flight, if any, is
// done. Sessions otherwise live for the whole process. A later call for the
// same id starts from a fresh state.
func (r *Runtime) Forget(sessionID string) {
	r.locksMu.Lock()
	mu, ok := r.locks[sessionID]
	r.locksMu.Unlock()
	if ok {
		// Wait for a turn in flight on this session.
		mu.Lock()
		defer mu.Unlock()
	}

	r.sessions.Delete(sessionID)

	r.locksMu.Lock()
	if r.locks[sessionID] == mu {
		delete(r.locks, sessionID)
	}
	r.locksMu.Unlock()
}

// State returns a copy of the state of sessionID, creating it on first use.
func (r *Runtime) State(sessionID string) (sessionstate.Snapshot, error) {
	if sessionID == "" {
		return sessionstate.Snapshot{}, domain.ErrEmptySessionID
	}
	var snap sessionstate.Snapshot
	r.withState(sessionID, func(st *sessionstate.State) { snap = st.Snapshot() })
	return snap, nil
}

// enqueue hands payload to the pipeline under a pre-planned artifact key and
// records a reference to that artifact in the session. The reference is
// recorded before the document exists and may never be backed by one.
func (r *Runtime) enqueue(st *sessionstate.State, payload domain.JobPayload) domain.Job {
	job := persist.NewJob(st.SessionID(), payload)
	job.EnqueuedAt = r.now()
	job.Artifact = artifact.NewKey(job.Kind.Category(), job.SessionID, job.EnqueuedAt)

	st.AddArtifactRef(job.Artifact.Category, domain.NewArtifactRef(r.artifacts.Location(job.Artifact), job.EnqueuedAt))
	r.pipeline.Enqueue(job)
	return job
}

func (r *Runtime) observe(out shaper.Shaped) shaper.Shaped {
	if out.Reduced {
		r.metrics.ShapedReductions.WithLabelValues(string(out.Payload.Type)).Inc()
	}
	return out
}

func sessionKey(sessionID string) string {
	if sessionID == "" {
		return anonymousSession
	}
	return sessionID
}
