package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/artifact"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/policy"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/repository"
)

const (
	defaultIdleInterval = 100 * time.Millisecond
	defaultJobTimeout   = 5 * time.Second
	unknownSession      = "unknown"
)

// Outcome is the result of processing one job.
type Outcome string

const (
	OutcomeStored  Outcome = "stored"
	OutcomePartial Outcome = "partial"
	OutcomeDropped Outcome = "dropped"
)

// Decider decides how to react to a failed step.
type Decider interface {
	Evaluate(ctx context.Context, f policy.Failure) (policy.Decision, error)
}

// Pipeline owns the persistence queue and its single background worker.
type Pipeline struct {
	queue     *Queue
	artifacts artifact.Writer
	index     repository.Index
	decider   Decider
	log       zerolog.Logger
	metrics   *metrics.Metrics

	idle       time.Duration
	jobTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIdleInterval sets how long the worker sleeps on an empty queue.
func WithIdleInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.idle = d
		}
	}
}

// WithJobTimeout bounds the writes of a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.jobTimeout = d
		}
	}
}

// WithMetrics records queue and job metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline writing documents to artifacts and rows to
// index. The worker does not run until Start.
func NewPipeline(artifacts artifact.Writer, index repository.Index, decider Decider, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		queue:      NewQueue(),
		artifacts:  artifacts,
		index:      index,
		decider:    decider,
		log:        log,
		idle:       defaultIdleInterval,
		jobTimeout: defaultJobTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewJob creates a job for sessionID carrying payload.
func NewJob(sessionID string, payload domain.JobPayload) domain.Job {
	job := domain.Job{
		ID:         "job_" + uuid.New().String()[:8],
		SessionID:  sessionID,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	if payload != nil {
		job.Kind = payload.JobKind()
	}
	if job.SessionID == "" {
		job.SessionID = unknownSession
	}
	return job
}

// Enqueue hands job to the worker and returns immediately. It never fails;
// a job that cannot be processed is logged and dropped by the worker.
func (p *Pipeline) Enqueue(job domain.Job) {
	if job.ID == "" {
		job.ID = "job_" + uuid.New().String()[:8]
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = p.now()
	}
	if job.SessionID == "" {
		job.SessionID = unknownSession
	}
	if job.Kind == "" && job.Payload != nil {
		job.Kind = job.Payload.JobKind()
	}
	if job.Artifact.IsZero() {
		job.Artifact = artifact.NewKey(job.Kind.Category(), job.SessionID, job.EnqueuedAt)
	}

	depth := p.queue.Push(job)
	if p.metrics != nil {
		p.metrics.JobsEnqueued.WithLabelValues(string(job.Kind)).Inc()
		p.metrics.QueueDepth.Set(float64(depth))
	}
}

// Pending returns the number of jobs not yet picked up by the worker.
func (p *Pipeline) Pending() int {
	return p.queue.Len()
}

// Start launches the worker. Only the first call has an effect; it reports
// whether this call started the worker.
func (p *Pipeline) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	p.wg.Go(func() { p.run(runCtx) })

	p.log.Info().Dur("idle_interval", p.idle).Msg("background persist worker started")
	return true
}

// Stop stops the worker and waits for the job in flight. Queued jobs that
// were not picked up are lost.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()

	if n := p.queue.Len(); n > 0 {
		p.log.Warn().Int("pending", n).Msg("persist worker stopped with undrained jobs")
	}
}

func (p *Pipeline) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, ok := p.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.queue.Ready():
			case <-time.After(p.idle):
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(p.queue.Len()))
		}
		p.handle(ctx, job)
	}
}

// handle processes one job. A job in flight is allowed to finish even when
// the worker is being stopped.
func (p *Pipeline) handle(ctx context.Context, job domain.Job) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
	defer cancel()

	outcome := OutcomeDropped
	var pc panics.Catcher
	pc.Try(func() { outcome = p.process(jobCtx, job) })
	if r := pc.Recovered(); r != nil {
		p.log.Error().
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Str("panic", fmt.Sprint(r.Value)).
			Msg("persist job panicked")
		outcome = OutcomeDropped
	}

	if p.metrics != nil {
		p.metrics.JobsProcessed.WithLabelValues(string(job.Kind), string(outcome)).Inc()
	}
	p.log.Debug().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("session_id", job.SessionID).
		Str("outcome", string(outcome)).
		Dur("queued_for", p.now().Sub(job.EnqueuedAt)).
		Msg("persist job processed")
}

// process writes the artifact document, then the index rows. A failed write
// ends the job unless the decider says to continue.
func (p *Pipeline) process(ctx context.Context, job domain.Job) Outcome {
	if job.Payload == nil {
		p.fail(ctx, policy.StageEnqueue, job, domain.MalformedInput("process job", domain.ErrUnknownJobKind))
		return OutcomeDropped
	}

	payload := redactPayload(job.Payload)
	at := p.now()
	partial := false

	location, err := p.artifacts.Write(ctx, job.Artifact, document{
		Type:      job.Kind,
		SessionID: job.SessionID,
		JobID:     job.ID,
		CreatedAt: at,
		Payload:   payload,
	})
	if err != nil {
		if !p.fail(ctx, policy.StageArtifact, job, err) {
			return OutcomeDropped
		}
		partial = true
		location = ""
	}

	if location != "" {
		row := repository.ArtifactRow{
			SessionID: job.SessionID,
			Category:  job.Artifact.Category,
			Path:      location,
			MimeType:  domain.ArtifactMimeTypeJSON,
			Meta:      artifactMeta(job),
			CreatedAt: at,
		}
		if err := p.index.InsertArtifact(ctx, row); err != nil {
			if !p.fail(ctx, policy.StageIndex, job, err) {
				return OutcomeDropped
			}
			partial = true
		}
	}

	if err := p.insertEvent(ctx, job.SessionID, payload, at); err != nil {
		p.fail(ctx, policy.StageIndex, job, err)
		return OutcomeDropped
	}

	if partial {
		return OutcomePartial
	}
	return OutcomeStored
}

func (p *Pipeline) insertEvent(ctx context.Context, sessionID string, payload domain.JobPayload, at time.Time) error {
	switch v := payload.(type) {
	case domain.DialogSummary:
		return p.index.InsertDialog(ctx, sessionID, v, at)
	case domain.SearchRecord:
		return p.index.InsertSearch(ctx, sessionID, v, at)
	case domain.ComparisonRecord:
		return p.index.InsertComparison(ctx, sessionID, v, at)
	case domain.ExploreRecord:
		return p.index.InsertExplore(ctx, sessionID, v, at)
	default:
		return domain.MalformedInput("insert event", fmt.Errorf("%w: %T", domain.ErrUnknownJobKind, payload))
	}
}

// fail reports a failed step and returns whether the job should go on.
func (p *Pipeline) fail(ctx context.Context, stage policy.Stage, job domain.Job, err error) bool {
	f := policy.Failure{
		Stage:   stage,
		Kind:    domain.KindOf(err),
		JobKind: job.Kind,
		Error:   err.Error(),
	}
	if f.Kind == "" {
		f.Kind = domain.ErrorKindTransientIO
	}

	d := policy.Decision{Action: policy.ActionDrop, Level: "warn"}
	if p.decider != nil {
		var perr error
		d, perr = p.decider.Evaluate(ctx, f)
		if perr != nil {
			p.log.Warn().Err(perr).Msg("failure policy evaluation failed")
		}
	}

	level, lerr := zerolog.ParseLevel(d.Level)
	if lerr != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	p.log.WithLevel(level).
		Err(err).
		Str("stage", string(stage)).
		Str("error_kind", string(f.Kind)).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("session_id", job.SessionID).
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Msg("persist step failed")

	return d.Action == policy.ActionContinue
}

// document is the artifact body of a job.
type document struct {
	Type      domain.JobKind    `json:"type"`
	SessionID string            `json:"session_id"`
	JobID     string            `json:"job_id"`
	CreatedAt time.Time         `json:"created_at"`
	Payload   domain.JobPayload `json:"payload"`
}

func artifactMeta(job domain.Job) map[string]any {
	meta := map[string]any{"job_id": job.ID}
	switch v := job.Payload.(type) {
	case domain.SearchRecord:
		meta["query"] = v.Query
	case domain.ExploreRecord:
		meta["input"] = v.Input
	case domain.ComparisonRecord:
		meta["product_ids"] = v.ProductIDs
	}
	return meta
}
