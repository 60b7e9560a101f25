// Package latency tracks a process-wide running average of turn latency.
package latency

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

// DefaultAlpha is the smoothing factor of the moving average.
const DefaultAlpha = 0.3

// Tracker keeps an exponentially weighted moving average of elapsed
// seconds. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	alpha float64
	ewma  float64
	count int64

	gauge     prometheus.Gauge
	histogram prometheus.Observer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCollectors mirrors every update into the given collectors.
func WithCollectors(gauge prometheus.Gauge, histogram prometheus.Observer) Option {
	return func(t *Tracker) {
		t.gauge = gauge
		t.histogram = histogram
	}
}

// NewTracker creates a tracker. Alpha outside (0, 1] uses DefaultAlpha.
func NewTracker(alpha float64, opts ...Option) *Tracker {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	t := &Tracker{alpha: alpha}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update folds one sample into the average. Negative samples count as zero.
func (t *Tracker) Update(elapsedSeconds float64) {
	elapsedSeconds = max(0, elapsedSeconds)

	t.mu.Lock()
	if t.count == 0 {
		t.ewma = elapsedSeconds
	} else {
		t.ewma = t.alpha*elapsedSeconds + (1-t.alpha)*t.ewma
	}
	t.count++
	ewma := t.ewma
	t.mu.Unlock()

	if t.gauge != nil {
		t.gauge.Set(ewma)
	}
	if t.histogram != nil {
		t.histogram.Observe(elapsedSeconds)
	}
}

// Observe records an elapsed duration.
func (t *Tracker) Observe(elapsed time.Duration) {
	t.Update(elapsed.Seconds())
}

// Read returns the average and the number of samples.
func (t *Tracker) Read() (float64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ewma, t.count
}

// Stat returns a snapshot of the statistic.
func (t *Tracker) Stat() domain.LatencyStat {
	ewma, count := t.Read()
	return domain.LatencyStat{EWMA: ewma, Alpha: t.alpha, SampleCount: count}
}
