// Package contextwindow keeps the conversation history sent to the model
// inside a token budget without splitting invocations.
package contextwindow

import (
	"github.com/rs/zerolog"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/tokens"
)

// TruncationMarker is appended to text parts cut at MaxPartChars.
const TruncationMarker = "…"

// Config bounds the trimmed history.
type Config struct {
	// MaxInvocations keeps only the most recent invocations; <= 0 keeps all.
	MaxInvocations int
	// TokenBudget is a soft ceiling on the estimated token total.
	TokenBudget int
	// MaxPartChars caps the length of each text part, in characters.
	MaxPartChars int
}

// DefaultConfig returns the limits used before each model call.
func DefaultConfig() Config {
	return Config{MaxInvocations: 5, TokenBudget: 3000, MaxPartChars: 2000}
}

// Result describes one trim.
type Result struct {
	Turns       []domain.Turn
	Invocations int
	Kept        int
	Evicted     int
	Tokens      int
	OverBudget  bool
}

// Trimmer shrinks conversation histories. It is safe for concurrent use.
type Trimmer struct {
	cfg Config
	log zerolog.Logger
}

// NewTrimmer creates a trimmer with the given limits.
func NewTrimmer(cfg Config, log zerolog.Logger) *Trimmer {
	return &Trimmer{cfg: cfg, log: log}
}

// Config returns the trimmer's limits.
func (t *Trimmer) Config() Config {
	return t.cfg
}

// Trim returns the trimmed history.
func (t *Trimmer) Trim(turns []domain.Turn) []domain.Turn {
	return t.TrimWithResult(turns).Turns
}

// TrimWithResult trims turns and reports what was dropped. The input is
// never modified. The most recent invocation is always kept, so the result
// can exceed the budget when that invocation alone does.
func (t *Trimmer) TrimWithResult(turns []domain.Turn) Result {
	if len(turns) == 0 {
		return Result{Turns: turns}
	}

	groups := Partition(turns)
	res := Result{Invocations: len(groups)}

	if n := t.cfg.MaxInvocations; n > 0 && len(groups) > n {
		groups = groups[len(groups)-n:]
	}
	for i, g := range groups {
		groups[i] = t.shrink(g)
	}

	costs := make([]int, len(groups))
	total := 0
	for i, g := range groups {
		costs[i] = invocationTokens(g)
		total += costs[i]
	}

	for total > t.cfg.TokenBudget && len(groups) > 1 {
		total -= costs[0]
		groups, costs = groups[1:], costs[1:]
		res.Evicted++
	}

	res.Kept = len(groups)
	res.Tokens = total
	res.Turns = flatten(groups)

	if total > t.cfg.TokenBudget {
		res.OverBudget = true
		t.log.Warn().
			Str("kind", string(domain.ErrorKindExhaustedBudget)).
			Int("tokens", total).
			Int("budget", t.cfg.TokenBudget).
			Msg("latest invocation exceeds token budget, sending it anyway")
	}

	t.log.Debug().
		Int("invocations", res.Invocations).
		Int("kept", res.Kept).
		Int("evicted", res.Evicted).
		Int("tokens", res.Tokens).
		Msg("context trimmed")

	return res
}

// Partition groups turns into invocations. A group closes on every agent
// turn; trailing turns without an agent reply form the last group.
func Partition(turns []domain.Turn) []domain.Invocation {
	var groups []domain.Invocation
	var current domain.Invocation
	for _, turn := range turns {
		current = append(current, turn)
		if turn.Role == domain.RoleAgent {
			groups = append(groups, current)
			current = nil
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// EstimateTokens sums the estimated tokens of every text part in turns.
func EstimateTokens(turns []domain.Turn) int {
	total := 0
	for _, turn := range turns {
		for _, p := range turn.Parts {
			if p.IsText() {
				total += tokens.Estimate(p.Text)
			}
		}
	}
	return total
}

// shrink copies an invocation keeping only text parts, each capped at
// MaxPartChars characters.
func (t *Trimmer) shrink(inv domain.Invocation) domain.Invocation {
	out := make(domain.Invocation, len(inv))
	for i, turn := range inv {
		parts := make([]domain.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			if !p.IsText() {
				continue
			}
			parts = append(parts, domain.TextPart(truncate(p.Text, t.cfg.MaxPartChars)))
		}
		out[i] = domain.Turn{Role: turn.Role, Parts: parts}
	}
	return out
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + TruncationMarker
}

func invocationTokens(inv domain.Invocation) int {
	return EstimateTokens(inv)
}

func flatten(groups []domain.Invocation) []domain.Turn {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]domain.Turn, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
