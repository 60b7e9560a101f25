package contextwindow

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

func turn(role domain.Role, texts ...string) domain.Turn {
	parts := make([]domain.Part, 0, len(texts))
	for _, s := range texts {
		parts = append(parts, domain.TextPart(s))
	}
	return domain.Turn{Role: role, Parts: parts}
}

// history builds n invocations of user -> tool -> agent, each text part of size chars.
func history(n, size int) []domain.Turn {
	var turns []domain.Turn
	for i := 0; i < n; i++ {
		text := strings.Repeat(string(rune('a'+i)), size)
		turns = append(turns,
			turn(domain.RoleUser, text),
			turn(domain.RoleTool, text),
			turn(domain.RoleAgent, text),
		)
	}
	return turns
}

func TestPartition(t *testing.T) {
	turns := []domain.Turn{
		turn(domain.RoleUser, "q1"),
		turn(domain.RoleAgent, "a1"),
		turn(domain.RoleUser, "q2"),
		turn(domain.RoleTool, "t2"),
		turn(domain.RoleAgent, "a2"),
		turn(domain.RoleUser, "q3"),
	}

	groups := Partition(turns)

	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 3)
	assert.Len(t, groups[2], 1, "trailing turns without agent reply form their own invocation")
	assert.Equal(t, domain.RoleUser, groups[2][0].Role)
}

func TestTrimKeepsAtMostMaxInvocations(t *testing.T) {
	turns := history(8, 4)
	for n := 1; n <= 8; n++ {
		tr := NewTrimmer(Config{MaxInvocations: n, TokenBudget: 100000, MaxPartChars: 2000}, zerolog.Nop())
		out := tr.Trim(turns)

		groups := Partition(out)
		assert.LessOrEqual(t, len(groups), n)
		// every kept invocation is whole: user, tool, agent
		for _, g := range groups {
			require.Len(t, g, 3)
			assert.Equal(t, domain.RoleUser, g[0].Role)
			assert.Equal(t, domain.RoleAgent, g[2].Role)
		}
		// kept invocations are the most recent ones
		assert.Equal(t, turns[len(turns)-len(out):], out)
	}
}

func TestTrimNonPositiveMaxInvocationsKeepsAll(t *testing.T) {
	turns := history(7, 4)
	tr := NewTrimmer(Config{MaxInvocations: 0, TokenBudget: 100000, MaxPartChars: 2000}, zerolog.Nop())

	assert.Equal(t, turns, tr.Trim(turns))
}

func TestTrimWithinBudgetIsIdentity(t *testing.T) {
	turns := history(5, 40)
	tr := NewTrimmer(DefaultConfig(), zerolog.Nop())

	require.LessOrEqual(t, EstimateTokens(turns), DefaultConfig().TokenBudget)
	assert.Equal(t, turns, tr.Trim(turns))
}

func TestTrimDropsNonTextParts(t *testing.T) {
	turns := []domain.Turn{
		{Role: domain.RoleUser, Parts: []domain.Part{
			domain.TextPart("xem sữa"),
			{Kind: domain.PartKindImage, Data: []byte(`{"uri":"gs://img"}`)},
		}},
		{Role: domain.RoleAgent, Parts: []domain.Part{
			{Kind: domain.PartKindFunctionCall, Data: []byte(`{"name":"search_products"}`)},
			domain.TextPart("đây"),
		}},
	}
	tr := NewTrimmer(DefaultConfig(), zerolog.Nop())

	out := tr.Trim(turns)

	require.Len(t, out, 2)
	assert.Equal(t, []domain.Part{domain.TextPart("xem sữa")}, out[0].Parts)
	assert.Equal(t, []domain.Part{domain.TextPart("đây")}, out[1].Parts)
	assert.Len(t, turns[0].Parts, 2, "input must not be modified")
}

func TestTrimTruncatesLongParts(t *testing.T) {
	long := strings.Repeat("ữ", 25)
	turns := []domain.Turn{turn(domain.RoleUser, long, "ngắn")}
	tr := NewTrimmer(Config{MaxInvocations: 5, TokenBudget: 3000, MaxPartChars: 10}, zerolog.Nop())

	out := tr.Trim(turns)

	require.Len(t, out[0].Parts, 2)
	assert.Equal(t, strings.Repeat("ữ", 10)+TruncationMarker, out[0].Parts[0].Text)
	assert.Equal(t, "ngắn", out[0].Parts[1].Text)
	assert.Equal(t, long, turns[0].Parts[0].Text)
}

func TestTrimEvictsOldestUntilWithinBudget(t *testing.T) {
	// each invocation: 3 parts of 40 chars, 10 tokens each = 30 tokens
	turns := history(6, 40)
	tr := NewTrimmer(Config{MaxInvocations: 10, TokenBudget: 100, MaxPartChars: 2000}, zerolog.Nop())

	res := tr.TrimWithResult(turns)

	assert.Equal(t, 6, res.Invocations)
	assert.Equal(t, 3, res.Kept)
	assert.Equal(t, 3, res.Evicted)
	assert.Equal(t, 90, res.Tokens)
	assert.False(t, res.OverBudget)
	assert.Equal(t, turns[9:], res.Turns)
}

func TestTrimNeverEvictsLatestInvocation(t *testing.T) {
	turns := history(5, 40)
	turns = append(turns,
		turn(domain.RoleUser, strings.Repeat("z", 1500)),
		turn(domain.RoleAgent, strings.Repeat("y", 1500)),
	)
	var buf bytes.Buffer
	tr := NewTrimmer(Config{MaxInvocations: 10, TokenBudget: 100, MaxPartChars: 2000}, zerolog.New(&buf))

	res := tr.TrimWithResult(turns)

	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 5, res.Evicted)
	assert.True(t, res.OverBudget)
	assert.Greater(t, res.Tokens, 100)
	assert.Equal(t, turns[len(turns)-2:], res.Turns)
	assert.Contains(t, buf.String(), string(domain.ErrorKindExhaustedBudget))
}

func TestTrimTrailingOpenInvocationIsKept(t *testing.T) {
	turns := append(history(3, 40), turn(domain.RoleUser, strings.Repeat("q", 370)))
	tr := NewTrimmer(Config{MaxInvocations: 5, TokenBudget: 100, MaxPartChars: 2000}, zerolog.Nop())

	out := tr.Trim(turns)

	require.NotEmpty(t, out)
	assert.Equal(t, turns[len(turns)-1], out[len(out)-1])
}

func TestTrimEmpty(t *testing.T) {
	tr := NewTrimmer(DefaultConfig(), zerolog.Nop())
	assert.Empty(t, tr.Trim(nil))
}
