package service

import (
	"strings"
	"time"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/contextwindow"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/sessionstate"
)

// PrepareHistory trims turns before a model call.
func (r *Runtime) PrepareHistory(turns []domain.Turn) contextwindow.Result {
	res := r.trimmer.TrimWithResult(turns)
	if res.Evicted > 0 {
		r.metrics.TrimEvictions.Add(float64(res.Evicted))
	}
	if res.OverBudget {
		r.metrics.TrimOverBudget.Inc()
	}
	return res
}

// BeginTurn records the user's message and returns the turn start time to
// pass to CompleteTurn.
func (r *Runtime) BeginTurn(sessionID, userMessage string) time.Time {
	started := r.now()
	if strings.TrimSpace(userMessage) == "" {
		return started
	}
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		st.SetLastUserQuestion(userMessage)
		r.enqueue(st, domain.DialogSummary{UserQuestion: userMessage, KeyInfo: map[string]any{}})
	})
	return started
}

// CompleteTurn records the turn latency and, when the agent answered, the
// full dialog. It returns the updated latency average in seconds.
func (r *Runtime) CompleteTurn(sessionID, userMessage, answer string, started time.Time) float64 {
	elapsed := r.now().Sub(started)
	r.latency.Observe(elapsed)

	if strings.TrimSpace(answer) != "" {
		r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
			r.enqueue(st, domain.DialogSummary{
				UserQuestion: userMessage,
				AgentAnswer:  answer,
				Intent:       st.ConversationContext().Intent,
				KeyInfo:      map[string]any{},
			})
		})
	}

	ewma, count := r.latency.Read()
	r.log.Info().
		Str("session_id", sessionKey(sessionID)).
		Dur("elapsed", elapsed).
		Float64("ewma_seconds", ewma).
		Int64("samples", count).
		Msg("turn completed")
	return ewma
}

// SaveDialogSummary records a dialog summary written by the agent and stamps
// the question as the last one asked. A blank intent falls back to the
// session's current intent; key info that is not a JSON object is ignored.
func (r *Runtime) SaveDialogSummary(sessionID, userQuestion, answer, intent, keyInfoJSON string) domain.DialogSummary {
	keyInfo, err := sessionstate.ParseObject(keyInfoJSON)
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionKey(sessionID)).Msg("ignoring malformed key info")
	}
	if keyInfo == nil {
		keyInfo = map[string]any{}
	}

	var summary domain.DialogSummary
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		if strings.TrimSpace(userQuestion) != "" {
			st.SetLastUserQuestion(userQuestion)
		}
		if strings.TrimSpace(intent) == "" {
			intent = st.ConversationContext().Intent
		}
		summary = domain.DialogSummary{
			UserQuestion: userQuestion,
			AgentAnswer:  answer,
			Intent:       intent,
			KeyInfo:      keyInfo,
		}
		r.enqueue(st, summary)
	})
	return summary
}

// SetUserPreferences merges a JSON object into the session preferences and
// returns the result.
func (r *Runtime) SetUserPreferences(sessionID, preferencesJSON string) (map[string]any, error) {
	prefs, err := sessionstate.ParseObject(preferencesJSON)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		if len(prefs) > 0 {
			st.UpdatePreferences(prefs)
		}
		out = st.Preferences()
	})
	return out, nil
}

// SetIntent records the intent the agent inferred for the conversation.
func (r *Runtime) SetIntent(sessionID, intent string) {
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		c := st.ConversationContext()
		c.Intent = intent
		st.SetConversationContext(c)
	})
}

// AddToCart sets a product aside in the session's temporary cart.
func (r *Runtime) AddToCart(sessionID string, item sessionstate.CartItem) []sessionstate.CartItem {
	var out []sessionstate.CartItem
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		st.AddCartItem(item)
		out = st.CartItems()
	})
	return out
}

// RemoveFromCart drops every cart item of productID and returns how many
// were removed.
func (r *Runtime) RemoveFromCart(sessionID, productID string) int {
	var n int
	r.withState(sessionKey(sessionID), func(st *sessionstate.State) {
		n = st.RemoveCartItems(func(it sessionstate.CartItem) bool { return it.ProductID == productID })
	})
	return n
}
