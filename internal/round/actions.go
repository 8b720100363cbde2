package round

import (
	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/internal/protocol"
)

// BeginBet runs the client-side bet preconditions and marks a bet as pending,
// all under one lock so concurrent submissions cannot both pass. It returns
// the session id the bet is being placed for. Callers must pair every
// successful BeginBet with EndAction.
func (r *Reconciler) BeginBet(amount float64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	if !r.state.Connected {
		return "", ErrNotConnected
	}
	if r.state.User.Pending != PendingNone {
		return "", ErrActionPending
	}
	if r.state.Round.Phase != protocol.PhaseBetting {
		return "", ErrWrongPhase
	}
	if balance, ok := r.state.Balance.Resolve(); !ok || balance < amount {
		return "", ErrInsufficientBalance
	}

	r.state.User.Pending = PendingBet
	return r.state.Round.SessionID, nil
}

// BeginCashout runs the cashout preconditions and marks a cashout as pending.
func (r *Reconciler) BeginCashout() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Connected {
		return "", ErrNotConnected
	}
	if r.state.User.Pending != PendingNone {
		return "", ErrActionPending
	}
	if r.state.Round.Phase != protocol.PhaseFlying {
		return "", ErrWrongPhase
	}
	if r.state.User.BetAmount == nil {
		return "", ErrNoActiveBet
	}
	if r.state.User.CashoutMultiplier != nil {
		return "", ErrAlreadyCashedOut
	}

	r.state.User.Pending = PendingCashout
	return r.state.Round.SessionID, nil
}

// EndAction clears the pending flag. It runs on every terminal outcome of an
// action request, so a failed or timed-out request can never block further
// user actions.
func (r *Reconciler) EndAction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.User.Pending = PendingNone
}

// ApplyActionResponse merges a bet/cashout response. Responses are correlated
// by session id: a response for a session that is no longer current applies
// only to balance fields, never to the superseded round's user state.
func (r *Reconciler) ApplyActionResponse(resp protocol.ActionResponse, submittedSession string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	respSession := responseSession(resp)
	if respSession == "" {
		respSession = submittedSession
	}
	current := r.state.Round.SessionID
	if respSession != "" && current != "" && respSession != current {
		r.stats.StaleDiscarded++
		log.Debug().Str("response_session", respSession).Str("current_session", current).
			Msg("action response for superseded round, applying balance only")
		r.overlayBalance(resp.Balance)
		if resp.User != nil && resp.User.Balance != nil {
			r.state.Balance.Total = cloneFloat(resp.User.Balance)
		}
		return
	}

	if resp.Session != nil && (resp.Session.ID == "" || resp.Session.ID == current || current == "") {
		r.overlaySession(resp.Session)
	}
	r.overlayUser(resp.User)
	r.overlayBalance(resp.Balance)

	if resp.Bet != nil && resp.Bet.Amount != nil {
		r.state.User.BetAmount = cloneFloat(resp.Bet.Amount)
	}
	if resp.Cashout != nil && resp.Cashout.Multiplier != nil && r.state.User.CashoutMultiplier == nil {
		r.state.User.CashoutMultiplier = cloneFloat(resp.Cashout.Multiplier)
	}
}

func responseSession(resp protocol.ActionResponse) string {
	if resp.Bet != nil && resp.Bet.SessionID != "" {
		return resp.Bet.SessionID
	}
	if resp.Cashout != nil && resp.Cashout.SessionID != "" {
		return resp.Cashout.SessionID
	}
	if resp.Session != nil {
		return resp.Session.ID
	}
	return ""
}
