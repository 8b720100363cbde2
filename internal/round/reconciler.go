package round

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/internal/protocol"
)

// Action precondition failures. These are client-side fast-fail checks only;
// the server re-validates every action.
var (
	ErrActionPending       = errors.New("an action is already pending")
	ErrNotConnected        = errors.New("transport not connected")
	ErrWrongPhase          = errors.New("action not allowed in current phase")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoActiveBet         = errors.New("no active bet to cash out")
	ErrAlreadyCashedOut    = errors.New("bet already cashed out")
	ErrInvalidAmount       = errors.New("bet amount must be positive")
)

const feedLimit = 100

// Stats counts reconciliation outcomes. StaleDiscarded is an expected outcome
// of the session merge policy, not a failure.
type Stats struct {
	EventsApplied  uint64
	StaleDiscarded uint64
	UnknownEvents  uint64
	DecodeFailures uint64
}

// Reconciler merges normalized events, REST snapshots and action responses
// into one consistent view of the current round. It is the only writer of
// RoundState/UserRoundState/Balance; every mutation goes through the overlay
// merge or an explicit phase-entry reset.
type Reconciler struct {
	mu      sync.RWMutex
	state   State
	userID  string
	resync  bool
	history []protocol.HistoryEntry
	chat    []protocol.ChatMessage
	stats   Stats
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		state: State{Round: RoundState{Phase: protocol.PhaseBetting}},
	}
}

// State returns a copy of the current view.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.clone()
}

// Round returns a copy of the current round only.
func (r *Reconciler) Round() RoundState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	round := r.state.Round
	round.CrashPoint = cloneFloat(round.CrashPoint)
	return round
}

func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Reconciler) History() []protocol.HistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.HistoryEntry, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Reconciler) ChatMessages() []protocol.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ChatMessage, len(r.chat))
	copy(out, r.chat)
	return out
}

// SetConnected records transport liveness. Disconnecting never resets the
// round; it opens a recovery window in which the next sync event may
// re-establish truth for a different session.
func (r *Reconciler) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Connected = connected
	if !connected {
		r.resync = true
	}
}

// NoteDecodeFailure counts a dropped undecodable message.
func (r *Reconciler) NoteDecodeFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.DecodeFailures++
}

// Apply merges one normalized event into the current state under the session
// merge policy:
//
//  1. A round-establishing event (game-start, sync, game-state) carrying a new
//     session id supersedes RoundState entirely and clears UserRoundState.
//  2. Any other event whose session id differs from a non-empty current one is
//     discarded as stale.
//  3. Everything else is a field-level overlay: only present fields overwrite.
func (r *Reconciler) Apply(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case protocol.TypeGameStart:
		r.applyStart(ev)
	case protocol.TypeSync, protocol.TypeGameState:
		if !r.applySync(ev) {
			return
		}
	case protocol.TypeGameFlying:
		if r.discardStale(ev) {
			return
		}
		r.overlaySession(ev.Session)
		r.enterPhase(protocol.PhaseFlying)
		r.overlayBalance(ev.Balance)
	case protocol.TypeGameCrash:
		if r.discardStale(ev) {
			return
		}
		r.overlaySession(ev.Session)
		r.enterPhase(protocol.PhaseCrashed)
		r.overlayBalance(ev.Balance)
	case protocol.TypeBetAccepted:
		if r.discardStale(ev) {
			return
		}
		// Lobby broadcast: another player's bet is not my stake.
		if r.ownEvent(ev) {
			if ev.Bet != nil && ev.Bet.Amount != nil {
				r.state.User.BetAmount = cloneFloat(ev.Bet.Amount)
			}
			r.overlayBalance(ev.Balance)
		}
	case protocol.TypeCashoutProcessed:
		if r.discardStale(ev) {
			return
		}
		if r.ownEvent(ev) {
			if ev.Cashout != nil && ev.Cashout.Multiplier != nil && r.state.User.CashoutMultiplier == nil {
				r.state.User.CashoutMultiplier = cloneFloat(ev.Cashout.Multiplier)
			}
			r.overlayBalance(ev.Balance)
		}
	case protocol.TypeAuthSuccess:
		if ev.AuthUser != nil {
			r.userID = ev.AuthUser.ID
		}
		r.overlayBalance(ev.Balance)
	case protocol.TypeBalanceUpdate, protocol.TypeBalanceUpdated:
		r.overlayBalance(ev.Balance)
	case protocol.TypeSessionHistory:
		if ev.History != nil {
			r.history = bounded(ev.History)
		}
	case protocol.TypeChatMessage:
		if ev.Chat != nil {
			r.chat = append(r.chat, *ev.Chat)
			if len(r.chat) > feedLimit {
				r.chat = r.chat[len(r.chat)-feedLimit:]
			}
		}
	default:
		r.stats.UnknownEvents++
		log.Debug().Str("type", ev.Type).Str("raw_type", ev.RawType).Msg("ignoring unknown event type")
		return
	}

	r.stats.EventsApplied++
}

// ApplySnapshot merges a REST snapshot with the same overlay rule as events.
// It never wholesale-replaces a live round for the same session: a
// concurrently-arrived event may be fresher for some fields. A snapshot for a
// session that is no longer current contributes balance fields only.
func (r *Reconciler) ApplySnapshot(snap protocol.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Session != nil {
		sid := snap.Session.ID
		current := r.state.Round.SessionID
		switch {
		case current == "":
			r.state.Round = RoundState{SessionID: sid, Phase: protocol.PhaseBetting}
			r.overlaySession(snap.Session)
		case sid == "" || sid == current:
			r.overlaySession(snap.Session)
		default:
			r.stats.StaleDiscarded++
			log.Debug().Str("snapshot_session", sid).Str("current_session", current).
				Msg("snapshot round superseded, applying balance only")
			r.overlayBalance(snap.Balance)
			return
		}
	}
	r.overlayUser(snap.User)
	r.overlayBalance(snap.Balance)
}

func (r *Reconciler) applyStart(ev protocol.Event) {
	sid := eventSession(ev)
	current := r.state.Round.SessionID

	if current == "" || (sid != "" && sid != current) {
		r.state.Round = RoundState{SessionID: sid, Phase: protocol.PhaseBetting}
		r.overlaySession(ev.Session)
		// The crash point stays unknown until the round actually crashes.
		r.state.Round.CrashPoint = nil
		r.state.Round.Phase = protocol.PhaseBetting
	} else {
		r.overlaySession(ev.Session)
	}
	// A round start always opens with an empty stake, including redeliveries.
	r.resetUser()
	r.resync = false
	r.overlayBalance(ev.Balance)
}

// applySync handles sync/game-state events. After a disconnect the next sync
// may re-establish truth for a different session (reconnect recovery);
// outside that window a foreign-session sync is as stale as any other late
// event. Returns false when the event was discarded.
func (r *Reconciler) applySync(ev protocol.Event) bool {
	sid := eventSession(ev)
	current := r.state.Round.SessionID

	switch {
	case current == "":
		r.state.Round = RoundState{SessionID: sid, Phase: protocol.PhaseBetting}
		r.overlaySession(ev.Session)
		r.resetUser()
	case sid == "" || sid == current:
		r.overlaySession(ev.Session)
	case r.resync:
		r.state.Round = RoundState{SessionID: sid, Phase: protocol.PhaseBetting}
		r.overlaySession(ev.Session)
		r.resetUser()
	default:
		r.stats.StaleDiscarded++
		log.Debug().Str("event_session", sid).Str("current_session", current).
			Msg("discarding stale sync")
		return false
	}
	r.resync = false
	r.overlayUser(ev.User)
	r.overlayBalance(ev.Balance)
	return true
}

// ownEvent reports whether a per-user event (bet-accepted, cashout-processed)
// belongs to the authenticated user. Events without a user id are direct
// responses to this client; events carrying one are lobby broadcasts and
// must match the id recorded from auth-success.
func (r *Reconciler) ownEvent(ev protocol.Event) bool {
	return ev.UserID == "" || ev.UserID == r.userID
}

// discardStale drops events for a session that is not the current one when a
// current session exists. This is an expected outcome, observable only via
// stats and debug logs.
func (r *Reconciler) discardStale(ev protocol.Event) bool {
	sid := eventSession(ev)
	current := r.state.Round.SessionID
	if sid == "" || current == "" || sid == current {
		return false
	}
	r.stats.StaleDiscarded++
	log.Debug().Str("type", ev.Type).Str("event_session", sid).Str("current_session", current).
		Msg("discarding stale event")
	return true
}

func phaseRank(p protocol.Phase) int {
	switch p {
	case protocol.PhaseFlying:
		return 1
	case protocol.PhaseCrashed:
		return 2
	default:
		return 0
	}
}

// enterPhase advances the round phase. Phase is monotonic within a session,
// so re-entering the current phase or moving backwards (a late redelivery)
// is a no-op; only a new session id resets to Betting, via the supersede
// paths which write the phase directly.
func (r *Reconciler) enterPhase(phase protocol.Phase) {
	if phaseRank(phase) <= phaseRank(r.state.Round.Phase) {
		return
	}
	r.state.Round.Phase = phase
	if phase == protocol.PhaseCrashed {
		// Clear the stake ahead of the next betting entry; the crash point
		// itself stays visible on the round.
		r.state.User.BetAmount = nil
		r.state.User.CashoutMultiplier = nil
	}
}

func (r *Reconciler) resetUser() {
	r.state.User = UserRoundState{}
}

func (r *Reconciler) overlaySession(p *protocol.SessionPatch) {
	if p == nil {
		return
	}
	if p.ID != "" && r.state.Round.SessionID == "" {
		r.state.Round.SessionID = p.ID
	}
	if p.Phase != nil {
		r.enterPhase(*p.Phase)
	}
	if p.Seed != nil {
		r.state.Round.Seed = *p.Seed
	}
	if p.StartTime != nil {
		r.state.Round.StartTime = *p.StartTime
	}
	if p.BetEndTime != nil {
		r.state.Round.BetEndTime = *p.BetEndTime
	}
	if p.CrashAt != nil {
		r.state.Round.CrashAt = *p.CrashAt
	}
	if p.CrashPoint != nil {
		r.state.Round.CrashPoint = cloneFloat(p.CrashPoint)
	}
}

func (r *Reconciler) overlayUser(p *protocol.UserPatch) {
	if p == nil {
		return
	}
	if p.BetAmount != nil {
		r.state.User.BetAmount = cloneFloat(p.BetAmount)
	}
	if p.CashoutMultiplier != nil && r.state.User.CashoutMultiplier == nil {
		// Cashout confirmation is write-once for the round.
		r.state.User.CashoutMultiplier = cloneFloat(p.CashoutMultiplier)
	}
	if p.Balance != nil {
		r.state.Balance.Total = cloneFloat(p.Balance)
	}
}

func (r *Reconciler) overlayBalance(p *protocol.BalancePatch) {
	if p == nil {
		return
	}
	if p.Cash != nil {
		r.state.Balance.Cash = cloneFloat(p.Cash)
	}
	if p.Bonus != nil {
		r.state.Balance.Bonus = cloneFloat(p.Bonus)
	}
	if p.Total != nil {
		r.state.Balance.Total = cloneFloat(p.Total)
	}
}

func eventSession(ev protocol.Event) string {
	if ev.SessionID != "" {
		return ev.SessionID
	}
	if ev.Session != nil {
		return ev.Session.ID
	}
	return ""
}

func bounded(entries []protocol.HistoryEntry) []protocol.HistoryEntry {
	if len(entries) > feedLimit {
		entries = entries[len(entries)-feedLimit:]
	}
	out := make([]protocol.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
