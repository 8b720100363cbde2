package round

import (
	"time"

	"github.com/avialab/crashsync/internal/protocol"
)

// RoundState is the authoritative description of the current round. Exactly
// one RoundState is current at any time; a new session id supersedes it
// wholesale instead of mutating it.
type RoundState struct {
	SessionID  string
	Phase      protocol.Phase
	StartTime  time.Time
	BetEndTime time.Time
	CrashAt    time.Time
	CrashPoint *float64
	Seed       string
}

// Duration is the flight window length. Zero until both boundary instants are
// known.
func (r RoundState) Duration() time.Duration {
	if r.CrashAt.IsZero() || r.BetEndTime.IsZero() {
		return 0
	}
	return r.CrashAt.Sub(r.BetEndTime)
}

// PendingAction guards against duplicate bet/cashout submission.
type PendingAction int

const (
	PendingNone PendingAction = iota
	PendingBet
	PendingCashout
)

func (p PendingAction) String() string {
	switch p {
	case PendingBet:
		return "bet"
	case PendingCashout:
		return "cashout"
	default:
		return "none"
	}
}

// UserRoundState is the user's stake in the current round. It is only
// meaningful while its implicit session matches RoundState.SessionID and is
// reset atomically whenever the session changes.
type UserRoundState struct {
	BetAmount         *float64
	CashoutMultiplier *float64
	Pending           PendingAction
}

// Balance is the user's wallet. Total is authoritative when supplied by the
// server; otherwise cash and bonus are summed.
type Balance struct {
	Cash  *float64
	Bonus *float64
	Total *float64
}

// Resolve returns the effective balance and whether any component is known.
func (b Balance) Resolve() (float64, bool) {
	if b.Total != nil {
		return *b.Total, true
	}
	if b.Cash == nil && b.Bonus == nil {
		return 0, false
	}
	var total float64
	if b.Cash != nil {
		total += *b.Cash
	}
	if b.Bonus != nil {
		total += *b.Bonus
	}
	return total, true
}

// State is the reconciler's full view of the world.
type State struct {
	Round     RoundState
	User      UserRoundState
	Balance   Balance
	Connected bool
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func (s State) clone() State {
	s.Round.CrashPoint = cloneFloat(s.Round.CrashPoint)
	s.User.BetAmount = cloneFloat(s.User.BetAmount)
	s.User.CashoutMultiplier = cloneFloat(s.User.CashoutMultiplier)
	s.Balance.Cash = cloneFloat(s.Balance.Cash)
	s.Balance.Bonus = cloneFloat(s.Balance.Bonus)
	s.Balance.Total = cloneFloat(s.Balance.Total)
	return s
}
