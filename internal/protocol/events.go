package protocol

import "time"

// Canonical inbound event types. Raw type strings are canonicalized with
// NormalizeType before dispatch because the server does not guarantee a
// stable casing convention.
const (
	TypeAuthSuccess      = "auth-success"
	TypeSync             = "sync"
	TypeGameState        = "game-state"
	TypeSessionHistory   = "session-history"
	TypeGameStart        = "game-start"
	TypeGameFlying       = "game-flying"
	TypeGameCrash        = "game-crash"
	TypeBalanceUpdate    = "balance-update"
	TypeBalanceUpdated   = "balance-updated"
	TypeBetAccepted      = "bet-accepted"
	TypeCashoutProcessed = "cashout-processed"
	TypeChatMessage      = "chat-message"
)

// Phase is the lifecycle phase of a crash round.
type Phase string

const (
	PhaseBetting Phase = "betting"
	PhaseFlying  Phase = "flying"
	PhaseCrashed Phase = "crashed"
)

// SessionPatch carries the round fields present in a payload. Nil fields were
// absent or unparsable and must leave existing state untouched when merged.
type SessionPatch struct {
	ID         string
	Phase      *Phase
	Seed       *string
	StartTime  *time.Time
	BetEndTime *time.Time
	CrashAt    *time.Time
	CrashPoint *float64
}

// UserPatch carries the per-user round fields present in a payload.
type UserPatch struct {
	BetAmount         *float64
	CashoutMultiplier *float64
	Balance           *float64
}

// BalancePatch carries wallet fields present in a payload.
type BalancePatch struct {
	Cash  *float64
	Bonus *float64
	Total *float64
}

// ResolveTotal returns the effective balance. A server-supplied total is
// authoritative; otherwise cash and bonus are summed.
func (b *BalancePatch) ResolveTotal() (float64, bool) {
	if b == nil {
		return 0, false
	}
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

// Snapshot is the canonical form of a full round/user/balance state payload,
// as returned by GET /state or carried by sync events.
type Snapshot struct {
	Session *SessionPatch
	User    *UserPatch
	Balance *BalancePatch
}

// BetInfo is a server confirmation of a placed bet.
type BetInfo struct {
	ID        string
	Amount    *float64
	Currency  string
	SessionID string
}

// CashoutInfo is a server confirmation of a processed cashout.
type CashoutInfo struct {
	Multiplier *float64
	Payout     *float64
	SessionID  string
}

// HistoryEntry is one finished round in the session history feed.
type HistoryEntry struct {
	Multiplier float64
	Timestamp  time.Time
}

// ChatMessage is one lobby chat message.
type ChatMessage struct {
	UserID    string
	Username  string
	AvatarURL string
	Message   string
	CreatedAt time.Time
}

// UserInfo identifies the authenticated user.
type UserInfo struct {
	ID        string
	Username  string
	AvatarURL string
}

// Event is one normalized inbound message. Only the fields relevant to the
// canonical Type are populated; Raw always holds the decoded payload so
// unrecognized types pass through the pipeline unchanged.
type Event struct {
	Type      string
	RawType   string
	SessionID string
	UserID    string
	Session   *SessionPatch
	User      *UserPatch
	Balance   *BalancePatch
	Bet       *BetInfo
	Cashout   *CashoutInfo
	History   []HistoryEntry
	Chat      *ChatMessage
	AuthUser  *UserInfo
	Error     string
	Raw       map[string]any
}

// ActionResponse is the canonical form of a REST bet/cashout response.
type ActionResponse struct {
	Snapshot
	Bet     *BetInfo
	Cashout *CashoutInfo
	Success *bool
	Message string
}

// Rejected reports whether the server explicitly refused the action.
func (r ActionResponse) Rejected() bool {
	return r.Success != nil && !*r.Success
}
