package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var typeSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeType canonicalizes a raw event type string: lowercase, with runs of
// punctuation and whitespace collapsed to a single dash. "Game Start",
// "game_start" and "GAME:START" all map to "game-start".
func NormalizeType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = typeSeparators.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Normalize decodes a raw inbound message into the canonical event schema.
// A decode failure is a protocol error for that single message only; callers
// log and drop it without aborting the stream.
func Normalize(raw []byte) (Event, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, fmt.Errorf("decode message: %w", err)
	}
	return NormalizeMap(payload), nil
}

// NormalizeMap builds a canonical event from an already-decoded payload.
func NormalizeMap(payload map[string]any) Event {
	rawType, _ := payload["type"].(string)
	ev := Event{
		Type:      NormalizeType(rawType),
		RawType:   rawType,
		SessionID: pickString(payload, "session_id", "sessionId", "round_id", "roundId"),
		UserID:    pickString(payload, "user_id", "userId"),
		Error:     pickString(payload, "error"),
		Raw:       payload,
	}

	switch ev.Type {
	case TypeSync, TypeGameState, TypeGameStart, TypeGameFlying, TypeGameCrash:
		snap := NormalizeSnapshot(payload)
		ev.Session = snap.Session
		ev.User = snap.User
		ev.Balance = snap.Balance
		if ev.SessionID == "" && snap.Session != nil {
			ev.SessionID = snap.Session.ID
		}
	case TypeAuthSuccess:
		ev.AuthUser = parseUserInfo(asMap(payload["user"]))
		ev.Balance = balanceFromEvent(payload)
	case TypeBalanceUpdate, TypeBalanceUpdated:
		ev.Balance = balanceFromEvent(payload)
	case TypeBetAccepted:
		ev.Bet = parseBet(firstMap(payload, "bet", "data"))
		if ev.Bet == nil {
			ev.Bet = parseBet(payload)
		}
		ev.Balance = balanceFromEvent(payload)
		if ev.SessionID == "" && ev.Bet != nil {
			ev.SessionID = ev.Bet.SessionID
		}
	case TypeCashoutProcessed:
		ev.Cashout = parseCashout(firstMap(payload, "cashout", "data"))
		if ev.Cashout == nil {
			ev.Cashout = parseCashout(payload)
		}
		ev.Balance = balanceFromEvent(payload)
		if ev.SessionID == "" && ev.Cashout != nil {
			ev.SessionID = ev.Cashout.SessionID
		}
	case TypeSessionHistory:
		ev.History = parseHistory(payload["history"])
	case TypeChatMessage:
		ev.Chat = parseChat(payload)
	}

	return ev
}

// NormalizeSnapshot maps a loosely-shaped state payload (nested or flat) onto
// the canonical snapshot schema.
func NormalizeSnapshot(payload map[string]any) Snapshot {
	if payload == nil {
		return Snapshot{}
	}
	sessionPayload := firstMap(payload, "session", "state", "game", "round")
	if sessionPayload == nil {
		sessionPayload = payload
	}
	userPayload := firstMap(payload, "user", "player", "me")
	balancePayload := firstMap(payload, "balance", "wallet")
	if balancePayload == nil && userPayload != nil {
		balancePayload = asMap(userPayload["wallet"])
	}

	return Snapshot{
		Session: parseSession(sessionPayload),
		User:    parseUser(userPayload),
		Balance: parseBalance(balancePayload),
	}
}

// NormalizeActionResponse maps a bet/cashout REST response onto the canonical
// schema. The embedded snapshot follows the same rules as NormalizeSnapshot.
func NormalizeActionResponse(payload map[string]any) ActionResponse {
	resp := ActionResponse{
		Snapshot: NormalizeSnapshot(payload),
		Message:  pickString(payload, "message", "error"),
	}
	resp.Bet = parseBet(firstMap(payload, "bet"))
	if resp.Bet == nil {
		if data := asMap(payload["data"]); data != nil {
			resp.Bet = parseBet(asMap(data["bet"]))
		}
	}
	resp.Cashout = parseCashout(firstMap(payload, "cashout"))
	if resp.Cashout == nil {
		if data := asMap(payload["data"]); data != nil {
			resp.Cashout = parseCashout(asMap(data["cashout"]))
		}
	}
	if v, ok := payload["success"].(bool); ok {
		resp.Success = &v
	} else if v, ok := payload["ok"].(bool); ok {
		resp.Success = &v
	} else if status, ok := payload["status"].(string); ok {
		v := strings.EqualFold(status, "ok")
		resp.Success = &v
	}
	return resp
}

func parseSession(m map[string]any) *SessionPatch {
	if m == nil {
		return nil
	}
	return &SessionPatch{
		ID:         pickString(m, "session_id", "sessionId", "round_id", "roundId", "id"),
		Phase:      parsePhase(pick(m, "phase", "state", "status")),
		Seed:       pickStringPtr(m, "seed_hash", "seedHash", "seed"),
		StartTime:  pickTimestamp(m, "start_time_ms", "start_time", "startTime", "started_at"),
		BetEndTime: pickTimestamp(m, "bet_end_time_ms", "bet_end_time", "betEndTime", "ends_at"),
		CrashAt:    pickTimestamp(m, "crash_time_ms", "crash_time", "crashTime", "crash_at", "crashAt"),
		CrashPoint: pickNumber(m, "crash_point", "crashPoint", "result", "crash"),
	}
}

func parseUser(m map[string]any) *UserPatch {
	if m == nil {
		return nil
	}
	balance := pickNumber(m, "balance", "coins")
	if balance == nil {
		if wallet := asMap(m["wallet"]); wallet != nil {
			balance = pickNumber(wallet, "balance", "coins_total")
		}
	}
	return &UserPatch{
		BetAmount:         pickNumber(m, "bet_amount", "bet", "amount", "active_bet"),
		CashoutMultiplier: pickNumber(m, "cashout_multiplier", "cashout", "multiplier"),
		Balance:           balance,
	}
}

func parseBalance(m map[string]any) *BalancePatch {
	if m == nil {
		return nil
	}
	patch := &BalancePatch{
		Cash:  pickNumber(m, "coins_cash", "cash", "cash_balance", "real"),
		Bonus: pickNumber(m, "coins_bonus", "bonus", "bonus_balance"),
		Total: pickNumber(m, "total", "coins_total", "balance"),
	}
	if patch.Cash == nil && patch.Bonus == nil && patch.Total == nil {
		return nil
	}
	return patch
}

// balanceFromEvent resolves the balance carried by non-snapshot events, which
// may nest it under balance/wallet/user.balance/data.balance or send a bare
// number.
func balanceFromEvent(payload map[string]any) *BalancePatch {
	for _, key := range []string{"balance", "wallet"} {
		switch v := payload[key].(type) {
		case map[string]any:
			if patch := parseBalance(v); patch != nil {
				return patch
			}
		default:
			if n := number(v); n != nil {
				return &BalancePatch{Total: n}
			}
		}
	}
	for _, key := range []string{"user", "data"} {
		if nested := asMap(payload[key]); nested != nil {
			if patch := balanceFromEvent(nested); patch != nil {
				return patch
			}
		}
	}
	return nil
}

func parseBet(m map[string]any) *BetInfo {
	if m == nil {
		return nil
	}
	amount := pickNumber(m, "amount", "bet")
	id := pickString(m, "id", "bet_id", "betId")
	sessionID := pickString(m, "session_id", "sessionId", "round_id")
	if amount == nil && id == "" && sessionID == "" {
		return nil
	}
	return &BetInfo{
		ID:        id,
		Amount:    amount,
		Currency:  pickString(m, "currency"),
		SessionID: sessionID,
	}
}

func parseCashout(m map[string]any) *CashoutInfo {
	if m == nil {
		return nil
	}
	multiplier := pickNumber(m, "multiplier", "cashout")
	payout := pickNumber(m, "payout", "win")
	sessionID := pickString(m, "session_id", "sessionId")
	if multiplier == nil && payout == nil && sessionID == "" {
		return nil
	}
	return &CashoutInfo{
		Multiplier: multiplier,
		Payout:     payout,
		SessionID:  sessionID,
	}
}

func parseHistory(v any) []HistoryEntry {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	entries := make([]HistoryEntry, 0, len(items))
	for _, item := range items {
		m := asMap(item)
		if m == nil {
			continue
		}
		multiplier := pickNumber(m, "multiplier", "crash_point", "crashPoint", "result")
		if multiplier == nil {
			continue
		}
		entry := HistoryEntry{Multiplier: *multiplier}
		if ts := pickTimestamp(m, "timestamp", "created_at", "createdAt", "finished_at"); ts != nil {
			entry.Timestamp = *ts
		}
		entries = append(entries, entry)
	}
	return entries
}

func parseChat(m map[string]any) *ChatMessage {
	if m == nil {
		return nil
	}
	msg := &ChatMessage{
		UserID:    pickString(m, "user_id", "userId"),
		Username:  pickString(m, "username", "name"),
		AvatarURL: pickString(m, "avatar_url", "avatarUrl"),
		Message:   pickString(m, "message", "text"),
	}
	if ts := pickTimestamp(m, "created_at", "createdAt", "timestamp"); ts != nil {
		msg.CreatedAt = *ts
	}
	return msg
}

func parseUserInfo(m map[string]any) *UserInfo {
	if m == nil {
		return nil
	}
	return &UserInfo{
		ID:        pickString(m, "id", "user_id", "telegram_id", "telegramId"),
		Username:  pickString(m, "username", "first_name", "firstName", "name"),
		AvatarURL: pickString(m, "avatar_url", "avatarUrl", "photo_url"),
	}
}

func parsePhase(v any) *Phase {
	if v == nil {
		return nil
	}
	s := strings.ToLower(stringify(v))
	if s == "" {
		return nil
	}
	phase := PhaseBetting
	switch {
	case strings.Contains(s, "fly"):
		phase = PhaseFlying
	case strings.Contains(s, "crash"), strings.Contains(s, "result"):
		phase = PhaseCrashed
	}
	return &phase
}

// number coerces a loosely-typed value to a finite float64. Non-finite and
// unparsable values are treated as absent, never as zero.
func number(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return &n
	case json.Number:
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	}
	return nil
}

// timestamp coerces epoch-millisecond numbers or RFC3339 strings to time.Time.
func timestamp(v any) *time.Time {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
	}
	if n := number(v); n != nil {
		t := time.UnixMilli(int64(*n))
		return &t
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// pick returns the value of the first present, non-nil key. The key order is
// the fixed precedence list for that logical field.
func pick(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func pickNumber(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			if n := number(v); n != nil {
				return n
			}
		}
	}
	return nil
}

func pickTimestamp(m map[string]any, keys ...string) *time.Time {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			if t := timestamp(v); t != nil {
				return t
			}
		}
	}
	return nil
}

func pickString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func pickStringPtr(m map[string]any, keys ...string) *string {
	if s := pickString(m, keys...); s != "" {
		return &s
	}
	return nil
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if nested := asMap(m[key]); nested != nil {
			return nested
		}
	}
	return nil
}
