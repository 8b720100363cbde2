package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeType(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"game-start", "game-start"},
		{"GAME START", "game-start"},
		{"Game_Start", "game-start"},
		{"game:start", "game-start"},
		{"  Balance Updated  ", "balance-updated"},
		{"CASHOUT::PROCESSED", "cashout-processed"},
		{"sync", "sync"},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeType(tc.raw))
		})
	}
}

func TestNormalizeFieldPrecedence(t *testing.T) {
	// crash_point outranks crashPoint outranks result.
	ev, err := Normalize([]byte(`{
		"type": "game-crash",
		"session_id": "R1",
		"crash_point": 2.5,
		"crashPoint": 3.5,
		"result": 4.5
	}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Session)
	require.NotNil(t, ev.Session.CrashPoint)
	assert.Equal(t, 2.5, *ev.Session.CrashPoint)
	assert.Equal(t, "R1", ev.SessionID)
}

func TestNormalizeNonFiniteValuesAbsent(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "game-crash",
		"session_id": "R1",
		"crash_point": "NaN",
		"start_time": "not a time"
	}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Session)
	assert.Nil(t, ev.Session.CrashPoint, "non-finite value must be absent, not zero")
	assert.Nil(t, ev.Session.StartTime)
}

func TestNormalizeNumericStrings(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "game-crash",
		"round_id": 12345,
		"crash_point": "1.87"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "12345", ev.SessionID)
	require.NotNil(t, ev.Session.CrashPoint)
	assert.Equal(t, 1.87, *ev.Session.CrashPoint)
}

func TestNormalizeTimestamps(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "game-flying",
		"sessionId": "R7",
		"startTime": 1700000000000,
		"bet_end_time": "2023-11-14T22:13:20Z"
	}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Session.StartTime)
	assert.Equal(t, time.UnixMilli(1700000000000), *ev.Session.StartTime)
	require.NotNil(t, ev.Session.BetEndTime)
	assert.Equal(t, 2023, ev.Session.BetEndTime.Year())
}

func TestNormalizeUnknownTypePassthrough(t *testing.T) {
	ev, err := Normalize([]byte(`{"type": "Jackpot Spin", "prize": 500}`))
	require.NoError(t, err)
	assert.Equal(t, "jackpot-spin", ev.Type)
	assert.Equal(t, "Jackpot Spin", ev.RawType)
	assert.Equal(t, float64(500), ev.Raw["prize"])
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	_, err := Normalize([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNormalizeSnapshotNested(t *testing.T) {
	snap := NormalizeSnapshot(map[string]any{
		"session": map[string]any{
			"id":        "R9",
			"phase":     "FLYING",
			"seed_hash": "abc123",
		},
		"user": map[string]any{
			"bet_amount": 25.0,
			"wallet":     map[string]any{"balance": 75.0},
		},
		"balance": map[string]any{"cash": 50.0, "bonus": 25.0},
	})

	require.NotNil(t, snap.Session)
	assert.Equal(t, "R9", snap.Session.ID)
	require.NotNil(t, snap.Session.Phase)
	assert.Equal(t, PhaseFlying, *snap.Session.Phase)
	require.NotNil(t, snap.Session.Seed)
	assert.Equal(t, "abc123", *snap.Session.Seed)

	require.NotNil(t, snap.User)
	require.NotNil(t, snap.User.BetAmount)
	assert.Equal(t, 25.0, *snap.User.BetAmount)
	require.NotNil(t, snap.User.Balance)
	assert.Equal(t, 75.0, *snap.User.Balance)

	total, ok := snap.Balance.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 75.0, total)
}

func TestNormalizeSnapshotFlat(t *testing.T) {
	snap := NormalizeSnapshot(map[string]any{
		"round_id":    "R3",
		"status":      "crashed",
		"crash_point": 1.03,
	})
	require.NotNil(t, snap.Session)
	assert.Equal(t, "R3", snap.Session.ID)
	assert.Equal(t, PhaseCrashed, *snap.Session.Phase)
	assert.Equal(t, 1.03, *snap.Session.CrashPoint)
}

func TestBalanceResolveTotalAuthoritative(t *testing.T) {
	cash, bonus, total := 10.0, 5.0, 100.0
	b := &BalancePatch{Cash: &cash, Bonus: &bonus, Total: &total}
	got, ok := b.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 100.0, got, "server-supplied total is authoritative")

	b.Total = nil
	got, ok = b.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 15.0, got)

	var empty *BalancePatch
	_, ok = empty.ResolveTotal()
	assert.False(t, ok)
}

func TestNormalizeBalanceEvent(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    float64
	}{
		{
			name:    "nested balance object",
			payload: `{"type": "balance-update", "balance": {"coins_cash": 80, "coins_bonus": 20}}`,
			want:    100,
		},
		{
			name:    "bare number",
			payload: `{"type": "balance-updated", "balance": 42.5}`,
			want:    42.5,
		},
		{
			name:    "under user",
			payload: `{"type": "balance-update", "user": {"balance": 7}}`,
			want:    7,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Normalize([]byte(tc.payload))
			require.NoError(t, err)
			total, ok := ev.Balance.ResolveTotal()
			require.True(t, ok)
			assert.Equal(t, tc.want, total)
		})
	}
}

func TestNormalizeBetAccepted(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "bet-accepted",
		"user_id": "u1",
		"bet": {"id": "b1", "amount": 50, "session_id": "R2"}
	}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Bet)
	assert.Equal(t, "b1", ev.Bet.ID)
	assert.Equal(t, 50.0, *ev.Bet.Amount)
	assert.Equal(t, "R2", ev.SessionID)
	assert.Equal(t, "u1", ev.UserID)
}

func TestNormalizeCashoutProcessed(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "Cashout Processed",
		"cashout": {"multiplier": 1.92, "payout": 96, "sessionId": "R2"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, TypeCashoutProcessed, ev.Type)
	require.NotNil(t, ev.Cashout)
	assert.Equal(t, 1.92, *ev.Cashout.Multiplier)
	assert.Equal(t, 96.0, *ev.Cashout.Payout)
	assert.Equal(t, "R2", ev.SessionID)
}

func TestNormalizeSessionHistory(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "session-history",
		"history": [
			{"multiplier": 1.5, "timestamp": 1700000000000},
			{"multiplier": "bogus"},
			{"crash_point": 3.2}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, ev.History, 2)
	assert.Equal(t, 1.5, ev.History[0].Multiplier)
	assert.Equal(t, 3.2, ev.History[1].Multiplier)
}

func TestNormalizeAuthSuccess(t *testing.T) {
	ev, err := Normalize([]byte(`{
		"type": "auth:success",
		"user": {"id": 99, "username": "pilot", "avatar_url": "http://a/b.png"},
		"balance": {"total": 500}
	}`))
	require.NoError(t, err)
	assert.Equal(t, TypeAuthSuccess, ev.Type)
	require.NotNil(t, ev.AuthUser)
	assert.Equal(t, "99", ev.AuthUser.ID)
	assert.Equal(t, "pilot", ev.AuthUser.Username)
	total, ok := ev.Balance.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 500.0, total)
}

func TestNormalizeActionResponse(t *testing.T) {
	resp := NormalizeActionResponse(map[string]any{
		"success": false,
		"message": "insufficient balance",
		"bet":     map[string]any{"amount": 10.0, "session_id": "R4"},
		"balance": map[string]any{"total": 3.0},
	})
	assert.True(t, resp.Rejected())
	assert.Equal(t, "insufficient balance", resp.Message)
	require.NotNil(t, resp.Bet)
	assert.Equal(t, "R4", resp.Bet.SessionID)
	total, ok := resp.Balance.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 3.0, total)
}

func TestNormalizeErrorField(t *testing.T) {
	ev, err := Normalize([]byte(`{"type": "sync", "error": "round not found"}`))
	require.NoError(t, err)
	assert.Equal(t, "round not found", ev.Error)
}
