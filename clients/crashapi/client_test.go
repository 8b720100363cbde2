package crashapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchStateDecodesSnapshot(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/state", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"session": {"id": "R1", "phase": "betting"},
			"balance": {"cash": 100, "bonus": 0}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snap, err := client.FetchState(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "R1", snap.Session.ID)
	total, ok := snap.Balance.ResolveTotal()
	require.True(t, ok)
	assert.Equal(t, 100.0, total)
}

func TestAuthFailureIsTyped(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", status)
		}))

		client := NewClient(server.URL)
		_, err := client.FetchState(context.Background(), "expired")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, status, authErr.Status)
		server.Close()
	}
}

func TestNonOKStatusCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("betting window closed"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.PlaceBet(context.Background(), "tok", BetRequest{Amount: 10, SessionID: "R1"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Status)
	assert.Contains(t, statusErr.Body, "betting window closed")
}

func TestTransportFailureIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL)
	_, err := client.FetchState(context.Background(), "tok")
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestUndecodableBodyIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchState(context.Background(), "tok")
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestPlaceBetPostsBody(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/bet", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"success": true, "bet": {"id": "b1", "amount": 25, "session_id": "R2"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.PlaceBet(context.Background(), "tok", BetRequest{Amount: 25, SessionID: "R2"})
	require.NoError(t, err)
	assert.Equal(t, 25.0, gotBody["amount"])
	assert.Equal(t, "R2", gotBody["sessionId"])
	assert.False(t, resp.Rejected())
	require.NotNil(t, resp.Bet)
	assert.Equal(t, 25.0, *resp.Bet.Amount)
}

func TestCashoutPostsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cashout", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "R3", body["sessionId"])
		w.Write([]byte(`{"success": true, "cashout": {"multiplier": 1.7, "payout": 42, "session_id": "R3"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Cashout(context.Background(), "tok", CashoutRequest{SessionID: "R3"})
	require.NoError(t, err)
	require.NotNil(t, resp.Cashout)
	assert.Equal(t, 1.7, *resp.Cashout.Multiplier)
}

func TestEmptyBodyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchState(context.Background(), "tok")
	assert.NoError(t, err)
}
