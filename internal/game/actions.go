package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/clients/crashapi"
)

// ActionRejectedError is a server-side business rejection of a bet or
// cashout. It is surfaced to the user once and never retried automatically.
type ActionRejectedError struct {
	Reason string
}

func (e *ActionRejectedError) Error() string {
	if e.Reason == "" {
		return "action rejected by server"
	}
	return "action rejected: " + e.Reason
}

// PlaceBet submits a bet for the current round. Preconditions are checked
// client-side as a fast-fail only; the server re-validates. The pending flag
// is set before the request goes out and cleared on every terminal outcome,
// so duplicate submissions are rejected locally while exactly one request is
// in flight.
func (c *Client) PlaceBet(ctx context.Context, amount float64) error {
	sessionID, err := c.rec.BeginBet(amount)
	if err != nil {
		return err
	}
	defer c.rec.EndAction()

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	resp, err := c.cfg.API.PlaceBet(ctx, token, crashapi.BetRequest{Amount: amount, SessionID: sessionID})
	if err != nil {
		return mapActionError("bet", err)
	}
	c.rec.ApplyActionResponse(resp, sessionID)
	if resp.Rejected() {
		return &ActionRejectedError{Reason: resp.Message}
	}

	log.Info().Float64("amount", amount).Str("session_id", sessionID).Msg("bet placed")
	return nil
}

// Cashout converts the active bet into a payout at the multiplier current at
// server processing time.
func (c *Client) Cashout(ctx context.Context) error {
	sessionID, err := c.rec.BeginCashout()
	if err != nil {
		return err
	}
	defer c.rec.EndAction()

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}

	resp, err := c.cfg.API.Cashout(ctx, token, crashapi.CashoutRequest{SessionID: sessionID})
	if err != nil {
		return mapActionError("cashout", err)
	}
	c.rec.ApplyActionResponse(resp, sessionID)
	if resp.Rejected() {
		return &ActionRejectedError{Reason: resp.Message}
	}

	log.Info().Str("session_id", sessionID).Msg("cashout processed")
	return nil
}

// mapActionError converts non-auth HTTP rejections into ActionRejectedError;
// auth and transport failures propagate typed for the boundary to handle.
func mapActionError(action string, err error) error {
	var statusErr *crashapi.StatusError
	if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 {
		log.Warn().Int("status", statusErr.Status).Str("action", action).Msg("action rejected by server")
		return &ActionRejectedError{Reason: statusErr.Body}
	}
	return fmt.Errorf("%s request: %w", action, err)
}
