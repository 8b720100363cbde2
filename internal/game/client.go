package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/clients/crashapi"
	"github.com/avialab/crashsync/internal/protocol"
	"github.com/avialab/crashsync/internal/round"
	"github.com/avialab/crashsync/internal/transport"
)

// API is the slice of the crash REST surface the client uses.
type API interface {
	FetchState(ctx context.Context, token string) (protocol.Snapshot, error)
	PlaceBet(ctx context.Context, token string, req crashapi.BetRequest) (protocol.ActionResponse, error)
	Cashout(ctx context.Context, token string, req crashapi.CashoutRequest) (protocol.ActionResponse, error)
}

// Relay receives every normalized event, e.g. the NATS republisher. Optional.
type Relay interface {
	Publish(ev protocol.Event)
}

// Config wires the client's collaborators.
type Config struct {
	Channel    *transport.Channel
	API        API
	Tokens     TokenSource
	Store      Store
	Relay      Relay
	Clock      clockwork.Clock
	GrowthRate float64
	InitData   string
}

// Client is the orchestrating consumer: it owns the channel, the REST client
// and the reconciler, serializes all state mutation onto one consuming
// goroutine, and exposes the read model for renderers and the bet/cashout
// entry points for the UI.
type Client struct {
	cfg    Config
	rec    *round.Reconciler
	engine *round.MultiplierEngine
}

func New(cfg Config) (*Client, error) {
	if cfg.API == nil {
		return nil, errors.New("game: API client is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("game: token source is required")
	}
	if cfg.Store == nil {
		cfg.Store = NopStore{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:    cfg,
		rec:    round.NewReconciler(),
		engine: round.NewMultiplierEngine(cfg.GrowthRate, cfg.Clock),
	}, nil
}

// Run connects, seeds state from the REST snapshot and consumes socket events
// until the context is cancelled or the connection drops. A dropped
// connection returns transport.ErrDisconnected; the round state survives so
// the owner can Run again and let the next snapshot+sync re-establish truth.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.Channel == nil {
		return errors.New("game: channel is required")
	}

	token, err := c.cfg.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	c.cfg.Store.SetAuthToken(token)

	if err := c.cfg.Channel.Connect(ctx, transport.Credentials{Token: token, InitData: c.cfg.InitData}); err != nil {
		return err
	}
	c.rec.SetConnected(true)
	defer func() {
		c.cfg.Channel.Close()
		c.rec.SetConnected(false)
	}()

	// The snapshot fetch runs beside the live stream; the overlay merge makes
	// the race safe regardless of which side lands first.
	go func() {
		snap, err := c.cfg.API.FetchState(ctx, token)
		if err != nil {
			log.Error().Err(err).Msg("state snapshot fetch failed")
			return
		}
		c.rec.ApplySnapshot(snap)
		if total, ok := snap.Balance.ResolveTotal(); ok {
			c.cfg.Store.SetBalance(total)
		}
	}()

	msgs := c.cfg.Channel.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-msgs:
			if !ok {
				c.rec.SetConnected(false)
				return transport.ErrDisconnected
			}
			c.handleMessage(raw)
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	ev, err := protocol.Normalize(raw)
	if err != nil {
		c.rec.NoteDecodeFailure()
		log.Warn().Err(err).Msg("dropping undecodable message")
		return
	}

	// A top-level error is a one-shot notice; whatever state the payload
	// carries alongside it is not trusted.
	if ev.Error != "" {
		log.Warn().Str("type", ev.Type).Str("server_error", ev.Error).Msg("server reported error")
		return
	}

	c.rec.Apply(ev)

	if ev.Type == protocol.TypeAuthSuccess && ev.AuthUser != nil {
		c.cfg.Store.SetUser(*ev.AuthUser)
	}
	if total, ok := ev.Balance.ResolveTotal(); ok {
		c.cfg.Store.SetBalance(total)
	} else if ev.User != nil && ev.User.Balance != nil {
		c.cfg.Store.SetBalance(*ev.User.Balance)
	}

	if c.cfg.Relay != nil {
		c.cfg.Relay.Publish(ev)
	}
}

// SendChat sends a lobby chat message over the socket.
func (c *Client) SendChat(message string) error {
	if c.cfg.Channel == nil {
		return transport.ErrDisconnected
	}
	return c.cfg.Channel.Send(transport.NewChatMessage(message))
}

// View is the renderer read model: a plain value decoupled from any rendering
// cadence.
type View struct {
	Phase       protocol.Phase
	Multiplier  float64
	SessionID   string
	UserBet     *float64
	UserCashout *float64
	Balance     float64
	Connected   bool
}

// View returns the current read model, with the multiplier computed at the
// engine clock's current time.
func (c *Client) View() View {
	s := c.rec.State()
	balance, _ := s.Balance.Resolve()
	return View{
		Phase:       s.Round.Phase,
		Multiplier:  c.engine.Current(s.Round),
		SessionID:   s.Round.SessionID,
		UserBet:     s.User.BetAmount,
		UserCashout: s.User.CashoutMultiplier,
		Balance:     balance,
		Connected:   s.Connected,
	}
}

// State exposes the full reconciled state.
func (c *Client) State() round.State {
	return c.rec.State()
}

// History returns the bounded session history feed.
func (c *Client) History() []protocol.HistoryEntry {
	return c.rec.History()
}

// ChatMessages returns the bounded chat feed.
func (c *Client) ChatMessages() []protocol.ChatMessage {
	return c.rec.ChatMessages()
}

// Stats returns reconciliation counters.
func (c *Client) Stats() round.Stats {
	return c.rec.Stats()
}
