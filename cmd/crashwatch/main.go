package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avialab/crashsync/clients/crashapi"
	"github.com/avialab/crashsync/internal/config"
	"github.com/avialab/crashsync/internal/game"
	"github.com/avialab/crashsync/internal/protocol"
	"github.com/avialab/crashsync/internal/relay"
	"github.com/avialab/crashsync/internal/transport"
)

// crashwatch connects to a crash game server, follows the round lifecycle and
// logs phase transitions and the live multiplier. It is the integration
// harness for the sync core.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	channelCfg := transport.DefaultConfig(cfg.WSURL)
	channelCfg.HeartbeatInterval = time.Duration(cfg.HeartbeatInterval)
	channel := transport.NewChannel(channelCfg)

	gameCfg := game.Config{
		Channel:    channel,
		API:        crashapi.NewClient(cfg.APIBase),
		Tokens:     game.StaticToken(cfg.AuthToken),
		Store:      &logStore{},
		GrowthRate: cfg.GrowthRate,
		InitData:   cfg.InitData,
	}

	if cfg.NATSURL != "" {
		relayCfg := relay.DefaultConfig()
		relayCfg.URL = cfg.NATSURL
		publisher, err := relay.NewPublisher(relayCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event relay")
		}
		defer publisher.Close()
		gameCfg.Relay = publisher
	}

	client, err := game.New(gameCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build game client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchRounds(ctx, client)

	// The channel never reconnects on its own; re-issue Run after a drop and
	// let the snapshot fetch plus sync event re-establish truth.
	for {
		err := client.Run(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("crashwatch shutting down")
			return
		}
		if errors.Is(err, transport.ErrDisconnected) {
			log.Warn().Msg("connection dropped, reconnecting")
		} else {
			log.Error().Err(err).Msg("client stopped, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// watchRounds logs the read model once a second, the way a renderer would
// poll it each frame.
func watchRounds(ctx context.Context, client *game.Client) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastPhase protocol.Phase
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view := client.View()
			if view.Phase != lastPhase {
				log.Info().
					Str("phase", string(view.Phase)).
					Str("session_id", view.SessionID).
					Float64("balance", view.Balance).
					Msg("phase changed")
				lastPhase = view.Phase
			}
			if view.Phase == protocol.PhaseFlying {
				log.Info().Float64("multiplier", view.Multiplier).Msg("flying")
			}
		}
	}
}

// logStore stands in for the app-wide persistent store collaborator.
type logStore struct{}

func (s *logStore) SetBalance(total float64) {
	log.Debug().Float64("balance", total).Msg("store: balance updated")
}

func (s *logStore) SetUser(user protocol.UserInfo) {
	log.Debug().Str("user_id", user.ID).Str("username", user.Username).Msg("store: user updated")
}

func (s *logStore) SetAuthToken(string) {
	log.Debug().Msg("store: auth token updated")
}
