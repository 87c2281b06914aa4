package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"hackmarket-backend/internal/api"
	"hackmarket-backend/internal/auth"
	"hackmarket-backend/internal/config"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/store"
	"hackmarket-backend/internal/token"
)

const sessionSweepInterval = time.Minute

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	owner, err := cfg.Owner()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve owner")
	}
	log.Info().Str("owner", owner.Hex()).Msg("starting market backend")

	ledger := token.NewLedger(common.HexToAddress(cfg.TokenAddress), owner)
	if err := ledger.Mint(owner, owner, cfg.MintSupplyUnits); err != nil {
		log.Fatal().Err(err).Msg("failed to mint initial supply")
	}

	factory, err := market.NewFactory(market.FactoryConfig{
		Address:       common.HexToAddress(cfg.FactoryAddress),
		Owner:         owner,
		Token:         ledger,
		SeedLiquidity: cfg.SeedLiquidityUnits,
		MinBet:        cfg.MinBetUnits,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create factory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal := openJournal(ctx, cfg.DatabaseURL)
	defer journal.Close()

	sessions := auth.NewSessionManager(cfg.SessionTTL)
	server := api.NewServer(cfg, factory, ledger, sessions, journal)
	factory.SetEventCallback(server.OnEvent)

	if err := restoreMarkets(ctx, factory, journal, server); err != nil {
		log.Fatal().Err(err).Msg("failed to restore markets from journal")
	}

	if cfg.SeedDefaultProjects && factory.GetMarketCount() == 0 {
		markets, err := factory.BatchCreateMarkets(owner, market.DefaultProjects())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to seed default markets")
		}
		log.Info().Int("count", len(markets)).Msg("seeded default markets")
	}

	watcher := market.NewWatcher(factory, cfg.OddsBroadcastInterval, server.BroadcastOdds)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { return sessions.Run(ctx, sessionSweepInterval) })

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// restoreMarkets replays the journal so durable history and live markets agree
func restoreMarkets(ctx context.Context, factory *market.Factory, journal store.Journal, server *api.Server) error {
	events, err := journal.All(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	if _, err := factory.Restore(events); err != nil {
		return err
	}
	server.LoadHistory(events)
	return nil
}

func openJournal(ctx context.Context, dsn string) store.Journal {
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, market events are kept in memory only")
		return store.NewMemoryJournal()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	journal, err := store.NewPostgresJournal(connectCtx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event journal")
	}
	log.Info().Msg("event journal connected")
	return journal
}
