package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cardtable/server/config"
	"cardtable/server/game"
	"cardtable/server/sim"
	"cardtable/server/store"
	"cardtable/server/table"
	"cardtable/server/transport"
)

// wallet is what the server needs from a chip store: the registry
// settles against it and the HTTP API reads balances from it.
type wallet interface {
	table.Wallet
	transport.Ledger
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardtable",
		Short:         "Multi-seat poker and blackjack table server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), simulateCmd())
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openWallet returns the Postgres wallet when DATABASE_URL is set and an
// in-memory one otherwise.
func openWallet(ctx context.Context, cfg config.Config, log *zap.Logger) (wallet, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, balances live in memory")
		return store.NewMemory(cfg.StartingChips), func() {}, nil
	}
	db, err := store.Open(cfg.DatabaseURL, cfg.StartingChips)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close(ctx)
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			db.Close(ctx)
			return nil, nil, err
		}
		log.Info("migrated")
	}
	return db, func() { db.Close(context.Background()) }, nil
}

func serveCmd() *cobra.Command {
	var reapEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, closeWallet, err := openWallet(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeWallet()

			hub := transport.NewHub(log)
			reg := table.NewRegistry(cfg.Tables(), w, hub, log)
			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           transport.Router(reg, hub, w, log),
				ReadHeaderTimeout: 15 * time.Second,
			}

			go func() {
				t := time.NewTicker(reapEvery)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-t.C:
						if n := reg.Reap(); n > 0 {
							log.Debug("reaped tables", zap.Int("count", n))
						}
					}
				}
			}()

			errc := make(chan error, 1)
			go func() {
				log.Info("listening", zap.String("addr", "http://localhost:"+cfg.Port))
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
			reg.Flush(shutCtx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&reapEvery, "reap-every", time.Minute, "how often empty tables are dropped")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			log, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			db, err := store.Open(cfg.DatabaseURL, cfg.StartingChips)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())
			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("migrated")
			return nil
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		kind  string
		bots  int
		hands int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play bots against each other on a local table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := game.ParseKind(kind)
			if err != nil {
				return err
			}
			cfg := config.Load()
			log, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer log.Sync()
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}

			w := store.NewMemory(cfg.StartingChips)
			r := sim.New(cfg.Tables(), w, log, seed)
			var s sim.Summary
			switch k {
			case game.Poker:
				s, err = r.Poker(cmd.Context(), "sim-poker", bots, hands)
			default:
				s, err = r.Blackjack(cmd.Context(), "sim-blackjack", bots, hands)
			}
			if err != nil {
				return err
			}
			return sim.Render(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "poker", "poker or blackjack")
	cmd.Flags().IntVar(&bots, "bots", 4, "number of bots")
	cmd.Flags().IntVar(&hands, "hands", 50, "hands to play")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "bot seed (0 picks one)")
	return cmd
}
