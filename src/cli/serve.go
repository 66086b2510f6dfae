package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"places_bot/src/bot"
	"places_bot/src/dialog"
	"places_bot/src/handlers"
	"places_bot/src/ratelimit"
)

const (
	shutdownTimeout = 5 * time.Second
	limiterIdleTTL  = 10 * time.Minute
)

type ServeOptions struct {
	*RootOptions
	Listen    string
	NoRefresh bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh the places table, then run the HTTP API and the Telegram bot",
		Long: `Reloads the places table from Geoapify (unless disabled), then serves the
HTTP API and, when a token is configured, the Telegram bot until SIGINT or
SIGTERM.

Example:
  placesbot serve --listen :8080
  PLACES_TELEGRAM_TOKEN=123:abc placesbot serve -c /etc/placesbot.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP listen address (overrides listen)")
	cmd.Flags().BoolVar(&opts.NoRefresh, "no-refresh", false, "skip the startup refresh")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log := opts.cfg, opts.log
	a, err := openApp(ctx, opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("error closing store", "err", err)
		}
	}()

	if cfg.RefreshOnStart && !opts.NoRefresh {
		// The previous table keeps serving when the source is unreachable.
		if _, err := a.refresher.Run(ctx); err != nil {
			log.Warn("startup refresh failed, serving existing places", "err", err)
		}
	}

	listen := cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	srv := &http.Server{
		Addr: listen,
		Handler: handlers.NewRouter(a.store, log, handlers.RouterOptions{
			Limiter:    ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, limiterIdleTTL),
			OnThrottle: func() { a.metrics.Throttled("http") },
			Metrics:    a.metrics.Handler(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http api listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Telegram.Token == "" {
		log.Warn("no telegram token configured, bot disabled")
	} else {
		engine := dialog.New(a.store, log,
			dialog.WithTTL(cfg.Telegram.SessionTTL.Duration),
			dialog.WithHooks(dialog.Hooks{Started: a.metrics.DialogStarted}),
		)
		b, err := bot.New(bot.Options{
			Token:       cfg.Telegram.Token,
			PollTimeout: cfg.Telegram.PollTimeout.Duration,
			Limiter:     ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, limiterIdleTTL),
			OnThrottle:  func() { a.metrics.Throttled("telegram") },
		}, engine, log)
		if err != nil {
			stop()
			return errors.Join(err, g.Wait())
		}
		g.Go(func() error {
			return b.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("shut down")
	return err
}
