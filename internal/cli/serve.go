package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mergegate/internal/flags"
	"mergegate/internal/server"
)

var serveLogFormat string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Long: `Run the webhook server that evaluates policy rules in response to GitHub
events.

The server listens for pull request, check run, status, push, issue comment,
and installation events, acknowledges each delivery immediately, and runs the
evaluation on background workers.

Environment:
	GITHUB_TOKEN              GitHub access token used for API calls (required)
	MERGEGATE_WEBHOOK_SECRET  Secret used to verify webhook signatures (required)

Examples:
	export GITHUB_TOKEN="<your_token>"
	export MERGEGATE_WEBHOOK_SECRET="<your_secret>"
	mergegate serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg.LoadEnv()
		if err := cfg.ValidateServe(); err != nil {
			return err
		}
		setupLogging(serveLogFormat, cfg.GitHub.Verbose)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(ctx, cfg)
		if err != nil {
			return err
		}

		// Expired external_status waits must fail even if their dependencies
		// never report again.
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					eng.orchestrator.SweepExpired(ctx)
				}
			}
		}()

		srv := server.New(eng.orchestrator, cfg.Server.WebhookSecret)
		httpSrv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("listening", "addr", cfg.Server.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		srv.Wait()
		return nil
	},
}

// setupLogging installs the process-wide logger. The server defaults to JSON
// so log pipelines can parse it; text is for running locally.
func setupLogging(format string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&cfg.Server.Addr, flags.FlagAddr, cfg.Server.Addr, "Listen address")
	serveCmd.Flags().DurationVar(&cfg.Policy.CacheTTL, flags.FlagCacheTTL, cfg.Policy.CacheTTL, "How long loaded rule documents and git trees are reused")
	serveCmd.Flags().StringVar(&cfg.Engine.CheckPrefix, flags.FlagCheckPrefix, cfg.Engine.CheckPrefix, "Namespace prefix for the status checks this engine writes")
	serveCmd.Flags().IntVar(&cfg.Engine.BatchSize, flags.FlagBatchSize, cfg.Engine.BatchSize, "Concurrent evaluations per batch during branch-wide sweeps")
	serveCmd.Flags().DurationVar(&cfg.Engine.BatchDelay, flags.FlagBatchDelay, cfg.Engine.BatchDelay, "Pause between sweep batches")
	serveCmd.Flags().IntVar(&cfg.Engine.RetryMax, flags.FlagRetryMax, cfg.Engine.RetryMax, "Maximum retries for a failed GitHub API call")
	serveCmd.Flags().DurationVar(&cfg.Engine.RetryBaseDelay, flags.FlagRetryDelay, cfg.Engine.RetryBaseDelay, "Base delay for retry backoff")
	serveCmd.Flags().StringVar(&serveLogFormat, flags.FlagLogFormat, "json", "Log format: json|text")
}
