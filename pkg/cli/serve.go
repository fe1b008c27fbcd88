package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/doppel-lab/keryx/pkg/cli/config"
	httpctrl "github.com/doppel-lab/keryx/pkg/controller/http"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/doppel-lab/keryx/pkg/service/summary"
	"github.com/doppel-lab/keryx/pkg/service/worker"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/doppel-lab/keryx/pkg/utils/safe"
)

func cmdServe() *cli.Command {
	var addr string
	var configPath string
	var summaryWindow int
	var maintenanceInterval time.Duration
	var escalationTTL time.Duration
	var rateLimitRPS float64
	var rateLimitBurst int
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var notifyCfg config.Notify

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("KERYX_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to TOML application config with agent seeds",
			Sources:     cli.EnvVars("KERYX_CONFIG"),
			Destination: &configPath,
		},
		&cli.IntFlag{
			Name:        "summary-window",
			Usage:       "Messages accumulated before a conversation summary refresh (0 uses the default)",
			Sources:     cli.EnvVars("KERYX_SUMMARY_WINDOW"),
			Destination: &summaryWindow,
		},
		&cli.DurationFlag{
			Name:        "maintenance-interval",
			Usage:       "Interval between background maintenance sweeps",
			Value:       time.Hour,
			Sources:     cli.EnvVars("KERYX_MAINTENANCE_INTERVAL"),
			Destination: &maintenanceInterval,
		},
		&cli.DurationFlag{
			Name:        "escalation-ttl",
			Usage:       "Age after which pending escalations expire (0 disables expiry)",
			Value:       72 * time.Hour,
			Sources:     cli.EnvVars("KERYX_ESCALATION_TTL"),
			Destination: &escalationTTL,
		},
		&cli.FloatFlag{
			Name:        "rate-limit-rps",
			Usage:       "Per-viewer message rate limit in requests per second (0 disables limiting)",
			Value:       1,
			Sources:     cli.EnvVars("KERYX_RATE_LIMIT_RPS"),
			Destination: &rateLimitRPS,
		},
		&cli.IntFlag{
			Name:        "rate-limit-burst",
			Usage:       "Per-viewer message burst size",
			Value:       5,
			Sources:     cli.EnvVars("KERYX_RATE_LIMIT_BURST"),
			Destination: &rateLimitBurst,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			// Load agent seeds before touching any backend so a broken
			// file fails fast
			var appCfg *config.AppConfig
			if configPath != "" {
				cfg, err := config.LoadAppConfiguration(configPath)
				if err != nil {
					return goerr.Wrap(err, "failed to load application configuration")
				}
				appCfg = cfg
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			// Configure the LLM client. Without one the pipeline still
			// runs, but every turn degrades to clarification or escalation.
			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}

			ucOpts := []usecase.Option{
				usecase.WithSummaryWindow(summaryWindow),
			}

			if llmClient != nil {
				recallSvc, err := recall.New(llmClient)
				if err != nil {
					return goerr.Wrap(err, "failed to initialize recall service")
				}
				summarySvc, err := summary.New(llmClient)
				if err != nil {
					return goerr.Wrap(err, "failed to initialize summary service")
				}
				ucOpts = append(ucOpts,
					usecase.WithRecallService(recallSvc),
					usecase.WithSummaryService(summarySvc),
				)
				logger.Info("Gemini client enabled", "gemini", geminiCfg)
			} else {
				logger.Warn("Gemini not configured, answer generation and retrieval are disabled")
			}

			notifySvc, err := notifyCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure slack notification")
			}
			if notifySvc != nil {
				ucOpts = append(ucOpts, usecase.WithNotifyService(notifySvc))
				logger.Info("Slack escalation notifications enabled")
			}

			uc := usecase.New(repo, llmClient, ucOpts...)

			// Upsert seeded agents and their policies
			if appCfg != nil {
				for _, seed := range appCfg.Agents {
					if _, err := uc.Agent.Register(ctx, seed.Agent()); err != nil {
						return goerr.Wrap(err, "failed to register seeded agent",
							goerr.V("agent_id", seed.ID))
					}
					policy, err := seed.Config()
					if err != nil {
						return goerr.Wrap(err, "invalid seeded policy", goerr.V("agent_id", seed.ID))
					}
					if policy != nil {
						if _, err := uc.Config.UpdateConfig(ctx, policy); err != nil {
							return goerr.Wrap(err, "failed to apply seeded policy",
								goerr.V("agent_id", seed.ID))
						}
					}
				}
				logger.Info("Seeded agents registered", "count", len(appCfg.Agents))
			}

			// Start the background maintenance worker
			workerOpts := []worker.WorkerOption{}
			if escalationTTL > 0 {
				workerOpts = append(workerOpts, worker.WithEscalationExpiry(uc.Escalation, escalationTTL))
			}
			maintenance := worker.NewMaintenanceWorker(repo, uc.Consolidate, maintenanceInterval, workerOpts...)
			if err := maintenance.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start maintenance worker")
			}

			// Create HTTP server
			httpOpts := []httpctrl.Options{}
			if rateLimitRPS > 0 {
				httpOpts = append(httpOpts, httpctrl.WithRateLimit(rateLimitRPS, rateLimitBurst))
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr, "backend", repoCfg.Backend())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				// Stop the maintenance worker first
				maintenance.Stop()

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Attempt graceful shutdown
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}
