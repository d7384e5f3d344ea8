package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/pipeline"
)

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the shipper pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cfgFile, logLevel)
		},
	}

	// Ingestor flags
	cmd.Flags().Bool("stdin", false, "enable stdin ingestor")
	cmd.Flags().StringSlice("file", nil, "file paths to tail (enables file ingestor)")
	cmd.Flags().Bool("journal", false, "enable systemd journal ingestor")

	// Hot-reload flag
	cmd.Flags().Bool("hot-reload", true, "enable hot-reload of config file")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := SetupLogging(effectiveLogLevel(cmd, *logLevel, cfg.LogLevel))

	applyCLIOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// New acquires the initial access token; a bad credential stops us here.
	p, err := pipeline.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	log.Infof("starting shipper: ingestors=%d, endpoint_host=%s, stream=%s",
		p.IngestorCount(), cfg.Azure.EndpointHost, cfg.Azure.StreamName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	hotReloadEnabled, _ := cmd.Flags().GetBool("hot-reload")
	if *cfgFile != "" && hotReloadEnabled {
		startConfigWatcher(ctx, cmd, cfgFile, p, log)
	}

	go handleSignals(cancel, sigChan, cmd, cfgFile, p, log)

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("pipeline error: %w", err)
	}

	log.Info("shipper stopped")
	return nil
}

func startConfigWatcher(ctx context.Context, cmd *cobra.Command, cfgFile *string, p *pipeline.Pipeline, log logger.ILogger) {
	watcher := config.NewConfigWatcher(*cfgFile, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", *cfgFile)

	go func() {
		for {
			select {
			case newCfg := <-watcher.Changes():
				applyCLIOverrides(cmd, newCfg)
				if err := p.Reconfigure(newCfg); err != nil {
					log.Errorf("reconfigure failed: %v", err)
				}
			case err := <-watcher.Errors():
				log.Errorf("config watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func handleSignals(cancel context.CancelFunc, sigChan <-chan os.Signal, cmd *cobra.Command, cfgFile *string, p *pipeline.Pipeline, log logger.ILogger) {
	for sig := range sigChan {
		switch sig {
		case syscall.SIGHUP:
			log.Info("received SIGHUP, reloading config")
			newCfg, err := config.Load(*cfgFile)
			if err != nil {
				log.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := newCfg.Validate(); err != nil {
				log.Errorf("reloaded config is invalid, keeping previous: %v", err)
				continue
			}
			applyCLIOverrides(cmd, newCfg)
			if err := p.Reconfigure(newCfg); err != nil {
				log.Errorf("reconfigure failed: %v", err)
			}

		case syscall.SIGINT, syscall.SIGTERM:
			log.Infof("received shutdown signal: %v", sig)
			cancel()
			// A second interrupt skips the graceful drain.
			for sig := range sigChan {
				if sig == syscall.SIGINT || sig == syscall.SIGTERM {
					log.Warningf("received %v during shutdown, exiting now", sig)
					os.Exit(1)
				}
			}
			return
		}
	}
}

func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("stdin"); v {
		cfg.Ingestors.Stdin.Enabled = true
	}
	if v, _ := cmd.Flags().GetBool("journal"); v {
		cfg.Ingestors.Journal.Enabled = true
	}
	if files, _ := cmd.Flags().GetStringSlice("file"); len(files) > 0 {
		cfg.Ingestors.File.Enabled = true
		cfg.Ingestors.File.Paths = files
	}
}
