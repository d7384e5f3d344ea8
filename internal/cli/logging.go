package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// SetupLogging builds the process logger. Output goes to stderr, keeping
// stdout free for the shell; the logger is also installed as the default
// and context fallback so code without an injected logger still reports.
func SetupLogging(level string) logger.ILogger {
	log := logger.NewConsoleLogger(os.Stderr)

	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(logger.LevelTrace)
	case "debug":
		log.SetLevel(logger.LevelDebug)
	case "warn", "warning":
		log.SetLevel(logger.LevelWarning)
	case "error":
		log.SetLevel(logger.LevelError)
	default:
		log.SetLevel(logger.LevelInfo)
	}

	logger.SetDefaultLogger(log)
	logger.SetCtxFallbackLogger(log)

	return log
}

// effectiveLogLevel resolves the level to run with. An explicit --log-level
// flag wins over the config file's log_level, which wins over the default.
func effectiveLogLevel(cmd *cobra.Command, flagLevel, cfgLevel string) string {
	if cmd.Flags().Changed("log-level") || cfgLevel == "" {
		return flagLevel
	}
	return cfgLevel
}
