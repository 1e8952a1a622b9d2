package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ccbisect/internal/config"
	"ccbisect/internal/slogutil"
	"ccbisect/internal/version"
)

var (
	configPath string
	verbosity  int
	quiet      bool
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "ccbisect",
	Short: "ccbisect - compiler regression bisection",
	Long: `ccbisect locates the commit that introduced or fixed a compiler behavior.

Given a good and a bad revision of GCC or LLVM and a test that judges a
single compiler build, it bisects the first-parent history between them,
reusing cached builds where possible, and reports the verified boundary
commit.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("ccbisect version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase log verbosity")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"Suppress log output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Also write logs to this file")
}

// loadConfig reads the configuration honouring the --config flag.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// newLogger builds the CLI logger from the verbosity flags. The returned
// cleanup closes the log file, if any.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := slogutil.LevelFromVerbosity(verbosity, quiet)
	if verbosity == 0 && !quiet && cfg.Logging.Level != "" {
		level = slogutil.LevelFromString(cfg.Logging.Level)
	}

	path := logFile
	if path == "" {
		path = cfg.Logging.File
	}
	if path != "" {
		logger, f, err := slogutil.NewFileLogger(path, level)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return logger, func() { _ = f.Close() }, nil
	}
	return slogutil.NewLogger(os.Stderr, level), func() {}, nil
}
