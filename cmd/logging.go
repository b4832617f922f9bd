package cmd

import (
	"io"

	"github.com/spf13/viper"

	logpkg "flowboard/internal/log"
)

// configureLogging installs the global logger from log_level and log_format.
func configureLogging(w io.Writer) error {
	levelStr := viper.GetString("log_level")
	lvl, err := logpkg.ParseLevel(levelStr)
	logger := logpkg.New(lvl, logpkg.ParseFormat(viper.GetString("log_format")), w)
	if err != nil {
		// Fallback to info but record the issue at warn level
		logger.Warn("invalid log level requested, using info", "requested", levelStr, "error", err)
	}
	logpkg.SetGlobal(logger)
	return nil
}
