// Package main is the entry point for the ToolHive docs cache.
package main

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-docs-cache/cmd/thv-docs-cache/app"
	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/logging"
)

// getLogLevel reads THV_DOCS_LOG_LEVEL, falling back to LOG_LEVEL
func getLogLevel() string {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if level := v.GetString("LOG_LEVEL"); level != "" {
		return level
	}
	return os.Getenv("LOG_LEVEL")
}

func main() {
	// Logs go to stderr so stdout stays clean for command output
	flush := logging.Setup(logging.Options{Level: logging.ParseLevel(getLogLevel())})

	err := app.NewRootCmd().Execute()
	_ = flush()
	if err != nil {
		os.Exit(1)
	}
}
