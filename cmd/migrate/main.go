// Command migrate applies the booking audit schema. It is the container
// entrypoint form of `wizardctl migrate`: no arguments runs `up`, and
// `migrate force <version>` clears a dirty schema.
package main

import (
	"os"

	"github.com/wolfman30/medspa-booking-wizard/internal/cli"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
	"github.com/wolfman30/medspa-booking-wizard/pkg/logging"
)

func main() {
	loadErr := appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if loadErr != nil {
		logger.Warn("failed to load .env", "error", loadErr)
	}

	root := cli.NewRoot(&cli.Env{Config: cfg, Logger: logger})
	root.SetArgs(migrateArgs(os.Args[1:]))
	if err := root.Execute(); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func migrateArgs(args []string) []string {
	if len(args) == 0 {
		args = []string{"up"}
	}
	return append([]string{"migrate"}, args...)
}
