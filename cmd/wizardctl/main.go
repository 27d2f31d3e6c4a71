package main

import (
	"fmt"
	"os"

	"github.com/wolfman30/medspa-booking-wizard/internal/cli"
	appconfig "github.com/wolfman30/medspa-booking-wizard/internal/config"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := cli.NewRoot(&cli.Env{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
