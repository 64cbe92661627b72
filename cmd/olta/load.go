package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/olta-dev/olta/internal/config"
)

// loadConfig reads the --config file (or olta.yaml if present) and applies
// the environment. Callers apply their own flags afterwards and validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(config.DefaultFileName)
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}
