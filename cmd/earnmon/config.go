package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	earnconfig "github.com/vultisig/earn/config"
)

type config struct {
	Earn               earnconfig.Config
	Account            string `required:"true"`
	MetricsPort        int    `default:"8899"`
	RefreshIntervalSec int    `default:"30"`
}

func newConfig() (config, error) {
	var cfg config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
