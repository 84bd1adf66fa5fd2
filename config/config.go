package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ChainID   uint64 `default:"1"`
	Rpc       Rpc
	Contracts Contracts
	Asset     Asset
	Session   Session
}

type Rpc struct {
	URL string `required:"true"`
}

type Contracts struct {
	Vault      string `required:"true"`
	PoolRouter string `required:"true"`
	PoolPair   string `required:"true"`
	AssetToken string `required:"true"`
	ShareToken string `required:"true"`
}

type Asset struct {
	Symbol   string `default:"USDS"`
	Decimals int    `default:"18"`
}

type Session struct {
	DebounceMs       int  `default:"400"`
	RefreshTimeoutMs int  `default:"10000"`
	HistorySize      int  `default:"32"`
	BatchOptIn       bool `default:"true"`

	// ReferenceAmount is in display units of the asset, converted with the
	// configured decimals at wiring time.
	ReferenceAmount string `default:"1"`
}

func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
