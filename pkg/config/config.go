// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"sync/atomic"
	"time"

	env "github.com/caarlos0/env"
)

type Config struct {
	PassIntervalMs          int  `env:"PASS_INTERVAL_MS"          envDefault:"1000"  envDocs:"interval between matching passes in milliseconds"`
	ReadyCheckEnable        bool `env:"READY_CHECK_ENABLE"        envDefault:"false" envDocs:"require every matched player to confirm before resolving a game"`
	ReadyCheckTimeoutMs     int  `env:"READY_CHECK_TIMEOUT_MS"    envDefault:"10000" envDocs:"ready check deadline in milliseconds"`
	AcceptRequests          bool `env:"ACCEPT_REQUESTS"           envDefault:"true"  envDocs:"whether the engine accepts new find requests (set false to drain)"`
	TeamCount               int  `env:"TEAM_COUNT"                envDefault:"2"     envDocs:"number of teams per game formed by the default finder"`
	TeamPlayerCount         int  `env:"TEAM_PLAYER_COUNT"         envDefault:"1"     envDocs:"number of players per team formed by the default finder"`
	PrioritizeLongerWaiting bool `env:"PRIORITIZE_LONGER_WAITING" envDefault:"true"  envDocs:"default finder seats parties with more unmatched passes first"`
}

func (c *Config) PassInterval() time.Duration {
	return time.Duration(c.PassIntervalMs) * time.Millisecond
}

func (c *Config) ReadyCheckTimeout() time.Duration {
	return time.Duration(c.ReadyCheckTimeoutMs) * time.Millisecond
}

// FromEnv parses a Config from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Store holds an immutable Config snapshot swapped atomically on reload,
// so a matching pass never observes a partially applied configuration.
type Store struct {
	p atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.p.Store(cfg)
	return s
}

func (s *Store) Load() *Config {
	return s.p.Load()
}

func (s *Store) Swap(cfg *Config) *Config {
	return s.p.Swap(cfg)
}
