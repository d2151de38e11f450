// Copyright 2026 The driftfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the machine configuration file: this machine's
// identity and mode, the address its lock HTTP service binds to, and the
// set of peers it knows about.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MachineMode distinguishes a development workstation, which actively
// mutates projects, from a backup machine, which only mirrors them.
type MachineMode string

const (
	ModeDevelopment MachineMode = "development"
	ModeBackup      MachineMode = "backup"
)

func (m MachineMode) valid() bool {
	switch m {
	case ModeDevelopment, ModeBackup:
		return true
	default:
		return false
	}
}

// MachineConfig identifies this machine within the cluster.
type MachineConfig struct {
	Name     string      `mapstructure:"name"`
	Mode     MachineMode `mapstructure:"mode"`
	Endpoint string      `mapstructure:"endpoint"`
}

// PeerConfig describes how to reach one other cluster member.
type PeerConfig struct {
	// Command is a shell command template used for an out-of-band
	// reachability probe (e.g. an SSH round trip). It is not required for
	// lock correctness.
	Command string `mapstructure:"command"`
	// Endpoint is the peer's lock HTTP service address, e.g. "10.0.0.2:9000".
	Endpoint string `mapstructure:"endpoint"`
}

// Config is the full parsed configuration file.
type Config struct {
	Machine MachineConfig         `mapstructure:"machine"`
	Network map[string]PeerConfig `mapstructure:"network"`
}

// Load reads and parses the TOML configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Machine.Name == "" {
		return fmt.Errorf("machine.name is required")
	}
	if !c.Machine.Mode.valid() {
		return fmt.Errorf("machine.mode must be %q or %q, got %q", ModeDevelopment, ModeBackup, c.Machine.Mode)
	}
	if c.Machine.Endpoint == "" {
		return fmt.Errorf("machine.endpoint is required")
	}
	for name, peer := range c.Network {
		if peer.Endpoint == "" {
			return fmt.Errorf("network.%s.endpoint is required", name)
		}
	}
	return nil
}
