// Copyright 2025-2026 Patrick J. Scruggs
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

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pjscruggs/slogex"
)

const envPrefix = "SLOGEX_DEMO"

// demoConfig is the resolved flag and environment configuration.
type demoConfig struct {
	Mode        string  `mapstructure:"mode"`
	Verbosity   int     `mapstructure:"verbosity"`
	WindowHours float64 `mapstructure:"window-hours"`
	LogFile     string  `mapstructure:"log-file"`
	LogMaxSize  int     `mapstructure:"log-max-size"`
	Addr        string  `mapstructure:"addr"`
	TTLHours    float64 `mapstructure:"ttl-hours"`
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

func loadConfig(cmd *cobra.Command) (demoConfig, error) {
	v, err := newViper(cmd)
	if err != nil {
		return demoConfig{}, err
	}
	var cfg demoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return demoConfig{}, fmt.Errorf("decode configuration: %w", err)
	}
	return cfg, nil
}

// engineOptions translates cfg into engine options. The returned cleanup
// closes the rotating log file when one is configured.
func engineOptions(cfg demoConfig, side slogex.Side, out io.Writer) ([]slogex.Option, func() error, error) {
	opts := []slogex.Option{
		slogex.WithSide(side),
		slogex.WithVerbosity(cfg.Verbosity),
	}
	if cfg.Mode != "" {
		mode, err := slogex.ParseMode(cfg.Mode)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, slogex.WithMode(mode))
	}
	if cfg.WindowHours > 0 {
		opts = append(opts, slogex.WithWindowHours(cfg.WindowHours))
	}

	cleanup := func() error { return nil }
	if cfg.LogFile != "" {
		rolling := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: 3,
			Compress:   true,
		}
		opts = append(opts, slogex.WithDisplayWriter(io.MultiWriter(out, rolling)))
		cleanup = rolling.Close
	} else {
		opts = append(opts, slogex.WithDisplayWriter(out))
	}
	return opts, cleanup, nil
}

func addEngineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("mode", "", "runtime mode: development or production (detected when empty)")
	flags.Int("verbosity", 5, "maximum verbosity echoed to the display")
	flags.Float64("window-hours", 0, "transient record window in hours")
	flags.String("log-file", "", "also write display output to this rotating file")
	flags.Int("log-max-size", 10, "rotate the log file after this many megabytes")
}
