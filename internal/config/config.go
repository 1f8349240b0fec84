/*
Copyright 2025 Opal Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config handles configuration loading for the engine: the planner
// settings and the logging setup, from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opaldb/opal/internal/sql"
)

// Config holds all configuration for the engine.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
}

// EngineConfig holds the planner and executor switches.
type EngineConfig struct {
	OptimizeInsertFromSelect      bool `mapstructure:"optimize_insert_from_select"`
	OptimizeDistinct              bool `mapstructure:"optimize_distinct"`
	OptimizeEvaluatableSubqueries bool `mapstructure:"optimize_evaluatable_subqueries"`
	SelectForUpdateMvcc           bool `mapstructure:"select_for_update_mvcc"`
	MVStore                       bool `mapstructure:"mv_store"`
	CaseInsensitiveIdentifiers    bool `mapstructure:"case_insensitive_identifiers"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func defaultConfig() *Config {
	s := sql.DefaultSettings()
	return &Config{
		Engine: EngineConfig{
			OptimizeInsertFromSelect:      s.OptimizeInsertFromSelect,
			OptimizeDistinct:              s.OptimizeDistinct,
			OptimizeEvaluatableSubqueries: s.OptimizeEvaluatableSubqueries,
			SelectForUpdateMvcc:           s.SelectForUpdateMvcc,
			MVStore:                       s.MVStore,
			CaseInsensitiveIdentifiers:    s.CaseInsensitiveIdentifiers,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from an optional file and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("engine.optimize_insert_from_select", cfg.Engine.OptimizeInsertFromSelect)
	v.SetDefault("engine.optimize_distinct", cfg.Engine.OptimizeDistinct)
	v.SetDefault("engine.optimize_evaluatable_subqueries", cfg.Engine.OptimizeEvaluatableSubqueries)
	v.SetDefault("engine.select_for_update_mvcc", cfg.Engine.SelectForUpdateMvcc)
	v.SetDefault("engine.mv_store", cfg.Engine.MVStore)
	v.SetDefault("engine.case_insensitive_identifiers", cfg.Engine.CaseInsensitiveIdentifiers)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)

	v.SetEnvPrefix("OPAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("opal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.opal")
		v.AddConfigPath("/etc/opal")
		// No config file is fine, defaults apply.
		_ = v.ReadInConfig()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that Unmarshal cannot.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	return nil
}

// Settings converts the engine section into the database settings struct.
func (c *Config) Settings() sql.Settings {
	return sql.Settings{
		OptimizeInsertFromSelect:      c.Engine.OptimizeInsertFromSelect,
		OptimizeDistinct:              c.Engine.OptimizeDistinct,
		OptimizeEvaluatableSubqueries: c.Engine.OptimizeEvaluatableSubqueries,
		SelectForUpdateMvcc:           c.Engine.SelectForUpdateMvcc,
		MVStore:                       c.Engine.MVStore,
		CaseInsensitiveIdentifiers:    c.Engine.CaseInsensitiveIdentifiers,
	}
}
