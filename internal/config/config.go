/*
 *  This file is part of the EGIL SCIM client.
 *
 *  Copyright (C) 2017-2024 Föreningen Sambruk
 *
 *  This program is free software: you can redistribute it and/or modify
 *  it under the terms of the GNU Affero General Public License as
 *  published by the Free Software Foundation, either version 3 of the
 *  License, or (at your option) any later version.

 *  This program is distributed in the hope that it will be useful,
 *  but WITHOUT ANY WARRANTY; without even the implied warranty of
 *  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *  GNU Affero General Public License for more details.

 *  You should have received a copy of the GNU Affero General Public License
 *  along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package config loads one EGIL configuration file with
// github.com/spf13/viper, the way cmd/windermere/main.go does, but as
// an instance per configuration file (the orchestrator processes many
// configuration files per invocation; a package-global viper.GetXxx
// would leak one file's settings into the next).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// TypeConfig holds every per-type configuration key §4 and its
// components reference.
type TypeConfig struct {
	UniqueIdentifier  string
	SCIMEndpoint      string
	Template          string
	Variables         []string
	Threshold         int
	HasThreshold      bool
	ThresholdRelative float64
	HasThresholdRel   bool
	IsGenerated       bool
	IgnoreOrphans     bool
	Plugins           []string
}

// Config is one fully loaded configuration file.
type Config struct {
	v *viper.Viper

	SourceBackend    string
	SourceConnection string

	Cert         string
	Key          string
	PinnedPubKey string
	SCIMURL      string

	SendOrder []string
	Types     map[string]TypeConfig

	GenericThreshold         int
	HasGenericThreshold      bool
	GenericThresholdRelative float64
	HasGenericThresholdRel   bool

	CachePath      string
	AuditLogPath   string
	LockTimeoutSec int
}

// Load reads path (any format viper supports — YAML, TOML, INI, JSON)
// and layers in environment variable overrides, mirroring
// cmd/windermere/main.go's SetConfigFile/ReadInConfig/AutomaticEnv
// sequence, but scoped to a private *viper.Viper so multiple
// configuration files can be loaded in the same process without
// interfering with each other.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := &Config{
		v:                v,
		SourceBackend:    v.GetString("source-backend"),
		SourceConnection: v.GetString("source-connection"),
		Cert:             v.GetString("cert"),
		Key:              v.GetString("key"),
		PinnedPubKey:     v.GetString("pinnedpubkey"),
		SCIMURL:          v.GetString("scim-url"),
		SendOrder:        v.GetStringSlice("scim-type-send-order"),
		CachePath:        v.GetString("cache-file"),
		AuditLogPath:     v.GetString("audit-log"),
		LockTimeoutSec:   v.GetInt("lock-timeout"),
	}

	if v.IsSet("Object-threshold") {
		cfg.GenericThreshold = v.GetInt("Object-threshold")
		cfg.HasGenericThreshold = true
	}
	if v.IsSet("Object-threshold-relative") {
		cfg.GenericThresholdRelative = v.GetFloat64("Object-threshold-relative")
		cfg.HasGenericThresholdRel = true
	}

	cfg.Types = make(map[string]TypeConfig, len(cfg.SendOrder))
	for _, typ := range cfg.SendOrder {
		cfg.Types[typ] = cfg.loadTypeConfig(typ)
	}

	return cfg, nil
}

func (c *Config) loadTypeConfig(typ string) TypeConfig {
	v := c.v
	key := func(suffix string) string { return typ + "-" + suffix }

	tc := TypeConfig{
		UniqueIdentifier: v.GetString(key("unique-identifier")),
		SCIMEndpoint:     v.GetString(key("scim-url-endpoint")),
		Template:         v.GetString(key("scim-json-template")),
		Variables:        v.GetStringSlice(key("scim-variables")),
		IsGenerated:      v.GetBool(key("is-generated")),
		IgnoreOrphans:    v.GetBool(key("ignore-orphan-relations")),
		Plugins:          v.GetStringSlice(key("plugins")),
	}

	if v.IsSet(key("threshold")) {
		tc.Threshold = v.GetInt(key("threshold"))
		tc.HasThreshold = true
	}
	if v.IsSet(key("threshold-relative")) {
		tc.ThresholdRelative = v.GetFloat64(key("threshold-relative"))
		tc.HasThresholdRel = true
	}

	return tc
}

// Raw exposes the underlying viper instance for loader/generator
// packages that need configuration keys this struct doesn't surface
// directly (e.g. a generator's relation-specific recipe keys).
func (c *Config) Raw() *viper.Viper {
	return c.v
}
