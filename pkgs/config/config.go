// Package config loads the bootstrap configuration for the command
// station process: the handful of startup defaults that seed the
// persisted layout configuration (pkgs/configstore) the very first
// time the data directory is initialised.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Engine holds the startup defaults for the signal engine. The booster
// fields are copied into the layout config store (pkgs/configstore,
// INI-backed) the first time it is created, after which the store is
// authoritative for them; DataDir, RailComEnabled and DCCAEnabled are
// read from here on every start and are not persisted.
type Engine struct {
	DataDir string

	TargetVoltage01V  uint16 // 0.1V units, e.g. 160 = 16.0V
	ProgramVoltage01V uint16
	MaxCurrentMA      uint16
	ShortTimeMs       uint16
	InrushTimeMs      uint16

	LocoPurgeMinutes uint16

	RailComEnabled bool
	DCCAEnabled    bool
}

// Configuration is the top-level bootstrap configuration.
type Configuration struct {
	Engine   Engine
	LogLevel string
}

// NewConfig reads ".railcore.yaml" from $HOME and the working directory,
// applying defaults for anything missing. Mirrors the load pattern used
// throughout this codebase: a viper instance, defaults set before
// ReadInConfig, then Unmarshal into a typed struct.
func NewConfig() (*Configuration, error) {
	config := Configuration{}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName(".railcore")
	v.AddConfigPath("$HOME/")
	v.AddConfigPath(".")
	_ = v.SafeWriteConfig()

	v.SetDefault("logLevel", "info")
	v.SetDefault("engine.dataDir", ".")
	v.SetDefault("engine.targetVoltage01V", 160)
	v.SetDefault("engine.programVoltage01V", 160)
	v.SetDefault("engine.maxCurrentMA", 3000)
	v.SetDefault("engine.shortTimeMs", 100)
	v.SetDefault("engine.inrushTimeMs", 100)
	v.SetDefault("engine.locoPurgeMinutes", 120)
	v.SetDefault("engine.railComEnabled", true)
	v.SetDefault("engine.dccaEnabled", false)

	if err := v.ReadInConfig(); err != nil {
		return &Configuration{}, fmt.Errorf("cannot parse config: %s", err.Error())
	}
	if err := v.Unmarshal(&config); err != nil {
		return &config, fmt.Errorf("cannot parse config: %s", err.Error())
	}

	return &config, nil
}
