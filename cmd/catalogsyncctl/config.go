package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/catalogsync_backend/catalogsync"
	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/pelletier/go-toml/v2"
)

// SyncConfig is the TOML file describing one catalog to reconcile.
type SyncConfig struct {
	Endpoint           string `toml:"endpoint"`
	Token              string `toml:"token"`
	Catalog            string `toml:"catalog"`
	Policy             string `toml:"policy"`
	ConnectionID       uint   `toml:"connection_id"`
	DSN                string `toml:"dsn"`
	RedisAddress       string `toml:"redis_address"`
	PageSize           int    `toml:"page_size"`
	IncludeVolumes     *bool  `toml:"include_volumes"`
	SchemaTemplateGUID string `toml:"schema_template_guid"`
	VolumeTemplateGUID string `toml:"volume_template_guid"`
}

func LoadSyncConfig(path string) (SyncConfig, error) {
	var cfg SyncConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return SyncConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return SyncConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("UC_TOKEN")
	}
	if cfg.RedisAddress == "" {
		cfg.RedisAddress = strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	}
	if err := ValidateSyncConfig(cfg); err != nil {
		return SyncConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func ValidateSyncConfig(cfg SyncConfig) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.Catalog) == "" {
		return fmt.Errorf("catalog is required")
	}
	if cfg.ConnectionID == 0 {
		return fmt.Errorf("connection_id is required")
	}
	if cfg.PageSize < 0 || cfg.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 0 and 1000")
	}
	if _, err := reconcile.ParsePolicy(cfg.Policy); err != nil {
		return err
	}
	return nil
}

func (cfg SyncConfig) settings() catalogsync.SyncSettings {
	settings := catalogsync.DefaultSettings()
	settings.PageSize = cfg.PageSize
	settings.SchemaTemplateGUID = cfg.SchemaTemplateGUID
	settings.VolumeTemplateGUID = cfg.VolumeTemplateGUID
	if cfg.IncludeVolumes != nil {
		settings.IncludeVolumes = *cfg.IncludeVolumes
	}
	return settings
}
