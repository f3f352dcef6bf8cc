// Config loading for the tally CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tally/internal/paths"
	"github.com/mesh-intelligence/tally/pkg/types"
)

// Keys read from config.yaml.
const (
	cfgKeyBackend       = "backend"
	cfgKeyDataDir       = "data_dir"
	cfgKeyLogLevel      = "log_level"
	cfgKeyMetaStore     = "meta_store"
	cfgKeySyncStrategy  = "sqlite.sync_strategy"
	cfgKeyBatchSize     = "sqlite.batch_size"
	cfgKeyBatchInterval = "sqlite.batch_interval"
	cfgKeyRedisAddr     = "redis.addr"
	cfgKeyRedisDB       = "redis.db"
	cfgKeyRedisPassword = "redis.password"
	cfgKeyRedisPrefix   = "redis.key_prefix"
)

// fileConfig is config.yaml: the backend Config plus CLI-only settings.
type fileConfig struct {
	types.Config `yaml:",inline"`
	LogLevel     string `yaml:"log_level,omitempty"`
}

// loadConfig reads config.yaml from configDir. A missing file yields the
// defaults. Redis address and password may also come from TALLY_REDIS_ADDR
// and TALLY_REDIS_PASSWORD, which override the file.
func loadConfig(configDir string) (fileConfig, error) {
	v := viper.New()
	v.SetConfigFile(paths.ConfigFile(configDir))
	v.SetConfigType("yaml")
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyMetaStore, types.MetaStoreSQLite)
	v.SetDefault(cfgKeySyncStrategy, types.SyncImmediate)
	_ = v.BindEnv(cfgKeyRedisAddr, "TALLY_REDIS_ADDR")
	_ = v.BindEnv(cfgKeyRedisPassword, "TALLY_REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fileConfig{}, fmt.Errorf("reading %s: %w", v.ConfigFileUsed(), err)
	}

	fc := fileConfig{
		Config: types.Config{
			Backend:   v.GetString(cfgKeyBackend),
			DataDir:   v.GetString(cfgKeyDataDir),
			MetaStore: v.GetString(cfgKeyMetaStore),
			SQLite: types.SQLiteConfig{
				SyncStrategy:  v.GetString(cfgKeySyncStrategy),
				BatchSize:     v.GetInt(cfgKeyBatchSize),
				BatchInterval: v.GetInt(cfgKeyBatchInterval),
			},
			Redis: types.RedisConfig{
				Addr:      v.GetString(cfgKeyRedisAddr),
				DB:        v.GetInt(cfgKeyRedisDB),
				Password:  v.GetString(cfgKeyRedisPassword),
				KeyPrefix: v.GetString(cfgKeyRedisPrefix),
			},
		},
		LogLevel: v.GetString(cfgKeyLogLevel),
	}
	if err := fc.Validate(); err != nil {
		return fileConfig{}, userError{fmt.Errorf("invalid %s: %w", v.ConfigFileUsed(), err)}
	}
	return fc, nil
}

// defaultFileConfig is what init writes when no config.yaml exists.
func defaultFileConfig(dataDir string) fileConfig {
	return fileConfig{
		Config: types.Config{
			Backend:   types.BackendSQLite,
			DataDir:   dataDir,
			MetaStore: types.MetaStoreSQLite,
			SQLite: types.SQLiteConfig{
				SyncStrategy: types.SyncImmediate,
			},
		},
		LogLevel: "error",
	}
}

// writeConfigIfMissing creates config.yaml unless it exists and reports
// whether it wrote the file.
func writeConfigIfMissing(path string, fc fileConfig) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return false, fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
