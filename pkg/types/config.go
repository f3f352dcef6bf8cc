package types

import "errors"

// Config holds backend selection and parameters for Backend.Attach.
type Config struct {
	Backend   string       `json:"backend" yaml:"backend"`
	DataDir   string       `json:"data_dir" yaml:"data_dir"`
	MetaStore string       `json:"meta_store,omitempty" yaml:"meta_store,omitempty"`
	SQLite    SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Redis     RedisConfig  `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// SQLiteConfig controls when writes reach the JSONL files.
type SQLiteConfig struct {
	SyncStrategy  string `json:"sync_strategy,omitempty" yaml:"sync_strategy,omitempty"`
	BatchSize     int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	BatchInterval int    `json:"batch_interval,omitempty" yaml:"batch_interval,omitempty"` // seconds
}

// RedisConfig locates the Redis server backing the term meta store.
type RedisConfig struct {
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Supported term meta store names.
const (
	MetaStoreSQLite = "sqlite"
	MetaStoreRedis  = "redis"
)

// Sync strategies for JSONL persistence.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
	SyncBatch     = "batch"
)

// Defaults applied by the SQLiteConfig and RedisConfig getters.
const (
	DefaultBatchSize      = 100
	DefaultBatchInterval  = 5
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisKeyPrefix = "tally:"
)

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrMetaStoreUnknown     = errors.New("unknown meta store")
	ErrSyncStrategyUnknown  = errors.New("unknown sync strategy")
	ErrBatchSizeInvalid     = errors.New("batch size must be positive")
	ErrBatchIntervalInvalid = errors.New("batch interval must be positive")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

var knownMetaStores = map[string]bool{
	"":              true,
	MetaStoreSQLite: true,
	MetaStoreRedis:  true,
}

var knownSyncStrategies = map[string]bool{
	"":            true,
	SyncImmediate: true,
	SyncOnClose:   true,
	SyncBatch:     true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if !knownMetaStores[c.MetaStore] {
		return ErrMetaStoreUnknown
	}
	return c.SQLite.Validate()
}

// EffectiveMetaStore returns the configured meta store, defaulting to the
// SQLite term_meta table.
func (c Config) EffectiveMetaStore() string {
	if c.MetaStore == "" {
		return MetaStoreSQLite
	}
	return c.MetaStore
}

// Validate checks the sync strategy and its batch parameters.
func (s SQLiteConfig) Validate() error {
	if !knownSyncStrategies[s.SyncStrategy] {
		return ErrSyncStrategyUnknown
	}
	if s.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	if s.BatchInterval < 0 {
		return ErrBatchIntervalInvalid
	}
	return nil
}

// GetSyncStrategy returns the sync strategy, defaulting to immediate.
func (s SQLiteConfig) GetSyncStrategy() string {
	if s.SyncStrategy == "" {
		return SyncImmediate
	}
	return s.SyncStrategy
}

// GetBatchSize returns the batch size, defaulting to DefaultBatchSize.
func (s SQLiteConfig) GetBatchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// GetBatchInterval returns the batch interval in seconds.
func (s SQLiteConfig) GetBatchInterval() int {
	if s.BatchInterval <= 0 {
		return DefaultBatchInterval
	}
	return s.BatchInterval
}

// GetAddr returns the Redis address, defaulting to DefaultRedisAddr.
func (r RedisConfig) GetAddr() string {
	if r.Addr == "" {
		return DefaultRedisAddr
	}
	return r.Addr
}

// GetKeyPrefix returns the key prefix, defaulting to DefaultRedisKeyPrefix.
func (r RedisConfig) GetKeyPrefix() string {
	if r.KeyPrefix == "" {
		return DefaultRedisKeyPrefix
	}
	return r.KeyPrefix
}
