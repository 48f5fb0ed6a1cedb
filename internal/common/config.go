package common

// Config is the engine-wide configuration a host may load from TOML
// before calling lexidx.Open. Everything on it also has a programmatic
// equivalent on lexidx.Options so embedding callers never have to touch a
// file.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Indexing   IndexingConfig   `toml:"indexing"`
	Logging    LoggingConfig    `toml:"logging"`
}

// StorageConfig holds the transactional KV adapter's open options.
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig holds the open options for the transactional store: path,
// reset-on-startup, plus a map-size ceiling.
type BadgerConfig struct {
	Path           string `toml:"path"`             // directory holding the index's data
	MaxMapSizeMB   int64  `toml:"max_map_size_mb"`  // must correspond to a multiple of the OS page size worth of bytes
	ResetOnStartup bool   `toml:"reset_on_startup"` // delete existing database on open, for clean test runs
}

// IndexingConfig controls the indexing pipeline's resource budget.
type IndexingConfig struct {
	MaxMemoryMB          int64 `toml:"max_memory_mb"`           // sorter memory ceiling, divided across the main sorters
	MaxNbChunks          int   `toml:"max_nb_chunks"`           // cap on spilled run files before forcing an interim merge
	ThreadPoolSize       int   `toml:"thread_pool_size"`        // extraction worker count
	LogEveryN            int   `toml:"log_every_n"`             // progress log cadence, in documents
	ChunkCompressionGzip bool  `toml:"chunk_compression_gzip"`  // compress sorter spill files
	MaxPositionsPerAttr  int   `toml:"max_positions_per_attribute"`
}

// LoggingConfig controls arbor's output destinations and verbosity.
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
	Path   string   `toml:"path"`
}

// DefaultConfig returns the configuration used when a host opens an index
// without supplying one explicitly.
func DefaultConfig(path string) *Config {
	return &Config{
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:         path,
				MaxMapSizeMB: 4096,
			},
		},
		Indexing: IndexingConfig{
			MaxMemoryMB:          512,
			MaxNbChunks:          0,
			ThreadPoolSize:       4,
			LogEveryN:            100_000,
			ChunkCompressionGzip: true,
			MaxPositionsPerAttr:  65536,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
	}
}
