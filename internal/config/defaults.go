package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kensaku/data/db/identity.db"
	}
	if cfg.Storage.VectorPath == "" {
		cfg.Storage.VectorPath = "/usr/local/var/kensaku/data/vectors"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "multilingual-e5-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.Engine == "" {
		cfg.Search.Engine = "parallel"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 1000
	}
	if cfg.Fusion.Items == 0 {
		cfg.Fusion.Items = 5
	}
	if cfg.Fusion.Lang == "" {
		cfg.Fusion.Lang = "en"
	}
	if cfg.Fusion.Threshold == 0 {
		cfg.Fusion.Threshold = 0.35
	}
	if cfg.Fusion.TitleCollection == "" {
		cfg.Fusion.TitleCollection = "titles"
	}
	if cfg.Fusion.ChunkCollection == "" {
		cfg.Fusion.ChunkCollection = "chunks"
	}
	if cfg.Fusion.TitleOverfetch == 0 {
		cfg.Fusion.TitleOverfetch = 2
	}
	if cfg.Fusion.ChunkOverfetch == 0 {
		cfg.Fusion.ChunkOverfetch = 5
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 500
	}
}
