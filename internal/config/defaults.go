package config

// ApplyDefaults sets default values for any zero values in cfg.
// search.default_top_k and search.prefetch_multiplier intentionally get no
// defaults: they must be configured explicitly (Validate rejects zero).
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Embedder.Host == "" {
		cfg.Embedder.Host = "localhost"
	}
	if cfg.Embedder.Port == 0 {
		cfg.Embedder.Port = 8001
	}
	if cfg.Index.Distance == "" {
		cfg.Index.Distance = "cosine"
	}
	if cfg.Embedding.Device == "" {
		cfg.Embedding.Device = "cuda"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "vit_base_patch14_dinov2"
	}
	if cfg.Embedding.InputSize == 0 {
		cfg.Embedding.InputSize = 518
	}
	if cfg.Embedding.MaxConcurrent == 0 {
		cfg.Embedding.MaxConcurrent = 1
	}
	if cfg.Embedding.QueueTimeoutSeconds == 0 {
		cfg.Embedding.QueueTimeoutSeconds = 30
	}
	if cfg.Search.TargetWidth == 0 {
		cfg.Search.TargetWidth = 585
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".png", ".jpg", ".jpeg", ".webp"}
	}
	if cfg.Watch.IngestPerSecond == 0 {
		cfg.Watch.IngestPerSecond = 2
	}
}
