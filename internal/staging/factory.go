package staging

import (
	"fmt"

	"bm-go/internal/bm"
	"bm-go/internal/config"
)

// NewBufferFromConfig creates a staged buffer based on the config type.
func NewBufferFromConfig(cfg config.StagingConfig, clock bm.Clock) (*Buffer, error) {
	ttl := cfg.TTLOrDefault()

	switch cfg.Type {
	case "memory":
		return NewMemoryBuffer(clock, ttl), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging requires staging_dir to be set")
		}
		return NewFileSystemBuffer(cfg.StagingDir, clock, ttl)
	default:
		return nil, fmt.Errorf("unknown staging type: %s", cfg.Type)
	}
}
