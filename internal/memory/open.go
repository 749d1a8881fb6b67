package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/chattwin/chattwin/internal/config"
)

// Open builds the transcript store selected by configuration.
func Open(ctx context.Context, cfg config.MemoryConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		return NewLocal(cfg.HistoryDir), nil
	case "s3":
		return NewS3(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Prefix)
	case "sqlite":
		return OpenSQLite(ctx, SQLiteConfig{
			Path:      cfg.SQLite.Path,
			URL:       cfg.SQLite.URL,
			AuthToken: cfg.SQLite.AuthToken,
		})
	default:
		return nil, fmt.Errorf("unsupported memory backend: %s", cfg.Backend)
	}
}
