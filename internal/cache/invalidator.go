package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PrefixInvalidator deletes every cached response under prefix.  Catalog
// writes and stock movements call it so cached listings never outlive
// the change by more than one request.
type PrefixInvalidator struct {
	rdb    redis.Cmdable
	prefix string
	log    *zap.Logger
}

func NewPrefixInvalidator(rdb redis.Cmdable, prefix string, log *zap.Logger) *PrefixInvalidator {
	return &PrefixInvalidator{rdb: rdb, prefix: prefix, log: log.Named("cache")}
}

// Invalidate scans and deletes; errors are logged, the TTL bounds any
// entry that survives.
func (p *PrefixInvalidator) Invalidate(ctx context.Context) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, p.prefix+":*", 200).Result()
		if err != nil {
			p.log.Warn("cache scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
				p.log.Warn("cache delete failed", zap.Error(err))
				return
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if deleted > 0 {
		p.log.Debug("cache invalidated", zap.String("prefix", p.prefix), zap.Int("keys", deleted))
	}
}
