package cache

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/shared/logger"
)

var log = logger.GetLogger()

// NewRedisClient builds a redis client from a connection URL. Returns nil when
// the URL is empty or unparseable; callers treat a nil client as cache
// disabled rather than a startup failure.
func NewRedisClient(url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("invalid redis URL, cache disabled", zap.Error(err))
		return nil
	}
	return redis.NewClient(opt)
}
