package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/zeu5/cartpole-dqn/types"
)

type RedisConfig struct {
	Addr string
	// list the summaries are pushed to
	Key string
	// number of summaries kept in the list
	MaxLen  int64
	Timeout time.Duration
}

func (c *RedisConfig) setDefaults() {
	if c.Key == "" {
		c.Key = "cartpole:episodes"
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 10000
	}
	if c.Timeout <= 0 {
		c.Timeout = 100 * time.Millisecond
	}
}

// RedisSink is an analyzer that pushes a JSON summary of every episode to a capped Redis list
type RedisSink struct {
	config  *RedisConfig
	client  *redis.Client
	logger  log.Logger
	written int
	failed  int
}

var _ types.Analyzer = &RedisSink{}

func NewRedisSink(config *RedisConfig, logger log.Logger) *RedisSink {
	config.setDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RedisSink{
		config: config,
		client: redis.NewClient(&redis.Options{
			Addr:        config.Addr,
			DialTimeout: config.Timeout,
		}),
		logger: log.With(logger, "component", "redis"),
	}
}

// Ping checks that the server is reachable
func (r *RedisSink) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrapf(err, "ping redis %s", r.config.Addr)
	}
	return nil
}

func (r *RedisSink) push(ctx context.Context, summary EpisodeSummary) error {
	bs, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshal summary")
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, r.config.Key, bs)
		p.LTrim(ctx, r.config.Key, -r.config.MaxLen, -1)
		return nil
	})
	return errors.Wrap(err, "push summary")
}

func (r *RedisSink) Analyze(eCtx *types.EpisodeContext) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()
	if err := r.push(ctx, Summarize(eCtx)); err != nil {
		r.failed += 1
		level.Warn(r.logger).Log("msg", "cannot record episode", "episode", eCtx.Episode, "err", err)
		return
	}
	r.written += 1
}

// Recent returns the last n summaries stored in the list
func (r *RedisSink) Recent(ctx context.Context, n int64) ([]EpisodeSummary, error) {
	values, err := r.client.LRange(ctx, r.config.Key, -n, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read summaries")
	}
	out := make([]EpisodeSummary, 0, len(values))
	for _, v := range values {
		s := EpisodeSummary{}
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, errors.Wrap(err, "unmarshal summary")
		}
		out = append(out, s)
	}
	return out, nil
}

// Clear removes the list
func (r *RedisSink) Clear(ctx context.Context) error {
	return errors.Wrap(r.client.Del(ctx, r.config.Key).Err(), "clear summaries")
}

// DataSet is the number of summaries written and failed in the current run
func (r *RedisSink) DataSet() types.DataSet {
	return map[string]int{"written": r.written, "failed": r.failed}
}

func (r *RedisSink) Reset() {
	r.written = 0
	r.failed = 0
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
