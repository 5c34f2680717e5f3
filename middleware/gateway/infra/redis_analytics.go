package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/redis/go-redis/v9"
)

const (
	maxResponseTimes = 1000
	maxIntelValues   = 100
)

// RedisAnalyticsStore implementa domain.AnalyticsStore sob o prefixo "analytics".
//
// Os totais globais são cumulativos e não expiram; só as séries por hora/dia
// têm TTL.
type RedisAnalyticsStore struct {
	rdb redis.UniversalClient

	prefix  string
	timeout time.Duration

	hourlyTTL        time.Duration
	dailyTTL         time.Duration
	dailyPatternsTTL time.Duration
}

type RedisAnalyticsOption func(*RedisAnalyticsStore)

func WithAnalyticsPrefix(prefix string) RedisAnalyticsOption {
	return func(s *RedisAnalyticsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithAnalyticsTimeout(d time.Duration) RedisAnalyticsOption {
	return func(s *RedisAnalyticsStore) { s.timeout = d }
}

// WithBucketTTL define a retenção das séries por hora e por dia (0 = sem expiração).
func WithBucketTTL(hourly, daily time.Duration) RedisAnalyticsOption {
	return func(s *RedisAnalyticsStore) {
		s.hourlyTTL = hourly
		s.dailyTTL = daily
	}
}

func WithDailyPatternsTTL(d time.Duration) RedisAnalyticsOption {
	return func(s *RedisAnalyticsStore) { s.dailyPatternsTTL = d }
}

func NewRedisAnalyticsStore(rdb redis.UniversalClient, opts ...RedisAnalyticsOption) *RedisAnalyticsStore {
	s := &RedisAnalyticsStore{
		rdb:              rdb,
		prefix:           "analytics",
		timeout:          DefaultStoreTimeout,
		hourlyTTL:        48 * time.Hour,
		dailyTTL:         30 * 24 * time.Hour,
		dailyPatternsTTL: 15 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisAnalyticsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// Record grava o evento num único pipeline. Não é transacional: uma falha no
// meio pode deixar contadores parcialmente incrementados.
func (s *RedisAnalyticsStore) Record(ctx context.Context, rec domain.RequestRecord) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	hour := domain.HourBucket(at)
	day := domain.DayBucket(at)

	pipe := s.rdb.Pipeline()

	pipe.Incr(ctx, s.key("total_requests"))
	s.incrBucket(ctx, pipe, s.key("hourly", hour, "total"), s.hourlyTTL)
	s.incrBucket(ctx, pipe, s.key("daily", day, "total"), s.dailyTTL)

	if rec.Result.IsScam {
		pipe.Incr(ctx, s.key("scam_requests"))
		s.incrBucket(ctx, pipe, s.key("hourly", hour, "scams"), s.hourlyTTL)
		s.incrBucket(ctx, pipe, s.key("daily", day, "scams"), s.dailyTTL)
	}

	rtKey := s.key("response_times")
	pipe.LPush(ctx, rtKey, strconv.FormatFloat(rec.Latency.Seconds(), 'f', -1, 64))
	pipe.LTrim(ctx, rtKey, 0, maxResponseTimes-1)

	addr := strings.TrimSpace(rec.Request.ClientAddress)
	if addr == "" {
		addr = "unknown"
	}
	pipe.SAdd(ctx, s.key("unique_ips"), addr)

	if len(rec.Result.DetectedPatterns) > 0 {
		dailyKey := s.key("patterns_daily", day)
		for _, p := range rec.Result.DetectedPatterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			pipe.Incr(ctx, s.key("patterns", p))
			pipe.HIncrBy(ctx, dailyKey, p, 1)
		}
		if s.dailyPatternsTTL > 0 {
			pipe.Expire(ctx, dailyKey, s.dailyPatternsTTL)
		}
	}

	for category, values := range rec.Result.ExtractedIntel {
		if len(values) == 0 {
			continue
		}
		intelKey := s.key("intel", category)
		for _, v := range values {
			pipe.LPush(ctx, intelKey, v)
		}
		pipe.LTrim(ctx, intelKey, 0, maxIntelValues-1)
	}

	if rec.Tier != "" {
		pipe.HIncrBy(ctx, s.key("tiers"), string(rec.Tier), 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisAnalyticsStore) incrBucket(ctx context.Context, pipe redis.Pipeliner, key string, ttl time.Duration) {
	pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
}

func (s *RedisAnalyticsStore) Totals(ctx context.Context) (total, scams, uniqueIPs int64, err error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	counters := pipe.MGet(ctx, s.key("total_requests"), s.key("scam_requests"))
	card := pipe.SCard(ctx, s.key("unique_ips"))
	if _, err = pipe.Exec(ctx); err != nil && !isNil(err) {
		return 0, 0, 0, err
	}

	vals := counters.Val()
	if len(vals) == 2 {
		total = toInt64(vals[0])
		scams = toInt64(vals[1])
	}
	return total, scams, card.Val(), nil
}

// ResponseTimes retorna as latências em segundos, da mais recente para a mais antiga.
func (s *RedisAnalyticsStore) ResponseTimes(ctx context.Context) ([]float64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raws, err := s.rdb.LRange(ctx, s.key("response_times"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(raws))
	for _, raw := range raws {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RedisAnalyticsStore) HourBuckets(ctx context.Context, hours []string) (map[string]domain.Bucket, error) {
	out := make(map[string]domain.Bucket, len(hours))
	if len(hours) == 0 {
		return out, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	keys := make([]string, 0, len(hours)*2)
	for _, h := range hours {
		keys = append(keys, s.key("hourly", h, "total"), s.key("hourly", h, "scams"))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, h := range hours {
		out[h] = domain.Bucket{
			Total: toInt64(vals[2*i]),
			Scams: toInt64(vals[2*i+1]),
		}
	}
	return out, nil
}

func (s *RedisAnalyticsStore) PatternCounts(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout*4)
	defer cancel()

	prefix := s.key("patterns") + ":"
	out := make(map[string]int64)
	err := scanKeys(ctx, s.rdb, prefix+"*", func(keys []string) error {
		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, k := range keys {
			out[strings.TrimPrefix(k, prefix)] = toInt64(vals[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DailyPatternCounts soma os hashes patterns_daily dos dias informados.
func (s *RedisAnalyticsStore) DailyPatternCounts(ctx context.Context, days []string) (map[string]int64, error) {
	out := make(map[string]int64)
	if len(days) == 0 {
		return out, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(days))
	for _, d := range days {
		cmds = append(cmds, pipe.HGetAll(ctx, s.key("patterns_daily", d)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !isNil(err) {
		return nil, err
	}

	for _, cmd := range cmds {
		for p, v := range cmd.Val() {
			out[p] += toInt64(v)
		}
	}
	return out, nil
}

func (s *RedisAnalyticsStore) Intel(ctx context.Context, category string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.LRange(ctx, s.key("intel", category), 0, n-1).Result()
}

func (s *RedisAnalyticsStore) TierCounts(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.rdb.HGetAll(ctx, s.key("tiers")).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		out[k] = toInt64(v)
	}
	return out, nil
}

var _ domain.AnalyticsStore = (*RedisAnalyticsStore)(nil)
