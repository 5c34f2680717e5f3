package infra

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowSource string

// NewScript usa EVALSHA e recarrega com EVAL em NOSCRIPT (ex: Redis reiniciado).
var fixedWindowScript = redis.NewScript(fixedWindowSource)

const (
	maxSecurityEvents     = 1000
	securityEventsTTL     = 7 * 24 * time.Hour
	sweepRateLimitTTL     = time.Hour
	sweepBlockedTTL       = 24 * time.Hour
	sweepSuspicionTTL     = time.Hour
	securityEventsListKey = "security_events"
)

// RedisAdmissionStore implementa domain.AdmissionStore.
//
// Chaves: rate_limit:<identity>, api_key:<key>, blocked_ip:<addr>,
// suspicious_ip:<addr> e a lista security_events.
type RedisAdmissionStore struct {
	rdb     redis.UniversalClient
	root    string
	timeout time.Duration
}

type RedisAdmissionOption func(*RedisAdmissionStore)

// WithAdmissionRoot prefixa todas as chaves (útil para isolar ambientes no mesmo Redis).
func WithAdmissionRoot(root string) RedisAdmissionOption {
	return func(s *RedisAdmissionStore) {
		root = strings.Trim(root, ":")
		if root != "" {
			root += ":"
		}
		s.root = root
	}
}

func WithAdmissionTimeout(d time.Duration) RedisAdmissionOption {
	return func(s *RedisAdmissionStore) { s.timeout = d }
}

func NewRedisAdmissionStore(rdb redis.UniversalClient, opts ...RedisAdmissionOption) *RedisAdmissionStore {
	s := &RedisAdmissionStore{
		rdb:     rdb,
		timeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisAdmissionStore) rateKey(identity string) string {
	return s.root + "rate_limit:" + identity
}

func (s *RedisAdmissionStore) apiKey(key string) string {
	return s.root + "api_key:" + key
}

func (s *RedisAdmissionStore) blockedKey(addr string) string {
	return s.root + "blocked_ip:" + addr
}

func (s *RedisAdmissionStore) suspicionKey(addr string) string {
	return s.root + "suspicious_ip:" + addr
}

func (s *RedisAdmissionStore) eventsKey() string {
	return s.root + securityEventsListKey
}

func (s *RedisAdmissionStore) Allow(ctx context.Context, identity string, quota domain.Quota) (domain.RateWindow, bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	w := domain.RateWindow{Identity: identity, Limit: quota.Requests}

	res, err := fixedWindowScript.Run(ctx, s.rdb, []string{s.rateKey(identity)},
		quota.Requests,              // ARGV[1]
		quota.Window.Milliseconds(), // ARGV[2]
	).Result()
	if err != nil {
		return w, false, err
	}

	values, ok := res.([]any)
	if !ok || len(values) != 3 {
		return w, false, errors.New("invalid fixed window script response")
	}

	w.Count = toInt64(values[1])
	if ttl := toInt64(values[2]); ttl > 0 {
		w.ResetIn = time.Duration(ttl) * time.Millisecond
	}
	return w, toInt64(values[0]) == 1, nil
}

func (s *RedisAdmissionStore) APIKey(ctx context.Context, key string) (domain.APIKeyRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, s.apiKey(key)).Bytes()
	if isNil(err) {
		return domain.APIKeyRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.APIKeyRecord{}, err
	}

	var rec domain.APIKeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.APIKeyRecord{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	rec.Key = key
	return rec, nil
}

func (s *RedisAdmissionStore) SaveAPIKey(ctx context.Context, rec domain.APIKeyRecord, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.apiKey(rec.Key), raw, ttl).Err()
}

func (s *RedisAdmissionStore) Block(ctx context.Context, addr string, d time.Duration) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.rdb.Set(ctx, s.blockedKey(addr), "1", d).Err()
}

func (s *RedisAdmissionStore) IsBlocked(ctx context.Context, addr string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.rdb.Exists(ctx, s.blockedKey(addr)).Result()
	return n > 0, err
}

func (s *RedisAdmissionStore) IncrSuspicion(ctx context.Context, addr string, ttl time.Duration) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	key := s.suspicionKey(addr)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// AppendEvent faz push, trim e expire, nessa ordem, para limitar tamanho e idade.
func (s *RedisAdmissionStore) AppendEvent(ctx context.Context, ev domain.SecurityEvent) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	key := s.eventsKey()
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, maxSecurityEvents-1)
	pipe.Expire(ctx, key, securityEventsTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisAdmissionStore) RecentEvents(ctx context.Context, n int64) ([]domain.SecurityEvent, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if n <= 0 {
		return nil, nil
	}
	raws, err := s.rdb.LRange(ctx, s.eventsKey(), 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.SecurityEvent, 0, len(raws))
	for _, raw := range raws {
		var ev domain.SecurityEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisAdmissionStore) CountRateWindows(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout*4)
	defer cancel()
	return countKeys(ctx, s.rdb, s.root+"rate_limit:*")
}

func (s *RedisAdmissionStore) CountAPIKeys(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout*4)
	defer cancel()
	return countKeys(ctx, s.rdb, s.root+"api_key:*")
}

func (s *RedisAdmissionStore) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := withTimeout(ctx, s.timeout*10)
	defer cancel()

	fixed := 0
	sweep := func(match string, ttl time.Duration) error {
		return scanKeys(ctx, s.rdb, match, func(keys []string) error {
			ttls := make([]*redis.DurationCmd, len(keys))
			if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
				for i, k := range keys {
					ttls[i] = p.TTL(ctx, k)
				}
				return nil
			}); err != nil {
				return err
			}

			// -1: chave sem expiração
			var orphans []string
			for i, cmd := range ttls {
				if cmd.Val() == -1 {
					orphans = append(orphans, keys[i])
				}
			}
			if len(orphans) == 0 {
				return nil
			}
			if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
				for _, k := range orphans {
					p.Expire(ctx, k, ttl)
				}
				return nil
			}); err != nil {
				return err
			}
			fixed += len(orphans)
			return nil
		})
	}

	if err := sweep(s.root+"rate_limit:*", sweepRateLimitTTL); err != nil {
		return fixed, err
	}
	if err := sweep(s.root+"blocked_ip:*", sweepBlockedTTL); err != nil {
		return fixed, err
	}
	if err := sweep(s.root+"suspicious_ip:*", sweepSuspicionTTL); err != nil {
		return fixed, err
	}
	return fixed, nil
}

var _ domain.AdmissionStore = (*RedisAdmissionStore)(nil)
