package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/google/uuid"
)

const (
	DefaultBlockDuration      = time.Hour
	DefaultSuspicionTTL       = time.Hour
	DefaultSuspicionThreshold = 5
	DefaultAPIKeyTTL          = 30 * 24 * time.Hour
	DefaultSweepEvery         = time.Hour

	recentEventsInStats = 50
)

// AdmissionService é o controle de admissão: bloqueio por IP, API key, quota
// por tier e escalonamento de suspeitas.
//
// Erros do Remote Store nunca saem daqui: rate limit falha fechado,
// escalonamento falha para "sem escalonar" e a checagem de bloqueio cai no
// espelho local.
type AdmissionService struct {
	store     domain.AdmissionStore
	inspector *Inspector
	quotas    domain.Quotas

	blockDuration      time.Duration
	suspicionTTL       time.Duration
	suspicionThreshold int64
	apiKeyTTL          time.Duration
	sweepEvery         time.Duration

	logger  *slog.Logger
	metrics domain.MetricsRecorder
	now     func() time.Time

	// espelho dos bloqueios feitos por esta réplica: addr → expiração
	mu      sync.Mutex
	blocked map[string]time.Time
}

type AdmissionOption func(*AdmissionService)

func WithQuotas(q domain.Quotas) AdmissionOption {
	return func(s *AdmissionService) {
		if len(q) > 0 {
			s.quotas = q
		}
	}
}

func WithInspector(i *Inspector) AdmissionOption {
	return func(s *AdmissionService) {
		if i != nil {
			s.inspector = i
		}
	}
}

func WithBlockDuration(d time.Duration) AdmissionOption {
	return func(s *AdmissionService) {
		if d > 0 {
			s.blockDuration = d
		}
	}
}

// WithSuspicion define quantas suspeitas dentro de ttl levam ao bloqueio.
func WithSuspicion(threshold int64, ttl time.Duration) AdmissionOption {
	return func(s *AdmissionService) {
		if threshold > 0 {
			s.suspicionThreshold = threshold
		}
		if ttl > 0 {
			s.suspicionTTL = ttl
		}
	}
}

func WithAPIKeyTTL(d time.Duration) AdmissionOption {
	return func(s *AdmissionService) {
		if d > 0 {
			s.apiKeyTTL = d
		}
	}
}

func WithSweepEvery(d time.Duration) AdmissionOption {
	return func(s *AdmissionService) { s.sweepEvery = d }
}

func WithAdmissionLogger(l *slog.Logger) AdmissionOption {
	return func(s *AdmissionService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithAdmissionMetrics(m domain.MetricsRecorder) AdmissionOption {
	return func(s *AdmissionService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(s *AdmissionService) { s.now = now }
}

func NewAdmissionService(store domain.AdmissionStore, opts ...AdmissionOption) *AdmissionService {
	s := &AdmissionService{
		store:              store,
		inspector:          NewInspector(),
		quotas:             domain.DefaultQuotas(),
		blockDuration:      DefaultBlockDuration,
		suspicionTTL:       DefaultSuspicionTTL,
		suspicionThreshold: DefaultSuspicionThreshold,
		apiKeyTTL:          DefaultAPIKeyTTL,
		sweepEvery:         DefaultSweepEvery,
		logger:             slog.Default(),
		metrics:            domain.NoOpMetricsRecorder{},
		now:                time.Now,
		blocked:            make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckRateLimit consome uma requisição da janela de identity. Falha no store nega.
func (s *AdmissionService) CheckRateLimit(ctx context.Context, identity string, tier domain.Tier) (domain.RateWindow, bool) {
	quota := s.quotas.For(tier)

	w, ok, err := s.store.Allow(ctx, identity, quota)
	w.Tier = tier
	if err != nil {
		s.logger.Error("rate limit check failed, denying", "identity", identity, "tier", tier, "err", err)
		s.storeError()
		if w.ResetIn <= 0 {
			w.ResetIn = quota.Window
		}
		return w, false
	}
	return w, ok
}

// ValidateAPIKey falha com ErrUnauthorized para chave vazia, desconhecida ou
// ilegível. Um registro ilegível também satisfaz errors.Is(err, ErrMalformed).
func (s *AdmissionService) ValidateAPIKey(ctx context.Context, key string) (domain.APIKeyRecord, error) {
	if key == "" {
		return domain.APIKeyRecord{}, domain.Reject(domain.ErrUnauthorized, "API key required")
	}

	rec, err := s.store.APIKey(ctx, key)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.APIKeyRecord{}, domain.Reject(domain.ErrUnauthorized, "Invalid API key")
	case errors.Is(err, domain.ErrMalformed):
		s.logger.Warn("api key record malformed", "err", err)
		return domain.APIKeyRecord{}, &domain.RejectionError{
			Kind:   domain.ErrUnauthorized,
			Cause:  domain.ErrMalformed,
			Reason: "Invalid API key",
		}
	default:
		s.logger.Error("api key lookup failed", "err", err)
		s.storeError()
		return domain.APIKeyRecord{}, domain.Reject(domain.ErrUnauthorized, "Invalid API key")
	}
}

func (s *AdmissionService) IsRequestSuspicious(meta domain.RequestMeta) (bool, string) {
	return s.inspector.Inspect(meta)
}

// BlockIP bloqueia addr por d (d <= 0 usa o default). O espelho local é
// atualizado mesmo se o store falhar.
func (s *AdmissionService) BlockIP(ctx context.Context, addr string, d time.Duration) error {
	if d <= 0 {
		d = s.blockDuration
	}

	s.mu.Lock()
	s.blocked[addr] = s.now().Add(d)
	s.mu.Unlock()

	if err := s.store.Block(ctx, addr, d); err != nil {
		s.storeError()
		return fmt.Errorf("block %s: %w", addr, err)
	}
	return nil
}

// IsIPBlocked consulta o store; se ele falhar, usa o espelho local.
func (s *AdmissionService) IsIPBlocked(ctx context.Context, addr string) bool {
	blocked, err := s.store.IsBlocked(ctx, addr)
	if err == nil {
		if !blocked {
			s.forget(addr)
		}
		return blocked
	}

	s.logger.Warn("block check failed, using local mirror", "addr", addr, "err", err)
	s.storeError()

	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.blocked[addr]
	if !ok {
		return false
	}
	if !s.now().Before(until) {
		delete(s.blocked, addr)
		return false
	}
	return true
}

func (s *AdmissionService) forget(addr string) {
	s.mu.Lock()
	delete(s.blocked, addr)
	s.mu.Unlock()
}

// RecordSecurityEvent grava o evento na lista limitada de eventos.
func (s *AdmissionService) RecordSecurityEvent(ctx context.Context, typ domain.EventType, details map[string]any) (domain.SecurityEvent, error) {
	ev := domain.SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Type:      typ,
		Details:   details,
	}
	s.logger.Warn("security event", "type", typ, "id", ev.ID, "details", details)

	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.storeError()
		return ev, fmt.Errorf("record security event: %w", err)
	}
	return ev, nil
}

// Admit roda o pipeline: bloqueio → API key → rate limit → suspeita.
// A primeira etapa que rejeita define o erro (*domain.RejectionError).
func (s *AdmissionService) Admit(ctx context.Context, meta domain.RequestMeta) (domain.Admission, error) {
	if s.IsIPBlocked(ctx, meta.ClientAddress) {
		return s.reject("forbidden", domain.Reject(domain.ErrForbidden, "IP address blocked"))
	}

	tier := domain.TierDefault
	if meta.APIKey != "" {
		rec, err := s.ValidateAPIKey(ctx, meta.APIKey)
		if err != nil {
			return s.reject("unauthorized", err)
		}
		tier = rec.Tier
	}

	w, ok := s.CheckRateLimit(ctx, meta.Identity(), tier)
	if !ok {
		return s.reject("rate_limited", &domain.RejectionError{
			Kind:       domain.ErrRateLimited,
			Reason:     "Rate limit exceeded",
			RetryAfter: w.ResetIn,
		})
	}

	if suspicious, reason := s.IsRequestSuspicious(meta); suspicious {
		err := s.escalate(ctx, meta, reason)
		if errors.Is(err, domain.ErrForbidden) {
			return s.reject("forbidden", err)
		}
		return s.reject("bad_request", err)
	}

	s.metrics.Add("admission.decision", 1, map[string]string{"outcome": "allowed"})
	return domain.Admission{Allowed: true, Tier: tier, Window: w}, nil
}

// escalate registra a suspeita e bloqueia o IP ao atingir o limite.
// Sem o contador (store fora), a requisição só é recusada.
func (s *AdmissionService) escalate(ctx context.Context, meta domain.RequestMeta, reason string) error {
	addr := meta.ClientAddress

	if _, err := s.RecordSecurityEvent(ctx, domain.EventSuspiciousRequest, map[string]any{
		"ip":     addr,
		"reason": reason,
		"method": meta.Method,
		"path":   meta.Path,
	}); err != nil {
		s.logger.Warn("could not persist suspicious request event", "err", err)
	}

	n, err := s.store.IncrSuspicion(ctx, addr, s.suspicionTTL)
	if err != nil {
		s.logger.Error("suspicion counter failed, not escalating", "addr", addr, "err", err)
		s.storeError()
		return domain.Reject(domain.ErrBadRequest, reason)
	}

	if n < s.suspicionThreshold {
		return domain.Reject(domain.ErrBadRequest, reason)
	}

	if err := s.BlockIP(ctx, addr, s.blockDuration); err != nil {
		s.logger.Error("block failed", "addr", addr, "err", err)
	}
	if _, err := s.RecordSecurityEvent(ctx, domain.EventIPBlocked, map[string]any{
		"ip":               addr,
		"reason":           "repeated suspicious requests",
		"suspicious_count": n,
		"duration_seconds": int64(s.blockDuration.Seconds()),
	}); err != nil {
		s.logger.Warn("could not persist ip blocked event", "err", err)
	}
	return domain.Reject(domain.ErrForbidden, "IP blocked due to suspicious activity")
}

func (s *AdmissionService) reject(outcome string, err error) (domain.Admission, error) {
	s.metrics.Add("admission.decision", 1, map[string]string{"outcome": outcome})
	reason := err.Error()
	return domain.Admission{Allowed: false, Reason: reason}, err
}

// IssueAPIKey cria uma chave nova para tier e persiste o registro.
func (s *AdmissionService) IssueAPIKey(ctx context.Context, tier domain.Tier) (domain.APIKeyRecord, error) {
	if !domain.ValidKeyTier(tier) {
		return domain.APIKeyRecord{}, fmt.Errorf("invalid api key tier %q", tier)
	}

	var random [16]byte
	if _, err := rand.Read(random[:]); err != nil {
		return domain.APIKeyRecord{}, fmt.Errorf("generate api key: %w", err)
	}
	now := s.now().UTC()
	sum := sha256.Sum256([]byte(string(tier) + "_" + strconv.FormatInt(now.Unix(), 10) + "_" + hex.EncodeToString(random[:])))

	rec := domain.APIKeyRecord{
		Key:       hex.EncodeToString(sum[:]),
		Tier:      tier,
		CreatedAt: now,
		LastReset: now,
	}
	if err := s.store.SaveAPIKey(ctx, rec, s.apiKeyTTL); err != nil {
		s.storeError()
		return domain.APIKeyRecord{}, fmt.Errorf("save api key: %w", err)
	}

	if _, err := s.RecordSecurityEvent(ctx, domain.EventAPIKeyIssued, map[string]any{"tier": string(tier)}); err != nil {
		s.logger.Warn("could not persist api key event", "err", err)
	}
	return rec, nil
}

// SecurityStats monta o resumo de segurança. Contagens que falharem ficam em -1.
func (s *AdmissionService) SecurityStats(ctx context.Context) domain.SecurityStats {
	st := domain.SecurityStats{BlockedIPs: s.mirrorSize()}

	evs, err := s.store.RecentEvents(ctx, recentEventsInStats)
	if err != nil {
		s.logger.Warn("recent events failed", "err", err)
		s.storeError()
	}
	st.RecentEvents = evs
	if st.RecentEvents == nil {
		st.RecentEvents = []domain.SecurityEvent{}
	}

	if st.ActiveRateLimits, err = s.store.CountRateWindows(ctx); err != nil {
		s.logger.Warn("count rate windows failed", "err", err)
		s.storeError()
		st.ActiveRateLimits = -1
	}
	if st.ActiveAPIKeys, err = s.store.CountAPIKeys(ctx); err != nil {
		s.logger.Warn("count api keys failed", "err", err)
		s.storeError()
		st.ActiveAPIKeys = -1
	}
	return st
}

func (s *AdmissionService) mirrorSize() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for addr, until := range s.blocked {
		if now.Before(until) {
			n++
			continue
		}
		delete(s.blocked, addr)
	}
	return n
}

// Sweep dá TTL a chaves de admissão que ficaram sem expiração.
func (s *AdmissionService) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Sweep(ctx)
	if err != nil {
		s.storeError()
		return n, fmt.Errorf("sweep: %w", err)
	}
	if n > 0 {
		s.logger.Info("admission sweep fixed keys without expiry", "keys", n)
	}
	return n, nil
}

// StartJanitor roda Sweep periodicamente até ctx ser cancelado.
func (s *AdmissionService) StartJanitor(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Warn("admission sweep failed", "err", err)
				}
			}
		}
	}()
}

func (s *AdmissionService) storeError() {
	s.metrics.Add("store.error", 1, map[string]string{"component": "admission"})
}
