package domain

import (
	"context"
	"time"
)

// Tier é a classe de quota de uma identidade.
type Tier string

const (
	TierDefault       Tier = "default"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"

	// Tiers de API key.
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
)

// Quota é o orçamento de requisições por janela fixa.
type Quota struct {
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type Quotas map[Tier]Quota

// For retorna a quota do tier, caindo para TierDefault quando desconhecido.
func (q Quotas) For(t Tier) Quota {
	if v, ok := q[t]; ok {
		return v
	}
	return q[TierDefault]
}

func DefaultQuotas() Quotas {
	return Quotas{
		TierDefault:       {Requests: 100, Window: time.Hour},
		TierAuthenticated: {Requests: 1000, Window: time.Hour},
		TierPremium:       {Requests: 10000, Window: time.Hour},
		TierFree:          {Requests: 100, Window: time.Hour},
		TierBasic:         {Requests: 1000, Window: time.Hour},
	}
}

// ValidKeyTier informa se t pode ser atribuído a uma API key.
func ValidKeyTier(t Tier) bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// RateWindow é o estado de uma janela fixa depois de uma checagem.
type RateWindow struct {
	Identity string
	Tier     Tier
	Count    int64
	Limit    int64
	// ResetIn é o tempo restante da janela atual (0 se desconhecido).
	ResetIn time.Duration
}

func (w RateWindow) Remaining() int64 {
	if w.Count >= w.Limit {
		return 0
	}
	return w.Limit - w.Count
}

// APIKeyRecord é persistido como JSON em api_key:<key>.
type APIKeyRecord struct {
	Key          string    `json:"-"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	RequestsUsed int64     `json:"requests_used"`
	LastReset    time.Time `json:"last_reset"`
}

type EventType string

const (
	EventSuspiciousRequest EventType = "suspicious_request"
	EventScamDetected      EventType = "scam_detected"
	EventIPBlocked         EventType = "ip_blocked"
	EventAPIKeyIssued      EventType = "api_key_issued"
)

type SecurityEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Details   map[string]any `json:"details"`
}

// RequestMeta é o que o handler HTTP entrega ao controle de admissão e ao analytics.
type RequestMeta struct {
	ClientAddress string
	APIKey        string
	Method        string
	Path          string
	UserAgent     string
	Headers       map[string]string
	QueryParams   map[string]string
}

// Identity é a chave de rate limit: o endereço, combinado com a API key quando houver.
func (m RequestMeta) Identity() string {
	if m.APIKey != "" {
		return m.ClientAddress + ":" + m.APIKey
	}
	return m.ClientAddress
}

// Admission é o resultado do pipeline de admissão.
type Admission struct {
	Allowed bool
	Tier    Tier
	Reason  string
	Window  RateWindow
}

type SecurityStats struct {
	BlockedIPs       int             `json:"blocked_ips_count"`
	RecentEvents     []SecurityEvent `json:"recent_events"`
	ActiveRateLimits int64           `json:"active_rate_limits"`
	ActiveAPIKeys    int64           `json:"api_keys_active"`
}

// AdmissionStore persiste o estado do controle de admissão.
//
// Todas as operações são I/O potencialmente bloqueante; erros de infraestrutura
// devem ser retornados como estão (o serviço decide fail-open/fail-closed).
type AdmissionStore interface {
	// Allow faz check+incremento atômico da janela fixa de identity.
	// Quando a quota já acabou, retorna false sem alterar o contador.
	Allow(ctx context.Context, identity string, quota Quota) (RateWindow, bool, error)

	// APIKey retorna ErrNotFound para chaves desconhecidas e ErrMalformed para registros ilegíveis.
	APIKey(ctx context.Context, key string) (APIKeyRecord, error)
	SaveAPIKey(ctx context.Context, rec APIKeyRecord, ttl time.Duration) error

	Block(ctx context.Context, addr string, d time.Duration) error
	IsBlocked(ctx context.Context, addr string) (bool, error)

	// IncrSuspicion incrementa o contador de suspeitas do endereço e renova o TTL.
	IncrSuspicion(ctx context.Context, addr string, ttl time.Duration) (int64, error)

	AppendEvent(ctx context.Context, ev SecurityEvent) error
	RecentEvents(ctx context.Context, n int64) ([]SecurityEvent, error)

	CountRateWindows(ctx context.Context) (int64, error)
	CountAPIKeys(ctx context.Context) (int64, error)

	// Sweep dá expiração a chaves do namespace que ficaram sem TTL.
	Sweep(ctx context.Context) (int, error)
}
