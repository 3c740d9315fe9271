package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultSafetyMargin = 5 * time.Minute

// TokenCache shares access tokens between the API and the scheduler processes.
type TokenCache interface {
	Get(ctx context.Context) (*oauth2.Token, error)
	Set(ctx context.Context, tok *oauth2.Token) error
	Delete(ctx context.Context) error
}

// TokenSourceConfig configures the refresh-token flow.
type TokenSourceConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccountsURL  string
	SafetyMargin time.Duration
	HTTPClient   *http.Client
	Cache        TokenCache
}

// TokenSource hands out access tokens, refreshing them once they are within
// the safety margin of expiry. Concurrent callers share one refresh.
type TokenSource struct {
	oauth        *oauth2.Config
	refreshToken string
	margin       time.Duration
	httpClient   *http.Client
	cache        TokenCache

	mu      sync.Mutex
	current *oauth2.Token
	group   singleflight.Group
	now     func() time.Time
}

// NewTokenSource builds a token source against {AccountsURL}/oauth/v2/token.
func NewTokenSource(cfg TokenSourceConfig) *TokenSource {
	margin := cfg.SafetyMargin
	if margin <= 0 {
		margin = defaultSafetyMargin
	}
	return &TokenSource{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(cfg.AccountsURL, "/") + "/oauth/v2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: cfg.RefreshToken,
		margin:       margin,
		httpClient:   cfg.HTTPClient,
		cache:        cfg.Cache,
		now:          time.Now,
	}
}

func (s *TokenSource) usable(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return false
	}
	return s.now().Add(s.margin).Before(tok.Expiry)
}

// AccessToken returns a bearer token valid for at least the safety margin.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if s.usable(current) {
		return current.AccessToken, nil
	}

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*oauth2.Token).AccessToken, nil
}

// Invalidate drops the cached token, e.g. after the CRM answered 401.
func (s *TokenSource) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.cache != nil {
		_ = s.cache.Delete(ctx)
	}
}

func (s *TokenSource) refresh(ctx context.Context) (*oauth2.Token, error) {
	if s.cache != nil {
		if tok, err := s.cache.Get(ctx); err == nil && s.usable(tok) {
			s.store(tok)
			return tok, nil
		}
	}

	if s.refreshToken == "" {
		return nil, errors.New("crm refresh token is not configured")
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh crm access token: %w", err)
	}
	s.store(tok)

	if s.cache != nil {
		_ = s.cache.Set(ctx, tok)
	}
	return tok, nil
}

func (s *TokenSource) store(tok *oauth2.Token) {
	s.mu.Lock()
	s.current = tok
	s.mu.Unlock()
}

// RedisTokenCache stores the token as JSON with a TTL matching its expiry.
type RedisTokenCache struct {
	rdb *redis.Client
	key string
}

// NewRedisTokenCache creates a cache under key.
func NewRedisTokenCache(rdb *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = "crm:zoho:access_token"
	}
	return &RedisTokenCache{rdb: rdb, key: key}
}

func (c *RedisTokenCache) Get(ctx context.Context) (*oauth2.Token, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, tok *oauth2.Token) error {
	ttl := time.Until(tok.Expiry)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return c.rdb.Set(ctx, c.key, raw, ttl).Err()
}

func (c *RedisTokenCache) Delete(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
