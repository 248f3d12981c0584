package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	jose "gopkg.in/square/go-jose.v2"

	"github.com/spec-kit/token-bridge/internal/config"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

var (
	// ErrKeyUnavailable is wrapped by every private key resolution failure.
	ErrKeyUnavailable = errors.New("signing key unavailable")
	// ErrSecretUnavailable is returned when no acceptable session secret is configured.
	ErrSecretUnavailable = errors.New("session secret unavailable")
)

// SecretResolution records where the session secret came from.
type SecretResolution struct {
	Source string
	Weak   bool
	value  []byte
	err    error
}

// Provider resolves the session secret and the service-token signing key.
type Provider struct {
	auth       config.AuthConfig
	production bool
	source     KeySource
	previous   []jose.JSONWebKey
	logger     *zap.Logger
	now        func() time.Time

	secretOnce sync.Once
	secret     SecretResolution

	mu       sync.RWMutex
	material *Material
	loadedAt time.Time
}

// Option customizes a Provider.
type Option func(*Provider)

// WithClock overrides the time source used for key refresh.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider builds a provider from configuration. Retired public keys are read eagerly so a
// broken rotation file is reported at startup rather than on the first JWKS request.
func NewProvider(cfg *config.Config, source KeySource, logger *zap.Logger, opts ...Option) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		auth:       cfg.Auth,
		production: cfg.App.ProductionLike(),
		source:     source,
		logger:     logger.Named("keys"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.Auth.PreviousJWKSFile != "" {
		previous, err := readKeySet(cfg.Auth.PreviousJWKSFile)
		if err != nil {
			return nil, err
		}
		p.previous = previous
	}
	return p, nil
}

// ResolveSessionSecret returns the symmetric session secret. Resolution happens once: primary
// variable, fallbacks, then the development default.
func (p *Provider) ResolveSessionSecret() ([]byte, error) {
	p.secretOnce.Do(p.resolveSecret)
	if p.secret.err != nil {
		return nil, p.secret.err
	}
	return p.secret.value, nil
}

// WeakSecret reports whether the development default is in use in a production-like env.
func (p *Provider) WeakSecret() bool {
	p.secretOnce.Do(p.resolveSecret)
	return p.secret.Weak
}

// SecretSource names the variable the session secret was read from.
func (p *Provider) SecretSource() string {
	p.secretOnce.Do(p.resolveSecret)
	return p.secret.Source
}

func (p *Provider) resolveSecret() {
	for _, candidate := range p.auth.SessionSecrets {
		if candidate.Value != "" {
			p.secret = SecretResolution{Source: candidate.Name, value: []byte(candidate.Value)}
			return
		}
	}

	if p.auth.StrictSecret {
		p.logger.Error("no session secret configured and development default refused")
		p.secret = SecretResolution{err: apperrors.NewSecretMisconfigured(ErrSecretUnavailable)}
		return
	}

	p.secret = SecretResolution{Source: "default", Weak: p.production, value: []byte(config.DevSessionSecret)}
	if p.production {
		p.logger.Warn("WeakSecret: using development session secret in a production-like environment")
	}
}

// ResolvePrivateKey returns the current signing material, reloading it once the refresh
// interval has elapsed. Any load or parse failure is reported as a key configuration error;
// nothing is ever signed with missing or unparsable material.
func (p *Provider) ResolvePrivateKey(ctx context.Context) (*Material, error) {
	p.mu.RLock()
	material, loadedAt := p.material, p.loadedAt
	p.mu.RUnlock()

	if material != nil && !p.stale(loadedAt) {
		return material, nil
	}

	fresh, err := p.load(ctx)
	if err != nil {
		p.logger.Error("signing key unavailable", zap.Error(err))
		return nil, apperrors.NewKeyMisconfigured(fmt.Errorf("%w: %v", ErrKeyUnavailable, err))
	}

	p.mu.Lock()
	if p.material == nil || p.material.KeyID != fresh.KeyID {
		p.logger.Info("signing key loaded",
			zap.String("kid", fresh.KeyID),
			zap.String("alg", fresh.Algorithm()),
			zap.String("source", p.source.Name()))
	}
	p.material = fresh
	p.loadedAt = p.now()
	p.mu.Unlock()

	return fresh, nil
}

// CurrentKeyID returns the configured key id, or the id of the loaded key. It is empty until
// the first successful load when no id is configured.
func (p *Provider) CurrentKeyID() string {
	if p.auth.SigningKeyID != "" {
		return p.auth.SigningKeyID
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.material == nil {
		return ""
	}
	return p.material.KeyID
}

// Warm loads the signing key ahead of the first request.
func (p *Provider) Warm(ctx context.Context) error {
	_, err := p.ResolvePrivateKey(ctx)
	return err
}

// PublicKeySet returns the current public key followed by retired keys that may still
// verify tokens minted before the last rotation.
func (p *Provider) PublicKeySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	material, err := p.ResolvePrivateKey(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{material.JWK()}}
	for _, key := range p.previous {
		if key.KeyID == material.KeyID {
			continue
		}
		set.Keys = append(set.Keys, key)
	}
	return set, nil
}

func (p *Provider) stale(loadedAt time.Time) bool {
	refresh := p.auth.KeyRefresh()
	if refresh <= 0 {
		return false
	}
	return p.now().Sub(loadedAt) >= refresh
}

func (p *Provider) load(ctx context.Context) (*Material, error) {
	if p.source == nil {
		return nil, errors.New("no signing key configured")
	}
	pemBytes, err := p.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKeyPEM(pemBytes, p.auth.SigningKeyID)
}

func readKeySet(path string) ([]jose.JSONWebKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read previous key set: %w", err)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode previous key set: %w", err)
	}
	keys := make([]jose.JSONWebKey, 0, len(set.Keys))
	for _, key := range set.Keys {
		if key.KeyID == "" || !key.Valid() {
			return nil, fmt.Errorf("previous key set contains an invalid key %q", key.KeyID)
		}
		keys = append(keys, key.Public())
	}
	return keys, nil
}
