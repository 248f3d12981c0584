package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/config"
	"github.com/spec-kit/token-bridge/internal/domain"
	"github.com/spec-kit/token-bridge/internal/keys"
	"github.com/spec-kit/token-bridge/internal/observability"
	"github.com/spec-kit/token-bridge/internal/ratelimit"
	"github.com/spec-kit/token-bridge/internal/servicetoken"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// ExchangeEndpoint is the rate limit namespace of the token exchange.
const ExchangeEndpoint = "exchange"

// State is a step of the exchange state machine.
type State int

const (
	StateStart State = iota
	StateRateChecked
	StateVerified
	StateKeyResolved
	StateMinted
	StateResponded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRateChecked:
		return "rate_checked"
	case StateVerified:
		return "verified"
	case StateKeyResolved:
		return "key_resolved"
	case StateMinted:
		return "minted"
	case StateResponded:
		return "responded"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionVerifier validates the inbound session credential.
type SessionVerifier interface {
	Verify(token string) (*domain.SessionClaims, error)
}

// KeyResolver supplies signing material.
type KeyResolver interface {
	ResolvePrivateKey(ctx context.Context) (*keys.Material, error)
}

// TokenMinter signs service tokens.
type TokenMinter interface {
	Mint(ctx context.Context, signer servicetoken.Signer, claims *domain.SessionClaims, baseURL string) (*servicetoken.Token, error)
}

// SecurityRecorder receives one event per attempt.
type SecurityRecorder interface {
	RecordSuccess(ctx context.Context, actor, method string, origin domain.ClientOrigin)
	RecordFailure(ctx context.Context, actor, method, reason string, origin domain.ClientOrigin)
	RecordRateLimited(ctx context.Context, key, endpoint string, origin domain.ClientOrigin)
}

// ExchangeRequest carries what the transport extracted from the inbound request.
type ExchangeRequest struct {
	SessionToken string
	Origin       domain.ClientOrigin
}

// ExchangeDependencies bundles the collaborators of the exchange.
type ExchangeDependencies struct {
	Limiter  ratelimit.Limiter
	Verifier SessionVerifier
	Keys     KeyResolver
	Minter   TokenMinter
	Recorder SecurityRecorder
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// ExchangeService converts a verified session into a service token.
type ExchangeService struct {
	limiter    ratelimit.Limiter
	policy     ratelimit.Policy
	verifier   SessionVerifier
	keys       KeyResolver
	minter     TokenMinter
	recorder   SecurityRecorder
	metrics    *observability.Metrics
	logger     *zap.Logger
	baseURL    string
	keyTimeout time.Duration
}

// NewExchangeService builds the service.
func NewExchangeService(cfg *config.Config, deps ExchangeDependencies) *ExchangeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExchangeService{
		limiter: deps.Limiter,
		policy: ratelimit.Policy{
			Max:    cfg.RateLimit.ExchangeMax,
			Window: time.Duration(cfg.RateLimit.ExchangeWindowSecs) * time.Second,
		},
		verifier:   deps.Verifier,
		keys:       deps.Keys,
		minter:     deps.Minter,
		recorder:   deps.Recorder,
		metrics:    deps.Metrics,
		logger:     logger.Named("exchange"),
		baseURL:    cfg.App.BaseURL,
		keyTimeout: cfg.Auth.KeyFetchTimeout(),
	}
}

type exchangeRun struct {
	state  State
	actor  string
	req    ExchangeRequest
	claims *domain.SessionClaims
}

func (r *exchangeRun) advance(to State) error {
	if r.state == StateRejected || to != r.state+1 {
		return fmt.Errorf("illegal exchange transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}

// Exchange runs Start -> RateChecked -> Verified -> KeyResolved -> Minted -> Responded.
// Any failure moves to Rejected, records exactly one security event and returns a typed error.
func (s *ExchangeService) Exchange(ctx context.Context, req ExchangeRequest) (*servicetoken.Token, error) {
	run := &exchangeRun{state: StateStart, req: req}
	limiterKey := ratelimit.Key(ExchangeEndpoint, req.Origin.IP)

	decision, err := s.limiter.Admit(ctx, limiterKey, s.policy)
	if err != nil {
		return nil, s.reject(ctx, run, apperrors.NewInternalError(fmt.Errorf("rate limiter: %w", err)))
	}
	if !decision.Allowed {
		run.actor = limiterKey
		return nil, s.reject(ctx, run, apperrors.NewRateLimited(decision.RetryAfter))
	}
	if err := run.advance(StateRateChecked); err != nil {
		return nil, s.reject(ctx, run, apperrors.NewInternalError(err))
	}

	claims, err := s.verifier.Verify(req.SessionToken)
	if err != nil {
		return nil, s.reject(ctx, run, err)
	}
	run.claims = claims
	run.actor = claims.Subject
	if err := run.advance(StateVerified); err != nil {
		return nil, s.reject(ctx, run, apperrors.NewInternalError(err))
	}

	material, err := s.resolveKey(ctx)
	if err != nil {
		return nil, s.reject(ctx, run, err)
	}
	if err := run.advance(StateKeyResolved); err != nil {
		return nil, s.reject(ctx, run, apperrors.NewInternalError(err))
	}

	token, err := s.mint(ctx, run, material)
	if err != nil {
		return nil, s.reject(ctx, run, err)
	}
	if err := run.advance(StateMinted); err != nil {
		return nil, s.reject(ctx, run, apperrors.NewInternalError(err))
	}

	_ = run.advance(StateResponded)
	s.recorder.RecordSuccess(ctx, claims.Subject, domain.MethodSessionExchange, req.Origin)
	s.metrics.RecordExchange(observability.OutcomeSuccess)
	s.logger.Info("service token minted",
		zap.String("subject", claims.Subject),
		zap.String("kid", token.KeyID),
		zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

func (s *ExchangeService) resolveKey(ctx context.Context) (*keys.Material, error) {
	if s.keyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.keyTimeout)
		defer cancel()
	}
	material, err := s.keys.ResolvePrivateKey(ctx)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindServerMisconfigured {
			err = apperrors.NewKeyMisconfigured(err)
		}
		return nil, err
	}
	return material, nil
}

// mint only accepts claims that reached Verified and material that reached KeyResolved.
func (s *ExchangeService) mint(ctx context.Context, run *exchangeRun, material *keys.Material) (*servicetoken.Token, error) {
	if run.state != StateKeyResolved || run.claims == nil {
		return nil, apperrors.NewSigningFailed(fmt.Errorf("mint attempted in state %s", run.state))
	}
	token, err := s.minter.Mint(ctx, material, run.claims, s.baseURL)
	if err != nil {
		if apperrors.KindOf(err) != apperrors.KindSigningFailed {
			err = apperrors.NewSigningFailed(err)
		}
		return nil, err
	}
	return token, nil
}

func (s *ExchangeService) reject(ctx context.Context, run *exchangeRun, err error) error {
	from := run.state
	run.state = StateRejected
	domainErr := apperrors.ToDomainError(err)

	if domainErr.Kind == apperrors.KindRateLimited {
		s.recorder.RecordRateLimited(ctx, run.actor, "/auth/token", run.req.Origin)
	} else {
		s.recorder.RecordFailure(ctx, run.actor, domain.MethodSessionExchange, failureReason(domainErr), run.req.Origin)
	}
	s.metrics.RecordExchange(string(domainErr.Kind))

	fields := []zap.Field{
		zap.String("from_state", from.String()),
		zap.String("kind", string(domainErr.Kind)),
		zap.String("client_ip", run.req.Origin.IP),
	}
	if domainErr.HTTPStatus >= 500 {
		s.logger.Error("exchange rejected", append(fields, zap.Error(domainErr))...)
	} else {
		s.logger.Info("exchange rejected", fields...)
	}
	return domainErr
}

func failureReason(err *apperrors.DomainError) string {
	switch err.Kind {
	case apperrors.KindUnauthenticated:
		return domain.ReasonNotAuthenticated
	case apperrors.KindMalformed:
		return domain.ReasonMalformed
	case apperrors.KindExpired:
		return domain.ReasonExpired
	case apperrors.KindSigningFailed:
		return domain.ReasonSigningFailed
	case apperrors.KindServerMisconfigured:
		if errors.Is(err, keys.ErrSecretUnavailable) || err.Code == apperrors.CodeSecretConfiguration {
			return domain.ReasonSecretUnavailable
		}
		return domain.ReasonKeyUnavailable
	default:
		return string(err.Kind)
	}
}
