package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/token-bridge/internal/auth"
	"github.com/spec-kit/token-bridge/internal/config"
	"github.com/spec-kit/token-bridge/internal/domain"
	"github.com/spec-kit/token-bridge/internal/observability"
	"github.com/spec-kit/token-bridge/internal/ratelimit"
	"github.com/spec-kit/token-bridge/internal/repository"
	apperrors "github.com/spec-kit/token-bridge/pkg/util/errorutil"
)

// LoginEndpoint is the rate limit namespace of credential entry.
const LoginEndpoint = "login"

// SessionIssuer mints session credentials.
type SessionIssuer interface {
	Issue(user *domain.User) (string, time.Time, error)
}

// LoginRequest carries submitted credentials. Password never leaves this call.
type LoginRequest struct {
	Email    string
	Password string
	Origin   domain.ClientOrigin
}

// LoginResult is the issued session credential.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// LoginDependencies bundles collaborators of the login flow.
type LoginDependencies struct {
	Limiter   ratelimit.Limiter
	Directory repository.UserDirectory
	Issuer    SessionIssuer
	Recorder  SecurityRecorder
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// LoginService authenticates against the user directory and issues session credentials.
type LoginService struct {
	limiter   ratelimit.Limiter
	policy    ratelimit.Policy
	directory repository.UserDirectory
	issuer    SessionIssuer
	recorder  SecurityRecorder
	metrics   *observability.Metrics
	logger    *zap.Logger
	dummyHash string
}

// NewLoginService builds the service. The dummy hash keeps unknown-email attempts as slow as
// wrong-password attempts.
func NewLoginService(cfg *config.Config, deps LoginDependencies) (*LoginService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := auth.HashPassword("token-bridge-dummy-password", cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &LoginService{
		limiter: deps.Limiter,
		policy: ratelimit.Policy{
			Max:    cfg.RateLimit.LoginMax,
			Window: time.Duration(cfg.RateLimit.LoginWindowSeconds) * time.Second,
		},
		directory: deps.Directory,
		issuer:    deps.Issuer,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    logger.Named("login"),
		dummyHash: dummy,
	}, nil
}

// Login admits the attempt, checks credentials and issues a session credential.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	limiterKey := ratelimit.Key(LoginEndpoint, req.Origin.IP)

	decision, err := s.limiter.Admit(ctx, limiterKey, s.policy)
	if err != nil {
		s.fail(ctx, email, string(apperrors.KindInternal), req.Origin)
		return nil, apperrors.NewInternalError(err)
	}
	if !decision.Allowed {
		s.recorder.RecordRateLimited(ctx, limiterKey, "/auth/login", req.Origin)
		s.metrics.RecordLogin(string(apperrors.KindRateLimited))
		return nil, apperrors.NewRateLimited(decision.RetryAfter)
	}

	user, err := s.directory.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = auth.ComparePassword(s.dummyHash, req.Password)
			s.fail(ctx, email, domain.ReasonInvalidCredentials, req.Origin)
			return nil, apperrors.NewUnauthorized("Invalid credentials")
		}
		s.logger.Error("user directory lookup failed", zap.Error(err))
		s.fail(ctx, email, domain.ReasonDirectoryError, req.Origin)
		return nil, apperrors.NewInternalError(err)
	}

	if err := auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		s.fail(ctx, email, domain.ReasonInvalidCredentials, req.Origin)
		return nil, apperrors.NewUnauthorized("Invalid credentials")
	}
	if user.Status != domain.UserStatusActive {
		s.fail(ctx, email, domain.ReasonAccountDisabled, req.Origin)
		return nil, apperrors.NewUnauthorized("Invalid credentials")
	}

	token, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		reason := domain.ReasonSigningFailed
		if apperrors.KindOf(err) == apperrors.KindServerMisconfigured {
			reason = domain.ReasonSecretUnavailable
		}
		s.fail(ctx, user.ID, reason, req.Origin)
		return nil, err
	}

	s.recorder.RecordSuccess(ctx, user.ID, domain.MethodPassword, req.Origin)
	s.metrics.RecordLogin(observability.OutcomeSuccess)
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *LoginService) fail(ctx context.Context, actor, reason string, origin domain.ClientOrigin) {
	s.recorder.RecordFailure(ctx, actor, domain.MethodPassword, reason, origin)
	s.metrics.RecordLogin(reason)
}
