package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"chatclient/models"
)

var (
	ErrAuthFailed           = errors.New("authentication failed")
	ErrAuthInProgress       = errors.New("authentication already in progress")
	ErrVerificationRequired = errors.New("check your email to verify your account, then sign in")
)

// AuthResult is a provider's answer. An empty AccessToken means the account
// exists but must be verified before it can sign in.
type AuthResult struct {
	AccessToken string
	User        models.User
}

type SessionProvider interface {
	SignIn(ctx context.Context, email, password string) (AuthResult, error)
	SignUp(ctx context.Context, email, password string) (AuthResult, error)
}

type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateLoading
	StateAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unauthenticated"
}

// Session holds who is signed in. Everything cached on behalf of the user is
// registered through OnSignOut and dropped when the session ends.
type Session struct {
	provider SessionProvider
	tokens   *TokenStore
	log      *zap.Logger

	mu    sync.RWMutex
	state SessionState
	user  models.User
	hooks []func()
	// epoch advances on every sign-out
	epoch uint64
}

func NewSession(provider SessionProvider, tokens *TokenStore, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{provider: provider, tokens: tokens, log: log}
}

func (s *Session) SignIn(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "sign-in", email, password, s.provider.SignIn)
}

func (s *Session) SignUp(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, "sign-up", email, password, s.provider.SignUp)
}

func (s *Session) authenticate(ctx context.Context, op, email, password string,
	call func(context.Context, string, string) (AuthResult, error)) error {
	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return ErrAuthInProgress
	}
	s.state = StateLoading
	epoch := s.epoch
	s.mu.Unlock()

	res, err := call(ctx, email, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.epoch != epoch:
		s.log.Info(op+" finished after sign-out, result dropped", zap.String("email", email))
		return ErrAuthFailed
	case err != nil:
		s.log.Warn(op+" failed", zap.String("email", email), zap.Error(err))
		s.state = StateUnauthenticated
		s.user = models.User{}
		return ErrAuthFailed
	case res.AccessToken == "":
		s.log.Info(op+" needs email verification", zap.String("email", email))
		s.state = StateUnauthenticated
		s.user = models.User{}
		return ErrVerificationRequired
	}

	if err := s.tokens.Save(StoredSession{AccessToken: res.AccessToken, User: res.User}); err != nil {
		// the session still works for this process
		s.log.Warn("persist session", zap.Error(err))
	}
	s.state = StateAuthenticated
	s.user = res.User
	s.log.Debug(op+" succeeded", zap.String("user_id", res.User.ID))
	return nil
}

// Restore resumes a persisted session without contacting the provider.
func (s *Session) Restore() (bool, error) {
	stored, err := s.tokens.Load()
	if errors.Is(err, ErrNoStoredSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = stored.User
	s.mu.Unlock()
	return true, nil
}

// SignOut resets the session and runs every invalidation hook before
// returning.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.state = StateUnauthenticated
	s.user = models.User{}
	s.epoch++
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	if err := s.tokens.Clear(); err != nil {
		s.log.Warn("clear stored session", zap.Error(err))
	}
	for _, h := range hooks {
		h()
	}
}

func (s *Session) OnSignOut(hook func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool { return s.State() == StateAuthenticated }
func (s *Session) IsLoading() bool       { return s.State() == StateLoading }

func (s *Session) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}
