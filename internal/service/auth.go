package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/remote"
	"github.com/atinyakov/GophFood/internal/client/storage"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
)

// AuthRemote defines the remote operations required by the AuthService.
type AuthRemote interface {
	// Login exchanges credentials for an identity carrying a bearer token.
	// Returns an error if the credentials are rejected.
	Login(ctx context.Context, username, password string) (models.AuthIdentity, error)
	// ValidateToken checks the bearer token of the signed-in user.
	ValidateToken(ctx context.Context) error
	// Register creates an unverified account and returns the service message.
	Register(ctx context.Context, reg models.Registration) (string, error)
	// VerifyOTP confirms an account email with the code sent to it.
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	// ResendOTP sends a new verification code to email.
	ResendOTP(ctx context.Context, email string) (string, error)
	// LookupUser returns the public profile of username.
	LookupUser(ctx context.Context, username string) (models.UserProfile, error)
}

// MsgUnverified is the login rejection of an account whose email has not
// been verified yet.
const MsgUnverified = "Please verify your email before logging in"

const minPasswordLen = 6

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern   = regexp.MustCompile(`^[0-9]{4}$`)
)

// ErrSessionExpired is returned by Validate when the remote service rejects
// the stored token. The identity has been forgotten by then.
var ErrSessionExpired = errors.New("session expired, please sign in again")

// UnverifiedError rejects the sign-in of an account awaiting email
// verification.
type UnverifiedError struct {
	Username string
	// Email is where the code was sent, empty when the lookup failed.
	Email string
	Err   error
}

func (e *UnverifiedError) Error() string { return e.Err.Error() }

func (e *UnverifiedError) Unwrap() error { return e.Err }

// AuthService owns the signed-in identity. It persists the identity under
// storage.KeyAuth so a restarted client stays signed in, and it is the
// IdentityProvider and token source of the other services.
type AuthService struct {
	// store keeps the identity across restarts.
	store storage.Store
	// remote performs the credential exchange.
	remote AuthRemote
	log    *zap.Logger
	hub    Hub[models.AuthIdentity]

	mu       sync.RWMutex
	identity models.AuthIdentity
}

// NewAuthService constructs an AuthService. The identity is empty until
// Load or SignIn.
func NewAuthService(store storage.Store, remote AuthRemote, log *zap.Logger) *AuthService {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &AuthService{store: store, remote: remote, log: logger.OrNop(log).Named("auth")}
}

// Identity implements IdentityProvider.
func (s *AuthService) Identity() models.AuthIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Token returns the bearer token of the signed-in user or "".
func (s *AuthService) Token(context.Context) string {
	return s.Identity().Token
}

// Subscribe registers for identity changes.
func (s *AuthService) Subscribe() (<-chan models.AuthIdentity, func()) {
	return s.hub.Subscribe()
}

// Load restores the persisted identity. A missing or unreadable identity
// leaves the user signed out.
func (s *AuthService) Load(ctx context.Context) models.AuthIdentity {
	var id models.AuthIdentity
	if err := storage.LoadJSON(ctx, s.store, storage.KeyAuth, &id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load identity", zap.Error(err))
		}
		id = models.AuthIdentity{}
	}
	s.set(id)
	return id
}

// SignIn exchanges the credentials for an identity and persists it.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (models.AuthIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.AuthIdentity{}, invalid("Username and password are required")
	}
	if s.remote == nil {
		return models.AuthIdentity{}, ErrNoRemote
	}

	id, err := s.remote.Login(ctx, username, password)
	if err != nil {
		s.log.Warn("sign in rejected", zap.String("username", username), zap.Error(err))
		if rejectionMessage(err, "") == MsgUnverified {
			return models.AuthIdentity{}, s.unverified(ctx, username, err)
		}
		return models.AuthIdentity{}, err
	}
	if err := storage.SaveJSON(ctx, s.store, storage.KeyAuth, id); err != nil {
		s.log.Error("failed to persist identity", zap.Error(err))
	}
	s.set(id)
	s.log.Info("signed in", zap.String("user_id", id.ID))
	return id, nil
}

// unverified looks up the email the verification code went to. A failed
// lookup still yields the UnverifiedError, without email.
func (s *AuthService) unverified(ctx context.Context, username string, cause error) error {
	uerr := &UnverifiedError{Username: username, Err: cause}
	profile, err := s.remote.LookupUser(ctx, username)
	if err != nil {
		s.log.Warn("user lookup failed", zap.String("username", username), zap.Error(err))
		return uerr
	}
	uerr.Email = profile.Email
	return uerr
}

// Validate checks the stored token with the remote service. A token the
// service rejects with 401 or 403 is forgotten and ErrSessionExpired is
// returned; any other failure keeps the identity. It is a no-op while
// signed out.
func (s *AuthService) Validate(ctx context.Context) error {
	if !s.Identity().Authenticated() {
		return nil
	}
	if s.remote == nil {
		return ErrNoRemote
	}
	err := s.remote.ValidateToken(ctx)
	switch {
	case err == nil:
		return nil
	case remote.IsStatus(err, http.StatusUnauthorized), remote.IsStatus(err, http.StatusForbidden):
		s.log.Info("stored token rejected, signing out", zap.Error(err))
		if rerr := s.SignOut(ctx); rerr != nil {
			s.log.Error("failed to remove identity", zap.Error(rerr))
		}
		return ErrSessionExpired
	default:
		s.log.Warn("token validation failed", zap.Error(err))
		return err
	}
}

// Register signs up a new account. The returned message comes from the
// service; the account must be verified with VerifyOTP before SignIn.
func (s *AuthService) Register(ctx context.Context, reg models.Registration) (string, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	switch {
	case reg.Username == "" || reg.Email == "" || reg.Password == "":
		return "", invalid("Please fill in all fields")
	case len(reg.Password) < minPasswordLen:
		return "", invalid("Password must be at least 6 characters")
	case !emailPattern.MatchString(reg.Email):
		return "", invalid("Please enter a valid email address")
	}
	if s.remote == nil {
		return "", ErrNoRemote
	}

	msg, err := s.remote.Register(ctx, reg)
	if err != nil {
		s.log.Warn("registration rejected", zap.String("username", reg.Username), zap.Error(err))
		return "", err
	}
	s.log.Info("registered", zap.String("username", reg.Username))
	return msg, nil
}

// VerifyOTP confirms email with the 4-digit code sent to it.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	if email == "" {
		return "", invalid("Email is required")
	}
	if !otpPattern.MatchString(code) {
		return "", invalid("Please enter 4-digit code")
	}
	if s.remote == nil {
		return "", ErrNoRemote
	}
	return s.remote.VerifyOTP(ctx, email, code)
}

// ResendOTP requests a new verification code for email.
func (s *AuthService) ResendOTP(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", invalid("Email is required")
	}
	if s.remote == nil {
		return "", ErrNoRemote
	}
	return s.remote.ResendOTP(ctx, email)
}

// LookupUser returns the public profile of username.
func (s *AuthService) LookupUser(ctx context.Context, username string) (models.UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.UserProfile{}, invalid("Username is required")
	}
	if s.remote == nil {
		return models.UserProfile{}, ErrNoRemote
	}
	return s.remote.LookupUser(ctx, username)
}

// SignOut forgets the identity.
func (s *AuthService) SignOut(ctx context.Context) error {
	s.set(models.AuthIdentity{})
	return s.store.Remove(ctx, storage.KeyAuth)
}

// Close closes subscriptions.
func (s *AuthService) Close() {
	s.hub.Close()
}

func (s *AuthService) set(id models.AuthIdentity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	s.hub.Publish(id)
}
