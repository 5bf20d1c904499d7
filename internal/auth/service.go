package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/botdesk/botdesk/internal/events"
	"github.com/botdesk/botdesk/internal/oauth"
	"github.com/botdesk/botdesk/internal/token"
	"github.com/botdesk/botdesk/internal/user"
)

// ErrInvalidCredentials is returned by Login for any email/password mismatch.
var ErrInvalidCredentials = errors.New("invalid email or password")

// SignUpInput holds the fields of an email sign-up.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// Service implements account operations on top of the credential store.
type Service struct {
	users      user.Repository
	codec      *token.Codec
	tokenTTL   time.Duration
	bcryptCost int
	publisher  events.Publisher
}

// NewService creates a new auth Service. A nil publisher discards events.
func NewService(users user.Repository, codec *token.Codec, tokenTTL time.Duration, bcryptCost int, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		users:      users,
		codec:      codec,
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
		publisher:  publisher,
	}
}

// IssueToken signs a bearer token for u.
func (s *Service) IssueToken(u *user.User) (string, error) {
	claims := token.Claims{Email: u.Email}
	claims.Subject = u.ID.String()
	return s.codec.Issue(claims, s.tokenTTL)
}

// SignUp creates an email account and returns it with a fresh token.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*user.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}
	hashStr := string(hash)

	u := &user.User{
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: &hashStr,
		Name:         strings.TrimSpace(in.Name),
		Provider:     user.ProviderEmail,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}

	s.publish(ctx, events.KeyUserRegistered, events.UserRegistered{
		UserID: u.ID, Email: u.Email, Name: u.Name, Provider: u.Provider, OccurredAt: time.Now().UTC(),
	})

	tok, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

// Login checks email and password and returns a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("finding user: %w", err)
	}

	if !u.HasPassword() {
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	tok, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

// GoogleSignIn resolves a verified Google identity to an account. A known
// Google subject wins; otherwise an account with the same email is linked;
// otherwise a new Google account is created.
func (s *Service) GoogleSignIn(ctx context.Context, id *oauth.Identity) (*user.User, string, error) {
	u, err := s.users.FindByGoogleID(ctx, id.Subject)
	switch {
	case err == nil:
	case errors.Is(err, user.ErrUserNotFound):
		u, err = s.linkOrCreate(ctx, id)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", fmt.Errorf("finding user by google id: %w", err)
	}

	tok, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, tok, nil
}

func (s *Service) linkOrCreate(ctx context.Context, id *oauth.Identity) (*user.User, error) {
	existing, err := s.users.FindByEmail(ctx, id.Email)
	if err == nil {
		patch := user.Patch{GoogleID: &id.Subject}
		if existing.AvatarURL == "" && id.Picture != "" {
			patch.AvatarURL = &id.Picture
		}
		linked, err := s.users.Update(ctx, existing.ID, patch)
		if err != nil {
			return nil, fmt.Errorf("linking google account: %w", err)
		}
		slog.Info("linked google account", "userId", linked.ID)
		return linked, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, fmt.Errorf("finding user by email: %w", err)
	}

	subject := id.Subject
	u := &user.User{
		Email:     id.Email,
		GoogleID:  &subject,
		Name:      id.Name,
		AvatarURL: id.Picture,
		Provider:  user.ProviderGoogle,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating google user: %w", err)
	}

	s.publish(ctx, events.KeyUserRegistered, events.UserRegistered{
		UserID: u.ID, Email: u.Email, Name: u.Name, Provider: u.Provider, OccurredAt: time.Now().UTC(),
	})
	return u, nil
}

// SetPremium writes the premium flag of targetID on behalf of actorID.
// source is events.SourceSelf or events.SourceAdmin.
func (s *Service) SetPremium(ctx context.Context, actorID, targetID uuid.UUID, premium bool, source string) (*user.User, error) {
	u, err := s.users.Update(ctx, targetID, user.Patch{IsPremium: &premium})
	if err != nil {
		return nil, err
	}

	slog.Info("premium flag changed", "userId", u.ID, "isPremium", premium, "source", source, "actorId", actorID)
	s.publish(ctx, events.KeyPremiumChanged, events.PremiumChanged{
		UserID: u.ID, Email: u.Email, IsPremium: premium, Source: source, ActorID: actorID, OccurredAt: time.Now().UTC(),
	})
	return u, nil
}

// BootstrapAdmin creates an admin account when the users table is empty.
// Returns nil, nil when users already exist.
func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) (*user.User, error) {
	count, err := s.users.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	u, _, err := s.SignUp(ctx, SignUpInput{Email: email, Password: password, Name: "admin"})
	if err != nil {
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	isAdmin := true
	u, err = s.users.Update(ctx, u.ID, user.Patch{IsAdmin: &isAdmin})
	if err != nil {
		return nil, fmt.Errorf("granting admin: %w", err)
	}

	slog.Info("admin account created", "email", u.Email)
	return u, nil
}

// publish logs instead of failing: events never block account operations.
func (s *Service) publish(ctx context.Context, key string, event any) {
	if err := s.publisher.Publish(ctx, key, event); err != nil {
		slog.Warn("failed to publish event", "key", key, "error", err)
	}
}
