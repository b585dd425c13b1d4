package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/melkiimultic/primitiveBank/internal/core/domain"
	"github.com/melkiimultic/primitiveBank/internal/core/security"
)

// UserService manages principals: registration, login, profile changes.
// It never touches balances.
type UserService struct {
	users    UserStore
	accounts AccountStore
	tokens   *security.TokenIssuer
	logger   *slog.Logger
}

func NewUserService(users UserStore, accounts AccountStore, tokens *security.TokenIssuer, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, accounts: accounts, tokens: tokens, logger: logger}
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Register creates a user with a bcrypt-hashed password and returns its id.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (int64, error) {
	if req == nil || req.Username == "" || req.Password == "" {
		return 0, fmt.Errorf("%w: username and password are required", domain.ErrBadRequest)
	}
	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return 0, err
	}
	user, err := s.users.Create(ctx, &domain.User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	})
	if err != nil {
		return 0, fmt.Errorf("register %q: %w", req.Username, err)
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user.ID, nil
}

// Login verifies credentials and returns a signed bearer token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		// Don't leak whether the username exists.
		return "", fmt.Errorf("%w: bad credentials", domain.ErrUnauthenticated)
	}
	if !security.CheckPassword(password, user.PasswordHash) {
		return "", fmt.Errorf("%w: bad credentials", domain.ErrUnauthenticated)
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetByID loads the principal for an already-verified token subject.
func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateInfo replaces the actor's profile names.
func (s *UserService) UpdateInfo(ctx context.Context, actor *domain.User, firstName, lastName string) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	return s.users.UpdateInfo(ctx, actor.ID, firstName, lastName)
}

// DeleteUser removes the actor. A user still owning accounts cannot be
// deleted; accounts must be closed first so no balance is orphaned.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.User) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	accounts, err := s.accounts.FindByOwner(ctx, actor.ID)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return fmt.Errorf("%w: user still owns %d account(s)", domain.ErrForbiddenOperation, len(accounts))
	}
	if err := s.users.Delete(ctx, actor.ID); err != nil {
		return fmt.Errorf("delete user %d: %w", actor.ID, err)
	}
	s.logger.Info("user deleted", "user_id", actor.ID)
	return nil
}
