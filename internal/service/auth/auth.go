package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/payouts/internal/apperrors"
	"github.com/nkiryanov/payouts/internal/models"
	"github.com/nkiryanov/payouts/internal/repository"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type TokenManager interface {
	Generate(user models.User) (models.IssuedToken, error)
	ParseAccess(access string) (uuid.UUID, error)
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Header and scheme the access token is read from and written to
	AccessHeaderName string
	AccessAuthScheme string
}

type AuthService struct {
	hasher       PasswordHasher
	tokenManager TokenManager
	storage      repository.Storage

	accessHeaderName string
	accessAuthScheme string

	// Hash compared when user not found, so response time does not reveal it
	dummyHash string
}

func NewService(cfg Config, tokenManager TokenManager, storage repository.Storage) (*AuthService, error) {
	s := &AuthService{
		hasher:           cfg.Hasher,
		tokenManager:     tokenManager,
		storage:          storage,
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
	}

	if s.hasher == nil {
		s.hasher = BcryptHasher{}
	}
	if s.accessHeaderName == "" {
		s.accessHeaderName = defaultAccessHeaderName
	}
	if s.accessAuthScheme == "" {
		s.accessAuthScheme = defaultAccessAuthScheme
	}

	dummy, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing hasher. Err: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates user with zero balance and returns access token
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	var user models.User
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, username, hash, false)
		if err != nil {
			return err
		}

		_, err = storage.Balance().CreateBalance(ctx, user.ID)
		return err
	})
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(user)
}

// Login checks user credentials and returns access token
// Unknown user and wrong password are both reported as apperrors.ErrUserNotFound
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.IssuedToken{}, apperrors.ErrUserNotFound
	case err != nil:
		return models.IssuedToken{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.IssuedToken{}, apperrors.ErrUserNotFound
	}

	return s.issue(user)
}

// Auth reads access token from request and returns the user it was issued for
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" {
		return models.User{}, errors.New("access token not found")
	}

	userID, err := s.tokenManager.ParseAccess(strings.TrimSpace(token))
	if err != nil {
		return models.User{}, err
	}

	return s.storage.User().GetUserByID(ctx, userID)
}

// SetAuth writes access token to response header
func (s *AuthService) SetAuth(w http.ResponseWriter, token models.IssuedToken) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+token.Value)
}

func (s *AuthService) issue(user models.User) (models.IssuedToken, error) {
	token, err := s.tokenManager.Generate(user)
	if err != nil {
		return token, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return token, nil
}
