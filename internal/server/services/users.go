// Package services contains the server-side business logic: accounts and
// tokens, the sync exchange, and PDF storage links.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/common"
	"github.com/dmitrijs2005/papershelf/internal/cryptox"
	"github.com/dmitrijs2005/papershelf/internal/logging"
	"github.com/dmitrijs2005/papershelf/internal/server/auth"
	"github.com/dmitrijs2005/papershelf/internal/server/config"
	"github.com/dmitrijs2005/papershelf/internal/server/models"
	"github.com/dmitrijs2005/papershelf/internal/server/repositories/repomanager"
)

const saltSize = 32

// UserService registers accounts, verifies passwords and issues access
// tokens.
type UserService struct {
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	log                         logging.Logger
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		log:                         log.With("module", "user_service"),
	}
}

// Register creates an account. The password is stretched with a fresh salt
// and only its verifier is stored. A taken username yields
// common.ErrorAlreadyExists.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", common.ErrorValidation)
	}

	salt := s.getRandomSalt()
	user := &models.User{
		UserName: username,
		Salt:     salt,
		Verifier: cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), salt)),
	}

	u, err := s.repomanager.Users().Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	s.log.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies the password and returns a fresh access token. Unknown users
// and wrong passwords both yield common.ErrorUnauthorized after the same
// amount of key stretching.
func (s *UserService) Login(ctx context.Context, username, password string) (*api.Token, error) {
	user, err := s.repomanager.Users().GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorInternal
	}

	salt := s.getRandomSalt()
	if user != nil {
		salt = user.Salt
	}
	candidate := cryptox.MakeVerifier(cryptox.DeriveMasterKey([]byte(password), salt))

	if user == nil || !s.checkVerifier(user.Verifier, candidate) {
		return nil, common.ErrorUnauthorized
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		s.log.Error(ctx, "token signing failed", "error", err)
		return nil, common.ErrorInternal
	}
	return &api.Token{AccessToken: token, ExpiresAt: expiresAt.UTC()}, nil
}

// Authenticate returns the user an access token was issued to.
func (s *UserService) Authenticate(token string) (string, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	return userID, nil
}

func (s *UserService) getRandomSalt() []byte { return common.GenerateRandByteArray(saltSize) }

func (s *UserService) checkVerifier(verifier []byte, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}
