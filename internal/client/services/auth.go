// Package services contains the application services of the papershelf
// client: the record service that routes writes between server and local
// store, and authentication.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/client/client"
	"github.com/dmitrijs2005/papershelf/internal/common"
)

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: authenticate against the server and store the access token.
//   - Logout: forget the token; writes then stay local-only.
//   - Register: create a new user on the server.
//   - Ping: check server liveness.
//
// All methods must honor context cancellation/timeouts.
type AuthService interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	Register(ctx context.Context, username, password string) error
	Ping(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	Username(ctx context.Context) string
}

type authService struct {
	client client.Client
	tokens *TokenStore
}

func NewAuthService(c client.Client, tokens *TokenStore) AuthService {
	return &authService{client: c, tokens: tokens}
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}
	return nil
}

func (a *authService) Login(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		return err
	}
	tok, err := a.client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("login error: %w", client.ErrUnauthorized)
	}
	if err := a.tokens.Save(ctx, username, tok.AccessToken); err != nil {
		return fmt.Errorf("token saving error: %w", err)
	}
	return nil
}

func (a *authService) Logout(ctx context.Context) error {
	return a.tokens.Clear(ctx)
}

func (a *authService) Register(ctx context.Context, username, password string) error {
	if err := validateCredentials(username, password); err != nil {
		return err
	}
	return a.client.Register(ctx, username, password)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) IsAuthenticated(ctx context.Context) bool {
	return a.tokens.IsAuthenticated(ctx)
}

func (a *authService) Username(ctx context.Context) string {
	u, _ := a.tokens.Username(ctx)
	return u
}
