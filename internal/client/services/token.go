package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/papershelf/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/papershelf/internal/dbx"
	"github.com/golang-jwt/jwt/v5"
)

// TokenStore keeps the access token in the metadata namespace.
type TokenStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db, now: time.Now}
}

func (s *TokenStore) repo() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// Token returns the stored access token if it has not expired, else "".
// It matches client.TokenSource.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	raw, err := s.repo().Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return "", err
	}
	tok := string(raw)
	if tok == "" || !s.valid(tok) {
		return "", nil
	}
	return tok, nil
}

func (s *TokenStore) IsAuthenticated(ctx context.Context) bool {
	tok, err := s.Token(ctx)
	return err == nil && tok != ""
}

func (s *TokenStore) Username(ctx context.Context) (string, error) {
	raw, err := s.repo().Get(ctx, metadata.KeyUsername)
	return string(raw), err
}

func (s *TokenStore) Save(ctx context.Context, username, token string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyAccessToken, []byte(token))
	})
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.NewSQLiteRepository(tx).Delete(ctx, metadata.KeyAccessToken, metadata.KeyUsername)
	})
}

// valid checks the exp claim only; the signature is the server's business.
func (s *TokenStore) valid(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	return exp == nil || s.now().Before(exp.Time)
}

// ExpiresAt returns the exp claim of the stored token.
func (s *TokenStore) ExpiresAt(ctx context.Context) (time.Time, error) {
	raw, err := s.repo().Get(ctx, metadata.KeyAccessToken)
	if err != nil {
		return time.Time{}, err
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(raw), claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return exp.Time, nil
}
