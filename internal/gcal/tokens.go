package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

var ErrNotConnected = errors.New("user has no google calendar token")

// TokenStore persists per-user OAuth tokens. Token acquisition (the consent
// flow) belongs to the identity layer; this store only reads rows it left
// behind and writes back refreshed access tokens.
type TokenStore struct {
	pool *pgxpool.Pool
}

func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

func (s *TokenStore) Get(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	var tok oauth2.Token
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_type, expiry
		FROM user_google_tokens
		WHERE user_id = $1
	`, userID).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &tok.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	return &tok, nil
}

func (s *TokenStore) Save(ctx context.Context, userID uuid.UUID, tok *oauth2.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_google_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry,
		    updated_at = EXCLUDED.updated_at
	`, userID, tok.AccessToken, tok.RefreshToken, tok.TokenType, tok.Expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save google token: %w", err)
	}
	return nil
}

// persistingTokenSource wraps the oauth2 refresh flow and writes refreshed
// access tokens back to the store so the next process start reuses them.
type persistingTokenSource struct {
	ctx    context.Context
	userID uuid.UUID
	store  *TokenStore
	src    oauth2.TokenSource
	last   string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.Save(p.ctx, p.userID, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}
