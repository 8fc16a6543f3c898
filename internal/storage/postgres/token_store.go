package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Register adds a tracked token. Returns ErrDuplicateKey if mint exists.
func (s *TokenStore) Register(ctx context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" || t.FeeAccount == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (mint, fee_account, label, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, t.Mint, t.FeeAccount, t.Label, t.CreatedAt); err != nil {
		return mapWriteError(err, "insert token")
	}
	return nil
}

// Get retrieves a token by mint. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(ctx context.Context, mint string) (*domain.Token, error) {
	query := `
		SELECT mint, fee_account, label, created_at
		FROM tokens
		WHERE mint = $1
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, mint).Scan(&t.Mint, &t.FeeAccount, &t.Label, &t.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// ListTracked retrieves all tokens ordered by mint ASC.
func (s *TokenStore) ListTracked(ctx context.Context) ([]*domain.Token, error) {
	query := `
		SELECT mint, fee_account, label, created_at
		FROM tokens
		ORDER BY mint ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

func scanTokens(rows pgx.Rows) ([]*domain.Token, error) {
	var tokens []*domain.Token
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(&t.Mint, &t.FeeAccount, &t.Label, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}
