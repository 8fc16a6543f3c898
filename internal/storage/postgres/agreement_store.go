package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"royalty-ledger/internal/domain"
	"royalty-ledger/internal/storage"
)

// AgreementStore implements storage.AgreementStore using PostgreSQL.
type AgreementStore struct {
	pool *Pool
}

// NewAgreementStore creates a new AgreementStore.
func NewAgreementStore(pool *Pool) *AgreementStore {
	return &AgreementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AgreementStore = (*AgreementStore)(nil)

// GetActive retrieves the open version for a mint. Returns ErrNotFound if none.
func (s *AgreementStore) GetActive(ctx context.Context, mint string) (*domain.AgreementVersion, error) {
	versions, err := s.queryVersions(ctx, `
		SELECT version_id, mint, platform_fee_bps, effective_from, effective_to
		FROM royalty_agreement_versions
		WHERE mint = $1 AND effective_to IS NULL
	`, mint)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, storage.ErrNotFound
	}
	return versions[0], nil
}

// GetHistory retrieves all versions for a mint ordered by effective_from ASC.
func (s *AgreementStore) GetHistory(ctx context.Context, mint string) ([]*domain.AgreementVersion, error) {
	return s.queryVersions(ctx, `
		SELECT version_id, mint, platform_fee_bps, effective_from, effective_to
		FROM royalty_agreement_versions
		WHERE mint = $1
		ORDER BY effective_from ASC, version_id ASC
	`, mint)
}

// Rotate closes the active version at next.EffectiveFrom and opens next.
func (s *AgreementStore) Rotate(ctx context.Context, next *domain.AgreementVersion) error {
	if next == nil || next.VersionID == "" || next.Mint == "" || next.EffectiveTo != nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(`+lockKey+`)`, "agreement:"+next.Mint); err != nil {
		return fmt.Errorf("lock mint: %w", err)
	}

	var (
		curID   string
		curFrom int64
	)
	err = tx.QueryRow(ctx, `
		SELECT version_id, effective_from
		FROM royalty_agreement_versions
		WHERE mint = $1 AND effective_to IS NULL
		FOR UPDATE
	`, next.Mint).Scan(&curID, &curFrom)
	switch {
	case isNotFoundError(err):
	case err != nil:
		return fmt.Errorf("get active agreement: %w", err)
	default:
		if next.EffectiveFrom < curFrom {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx,
			`UPDATE royalty_agreement_versions SET effective_to = $2 WHERE version_id = $1`,
			curID, next.EffectiveFrom,
		); err != nil {
			return fmt.Errorf("close agreement %s: %w", curID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO royalty_agreement_versions (version_id, mint, platform_fee_bps, effective_from, effective_to)
		VALUES ($1, $2, $3, $4, NULL)
	`, next.VersionID, next.Mint, int32(next.PlatformFeeBps), next.EffectiveFrom)
	if err != nil {
		return mapWriteError(err, "insert agreement version")
	}

	for _, sh := range next.Shares {
		_, err := tx.Exec(ctx, `
			INSERT INTO royalty_agreement_shares (version_id, earner_wallet, bps, position)
			VALUES ($1, $2, $3, $4)
		`, next.VersionID, sh.EarnerWallet, int32(sh.Bps), sh.Position)
		if err != nil {
			return mapWriteError(err, "insert agreement share")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queryVersions loads versions and attaches their shares ordered by position.
func (s *AgreementStore) queryVersions(ctx context.Context, query string, args ...any) ([]*domain.AgreementVersion, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agreement versions: %w", err)
	}

	var (
		versions []*domain.AgreementVersion
		ids      []string
		byID     = make(map[string]*domain.AgreementVersion)
	)
	for rows.Next() {
		var (
			v   domain.AgreementVersion
			bps int32
		)
		if err := rows.Scan(&v.VersionID, &v.Mint, &bps, &v.EffectiveFrom, &v.EffectiveTo); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan agreement version: %w", err)
		}
		v.PlatformFeeBps = uint32(bps)
		versions = append(versions, &v)
		ids = append(ids, v.VersionID)
		byID[v.VersionID] = &v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreement versions: %w", err)
	}
	if len(ids) == 0 {
		return versions, nil
	}

	shareRows, err := s.pool.Query(ctx, `
		SELECT version_id, earner_wallet, bps, position
		FROM royalty_agreement_shares
		WHERE version_id = ANY($1)
		ORDER BY version_id, position ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query agreement shares: %w", err)
	}
	defer shareRows.Close()

	shares, err := pgx.CollectRows(shareRows, func(row pgx.CollectableRow) (domain.AgreementShare, error) {
		var (
			sh  domain.AgreementShare
			bps int32
		)
		err := row.Scan(&sh.VersionID, &sh.EarnerWallet, &bps, &sh.Position)
		sh.Bps = uint32(bps)
		return sh, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan agreement shares: %w", err)
	}
	for _, sh := range shares {
		v := byID[sh.VersionID]
		v.Shares = append(v.Shares, sh)
	}

	return versions, nil
}
