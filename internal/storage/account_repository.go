package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/graph-scanner/internal/models"
	"github.com/graph-scanner/internal/types"
	"github.com/jackc/pgx/v5"
)

// AccountRepository handles account data persistence. Addresses are
// opaque identifiers here; format validation belongs to the transport
// layer that accepted them.
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `address, identity_display, balance, node_type, risk_score,
	   first_seen, last_active, created_at, updated_at`

// defaultAddressPage caps address listings when the caller passes no
// limit; LIMIT 0 would otherwise return nothing.
const defaultAddressPage = 500

// GetAccount retrieves an account by address. A missing address returns
// (nil, nil): emptiness is meaningful, not an error.
func (r *AccountRepository) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE address = $1
	`

	var acc models.Account
	err := r.db.Pool().QueryRow(ctx, query, address).Scan(
		&acc.Address,
		&acc.IdentityDisplay,
		&acc.Balance,
		&acc.NodeType,
		&acc.RiskScore,
		&acc.FirstSeen,
		&acc.LastActive,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// UpsertAccount creates or updates an account record
func (r *AccountRepository) UpsertAccount(ctx context.Context, acc *models.Account) error {
	if acc.NodeType == "" {
		acc.NodeType = types.NodeTypeUnknown
	}
	if acc.Balance == "" {
		acc.Balance = "0"
	}

	query := `
		INSERT INTO accounts (
			address, identity_display, balance, node_type, risk_score,
			first_seen, last_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (address)
		DO UPDATE SET
			identity_display = EXCLUDED.identity_display,
			balance = EXCLUDED.balance,
			node_type = EXCLUDED.node_type,
			risk_score = EXCLUDED.risk_score,
			last_active = EXCLUDED.last_active,
			updated_at = now()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		acc.Address,
		acc.IdentityDisplay,
		acc.Balance,
		acc.NodeType,
		acc.RiskScore,
		acc.FirstSeen,
		acc.LastActive,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// BatchUpsertAccounts upserts accounts inside a single transaction
func (r *AccountRepository) BatchUpsertAccounts(ctx context.Context, accounts []*models.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	query := `
		INSERT INTO accounts (
			address, identity_display, balance, node_type, risk_score,
			first_seen, last_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (address)
		DO UPDATE SET
			identity_display = EXCLUDED.identity_display,
			balance = EXCLUDED.balance,
			node_type = EXCLUDED.node_type,
			risk_score = EXCLUDED.risk_score,
			last_active = EXCLUDED.last_active,
			updated_at = now()
	`

	for _, acc := range accounts {
		if acc.NodeType == "" {
			acc.NodeType = types.NodeTypeUnknown
		}
		if acc.Balance == "" {
			acc.Balance = "0"
		}
		if _, err := tx.Exec(ctx, query,
			acc.Address,
			acc.IdentityDisplay,
			acc.Balance,
			acc.NodeType,
			acc.RiskScore,
			acc.FirstSeen,
			acc.LastActive,
		); err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", acc.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit account batch: %w", err)
	}
	return nil
}

// AccountFilters defines filters for listing accounts
type AccountFilters struct {
	NodeType     *types.NodeType
	MinRiskScore *float64
	MaxRiskScore *float64
	Limit        int
	Offset       int
}

// ListAccounts retrieves accounts with optional filters and pagination
func (r *AccountRepository) ListAccounts(ctx context.Context, filters *AccountFilters) ([]*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE 1=1
	`
	args := []any{}
	argPos := 1

	if filters != nil {
		if filters.NodeType != nil {
			query += fmt.Sprintf(" AND node_type = $%d", argPos)
			args = append(args, *filters.NodeType)
			argPos++
		}
		if filters.MinRiskScore != nil {
			query += fmt.Sprintf(" AND risk_score >= $%d", argPos)
			args = append(args, *filters.MinRiskScore)
			argPos++
		}
		if filters.MaxRiskScore != nil {
			query += fmt.Sprintf(" AND risk_score <= $%d", argPos)
			args = append(args, *filters.MaxRiskScore)
			argPos++
		}
	}

	query += " ORDER BY last_active DESC"

	if filters != nil {
		if filters.Limit > 0 {
			query += fmt.Sprintf(" LIMIT $%d", argPos)
			args = append(args, filters.Limit)
			argPos++
		}
		if filters.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argPos)
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var acc models.Account
		err := rows.Scan(
			&acc.Address,
			&acc.IdentityDisplay,
			&acc.Balance,
			&acc.NodeType,
			&acc.RiskScore,
			&acc.FirstSeen,
			&acc.LastActive,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// ListAddresses returns a page of known addresses ordered by address,
// for batch workers that walk the whole account set.
func (r *AccountRepository) ListAddresses(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = defaultAddressPage
	}

	query := `
		SELECT address FROM accounts
		ORDER BY address
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// CountAccounts returns the total number of known accounts
func (r *AccountRepository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}
