package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizbot-backend/internal/db"
)

// DatabaseStore persists users, inventory and cashflow records in PostgreSQL
// and runs ad-hoc read queries.
type DatabaseStore struct {
	db           *db.DB
	queryTimeout time.Duration
}

// NewDatabaseStore creates a new database store. Every statement is bounded by
// queryTimeout when it is positive.
func NewDatabaseStore(database *db.DB, queryTimeout time.Duration) *DatabaseStore {
	return &DatabaseStore{db: database, queryTimeout: queryTimeout}
}

func (ds *DatabaseStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ds.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ds.queryTimeout)
}

// GetUserByPhone returns nil, nil when no user owns the phone number.
func (ds *DatabaseStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone_number is required")
	}
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	var u User
	err := ds.db.QueryRowContext(ctx, `
		SELECT id, phone_number, user_name, created_at
		FROM users
		WHERE phone_number = $1
	`, phone).Scan(&u.ID, &u.PhoneNumber, &u.UserName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetOrCreateUser inserts a user for an unseen phone number. created reports
// whether this call inserted the row; a concurrent insert of the same phone
// number resolves to the existing row.
func (ds *DatabaseStore) GetOrCreateUser(ctx context.Context, phone, name string) (*User, bool, error) {
	if phone == "" {
		return nil, false, fmt.Errorf("phone_number is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = phone
	}

	insertCtx, cancel := ds.bound(ctx)
	u := User{PhoneNumber: phone, UserName: name}
	err := ds.db.QueryRowContext(insertCtx, `
		INSERT INTO users (phone_number, user_name, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (phone_number) DO NOTHING
		RETURNING id, created_at
	`, phone, name).Scan(&u.ID, &u.CreatedAt)
	cancel()
	if err == nil {
		return &u, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	existing, err := ds.GetUserByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("failed to create user: conflicting row for %s vanished", phone)
	}
	return existing, false, nil
}

// InsertInventory stores one inventory row. Rows are never merged; every
// call is an independent insert.
func (ds *DatabaseStore) InsertInventory(ctx context.Context, rec InventoryRecord) (int64, error) {
	if rec.UserID == 0 {
		return 0, fmt.Errorf("user_id is required")
	}
	if rec.LastUpdate.IsZero() {
		rec.LastUpdate = time.Now().UTC()
	}
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	var id int64
	err := ds.db.QueryRowContext(ctx, `
		INSERT INTO inventory (item_name, quantity, price, user_id, last_update_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.ItemName, rec.Quantity, rec.Price, rec.UserID, rec.LastUpdate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert inventory: %w", err)
	}
	return id, nil
}

// InsertCashflow stores one cashflow row.
func (ds *DatabaseStore) InsertCashflow(ctx context.Context, rec CashflowRecord) (int64, error) {
	if rec.UserID == 0 {
		return 0, fmt.Errorf("user_id is required")
	}
	if _, err := ParseDirection(string(rec.Direction)); err != nil {
		return 0, err
	}
	if rec.Date.IsZero() {
		rec.Date = time.Now().UTC()
	}
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	var id int64
	err := ds.db.QueryRowContext(ctx, `
		INSERT INTO cashflow (item_purpose, amount, credit_debit, user_id, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.Purpose, rec.Amount, string(rec.Direction), rec.UserID, rec.Date).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert cashflow: %w", err)
	}
	return id, nil
}

// ExecuteReadOnly runs query inside a read-only transaction and returns all
// rows. []byte values are returned as strings.
func (ds *DatabaseStore) ExecuteReadOnly(ctx context.Context, query string) (*QueryResult, error) {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	tx, err := ds.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read-only transaction: %w", err)
	}
	return result, nil
}
