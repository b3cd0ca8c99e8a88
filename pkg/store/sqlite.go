package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xmrcheckout/reconciler/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the durable Store implementation.
// Uses SQLite with WAL mode for concurrent read access.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open creates or opens a SQLite database at the given path and applies
// pragmas and the schema. Idempotent.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateIntent inserts a new intent and its order row if missing.
func (s *SQLite) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	now := time.Now().UTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = now
	if intent.State == "" {
		intent.State = models.StatePending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO intents (id, order_id, destination_address, account_index, subaddress_index,
			expected_amount, amount_paid, exchange_rate, fiat_currency, required_confirmations,
			state, created_at, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.OrderID, intent.DestinationAddress, intent.AccountIndex, intent.SubaddressIndex,
		int64(intent.ExpectedAmount), int64(intent.AmountPaid), intent.ExchangeRate, intent.FiatCurrency,
		intent.RequiredConfirmations, string(intent.State), intent.CreatedAt, intent.ExpiresAt, intent.UpdatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(sqliteErr.Error(), "destination_address") {
			return ErrAddressInUse
		}
		return fmt.Errorf("insert intent: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, state, updated_at) VALUES (?, 'pending', ?)
		ON CONFLICT (id) DO NOTHING`,
		intent.OrderID, now)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) GetIntent(ctx context.Context, id string) (*models.PaymentIntent, error) {
	return s.getIntent(ctx, `WHERE id = ?`, id)
}

func (s *SQLite) GetIntentByOrder(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	return s.getIntent(ctx, `WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`, orderID)
}

func (s *SQLite) getIntent(ctx context.Context, where string, args ...interface{}) (*models.PaymentIntent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, destination_address, account_index, subaddress_index,
			expected_amount, amount_paid, exchange_rate, fiat_currency, required_confirmations,
			state, created_at, expires_at, updated_at
		FROM intents `+where, args...)
	return scanIntent(row)
}

func scanIntent(row *sql.Row) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	var expected, paid int64
	var state string
	err := row.Scan(&intent.ID, &intent.OrderID, &intent.DestinationAddress, &intent.AccountIndex,
		&intent.SubaddressIndex, &expected, &paid, &intent.ExchangeRate, &intent.FiatCurrency,
		&intent.RequiredConfirmations, &state, &intent.CreatedAt, &intent.ExpiresAt, &intent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan intent: %w", err)
	}
	intent.ExpectedAmount = uint64(expected)
	intent.AmountPaid = uint64(paid)
	intent.State = models.IntentState(state)
	return &intent, nil
}

// UpdateIntent persists mutations with the state machine guards applied
// against the currently stored row.
func (s *SQLite) UpdateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	current, err := s.GetIntent(ctx, intent.ID)
	if err != nil {
		return err
	}
	if current.State.Terminal() {
		return ErrTerminalIntent
	}
	if intent.AmountPaid < current.AmountPaid {
		return ErrAmountDecreased
	}

	intent.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE intents SET amount_paid = ?, state = ?, updated_at = ? WHERE id = ?`,
		int64(intent.AmountPaid), string(intent.State), intent.UpdatedAt, intent.ID)
	if err != nil {
		return fmt.Errorf("update intent: %w", err)
	}
	return nil
}

func (s *SQLite) ListPendingIntents(ctx context.Context) ([]*models.PaymentIntent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, destination_address, account_index, subaddress_index,
			expected_amount, amount_paid, exchange_rate, fiat_currency, required_confirmations,
			state, created_at, expires_at, updated_at
		FROM intents WHERE state IN ('pending', 'partially_paid', 'fully_paid')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []*models.PaymentIntent
	for rows.Next() {
		var intent models.PaymentIntent
		var expected, paid int64
		var state string
		if err := rows.Scan(&intent.ID, &intent.OrderID, &intent.DestinationAddress, &intent.AccountIndex,
			&intent.SubaddressIndex, &expected, &paid, &intent.ExchangeRate, &intent.FiatCurrency,
			&intent.RequiredConfirmations, &state, &intent.CreatedAt, &intent.ExpiresAt, &intent.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intent.ExpectedAmount = uint64(expected)
		intent.AmountPaid = uint64(paid)
		intent.State = models.IntentState(state)
		intents = append(intents, &intent)
	}
	return intents, rows.Err()
}

// ConfirmOrder marks the order confirmed and records the event.
func (s *SQLite) ConfirmOrder(ctx context.Context, orderID string) error {
	return s.setOrderState(ctx, orderID, "confirmed", "order_confirmed", "")
}

// CancelOrder marks the order canceled and records the reason.
func (s *SQLite) CancelOrder(ctx context.Context, orderID string, reason string) error {
	return s.setOrderState(ctx, orderID, "canceled", "order_canceled", reason)
}

// SendConfirmationEmail records that the confirmation email is due. Actual
// delivery is the host system's concern.
func (s *SQLite) SendConfirmationEmail(ctx context.Context, orderID string) error {
	return s.recordEvent(ctx, orderID, "confirmation_email", "")
}

func (s *SQLite) OrderState(ctx context.Context, orderID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM orders WHERE id = ?`, orderID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("order state: %w", err)
	}
	return state, nil
}

func (s *SQLite) setOrderState(ctx context.Context, orderID, state, event, detail string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET state = ?, updated_at = ? WHERE id = ?`,
		state, now, orderID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.recordEvent(ctx, orderID, event, detail)
}

func (s *SQLite) recordEvent(ctx context.Context, orderID, event, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events (order_id, event, detail, created_at) VALUES (?, ?, ?, ?)`,
		orderID, event, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
