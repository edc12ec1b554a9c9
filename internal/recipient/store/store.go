package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tallyhq/tally/internal/recipient"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectRecipientColumns = `
	id, user_id, provider_recipient_id, name, account_number, bank_code,
	COALESCE(bank_name, ''), active, last_used_at, created_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(s scanner) (*recipient.Recipient, error) {
	var r recipient.Recipient

	if err := s.Scan(
		&r.ID, &r.UserID, &r.ProviderRecipientID, &r.Name, &r.AccountNumber,
		&r.BankCode, &r.BankName, &r.Active, &r.LastUsedAt, &r.CreatedAt,
	); err != nil {
		return nil, err
	}

	return &r, nil
}

func (s *Store) CreateRecipient(ctx context.Context, r *recipient.Recipient) error {
	query := `
		INSERT INTO transfer_recipients (user_id, provider_recipient_id, name, account_number, bank_code, bank_name, active, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		r.UserID,
		r.ProviderRecipientID,
		r.Name,
		r.AccountNumber,
		r.BankCode,
		r.BankName,
		r.Active,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating recipient: %w", err)
	}

	return nil
}

func (s *Store) GetRecipient(ctx context.Context, id uuid.UUID) (*recipient.Recipient, error) {
	query := `SELECT ` + selectRecipientColumns + ` FROM transfer_recipients WHERE id = $1`

	r, err := scanRecipient(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recipient.ErrNotFound
		}

		return nil, fmt.Errorf("getting recipient: %w", err)
	}

	return r, nil
}

func (s *Store) ListRecipients(ctx context.Context, userID uuid.UUID) ([]*recipient.Recipient, error) {
	query := `SELECT ` + selectRecipientColumns + `
		FROM transfer_recipients
		WHERE user_id = $1 AND active
		ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	defer rows.Close()

	var rs []*recipient.Recipient

	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}

		rs = append(rs, r)
	}

	return rs, rows.Err()
}

func (s *Store) DeactivateRecipient(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE transfer_recipients SET active = FALSE WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivating recipient: %w", err)
	}

	return nil
}

func (s *Store) TouchRecipient(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	query := `UPDATE transfer_recipients SET last_used_at = $1 WHERE id = $2`

	if _, err := s.db.ExecContext(ctx, query, usedAt, id); err != nil {
		return fmt.Errorf("touching recipient: %w", err)
	}

	return nil
}
