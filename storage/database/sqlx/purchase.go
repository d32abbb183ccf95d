package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/maany-shr/eclass/core/checkout"
)

const uniqueViolation = "23505"

type purchaseRow struct {
	ID                string      `db:"id"`
	PaymentExternalID string      `db:"payment_external_id"`
	PaymentProvider   string      `db:"payment_provider"`
	UserID            string      `db:"user_id"`
	PurchaseType      string      `db:"purchase_type"`
	CustomerEmail     null.String `db:"customer_email"`
	Result            []byte      `db:"result"`
	ProcessedAt       time.Time   `db:"processed_at"`
}

type purchaseRepository struct {
	db *sqlx.DB
}

var _ checkout.Repository = (*purchaseRepository)(nil)

func NewPurchaseRepository(db *sqlx.DB) checkout.Repository {
	return &purchaseRepository{db: db}
}

func (repo *purchaseRepository) GetPurchase(ctx context.Context, paymentExternalID string) (checkout.Purchase, error) {
	var row purchaseRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, payment_external_id, payment_provider, user_id, purchase_type, customer_email, result, processed_at
		FROM purchases WHERE payment_external_id = $1`, paymentExternalID)
	if err == sql.ErrNoRows {
		return checkout.Purchase{}, checkout.ErrNotFound
	}
	if err != nil {
		return checkout.Purchase{}, errors.Wrap(err, "selecting purchase")
	}
	return checkout.Purchase{
		ID:                row.ID,
		PaymentExternalID: row.PaymentExternalID,
		PaymentProvider:   row.PaymentProvider,
		UserID:            row.UserID,
		PurchaseType:      checkout.PurchaseType(row.PurchaseType),
		CustomerEmail:     row.CustomerEmail.String,
		Result:            json.RawMessage(row.Result),
		ProcessedAt:       row.ProcessedAt.UTC(),
	}, nil
}

// SavePurchase records p; a payment that is already recorded is left untouched.
func (repo *purchaseRepository) SavePurchase(ctx context.Context, p checkout.Purchase) error {
	email := null.NewString(p.CustomerEmail, p.CustomerEmail != "")
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO purchases (id, payment_external_id, payment_provider, user_id, purchase_type, customer_email, result, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		p.ID, p.PaymentExternalID, p.PaymentProvider, p.UserID, string(p.PurchaseType), email, string(p.Result), p.ProcessedAt,
	)
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "inserting purchase")
	}
	return nil
}
