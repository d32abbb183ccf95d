package inmemdb

import (
	"context"
	"encoding/json"

	"github.com/maany-shr/eclass/core/checkout"
)

type purchaseRepository struct {
	db *purchaseTable
}

var _ checkout.Repository = (*purchaseRepository)(nil)

func NewPurchaseRepository(db *DB) checkout.Repository {
	return &purchaseRepository{db: db.purchase}
}

func (repo *purchaseRepository) GetPurchase(_ context.Context, paymentExternalID string) (checkout.Purchase, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	p, ok := repo.db.table[paymentExternalID]
	if !ok {
		return checkout.Purchase{}, checkout.ErrNotFound
	}
	res := *p
	res.Result = append(json.RawMessage(nil), p.Result...)
	return res, nil
}

func (repo *purchaseRepository) SavePurchase(_ context.Context, p checkout.Purchase) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[p.PaymentExternalID]; ok {
		return nil
	}
	p.Result = append(json.RawMessage(nil), p.Result...)
	repo.db.table[p.PaymentExternalID] = &p
	return nil
}
