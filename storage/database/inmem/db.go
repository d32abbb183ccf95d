package inmemdb

import (
	"sync"

	"github.com/maany-shr/eclass/core/checkout"
	"github.com/maany-shr/eclass/core/draft"
)

type (
	DB struct {
		draft    *draftTable
		purchase *purchaseTable
	}

	draftTable struct {
		sync.RWMutex
		table map[draftPK]*draft.Draft
	}

	draftPK struct {
		owner, key string
	}

	purchaseTable struct {
		sync.RWMutex
		table map[string]*checkout.Purchase // by payment external ID
	}
)

func Open() *DB {
	return &DB{
		draft:    &draftTable{table: make(map[draftPK]*draft.Draft)},
		purchase: &purchaseTable{table: make(map[string]*checkout.Purchase)},
	}
}
