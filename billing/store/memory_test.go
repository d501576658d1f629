package store_test

import (
	"testing"

	"github.com/warp/building-ledger/billing"
	"github.com/warp/building-ledger/billing/store"
	"github.com/warp/building-ledger/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) billing.RecordStore { return store.NewMemory() })
}
