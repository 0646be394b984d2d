package testsupport

import (
	"testing"

	"bidsmirror/internal/config"
	"bidsmirror/internal/ledger"
)

// MustOpenLedger opens the config's run ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
