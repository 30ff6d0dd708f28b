package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/purchase-ledger/config"
	"github.com/warp/purchase-ledger/ledger/store"
)

const sampleYAML = `
server:
  addr: ":9090"
database:
  path: "ledger.db"
accounts:
  vat_control: "Vat Control"
  suspense: "System Suspense Account"
seed:
  nominals:
    - "Purchases"
    - "Purchase Ledger Control"
  vat_codes:
    - code: "1"
      name: "Standard"
      rate: "20"
      registered: true
  cash_books:
    - name: "Current Account"
      nominal: "Bank"
  suppliers:
    - code: "SUPP-1"
      name: "Initech"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "ledger.db", cfg.Database.Path)
	assert.Equal(t, "Vat Control", cfg.Accounts.VatControl)
	assert.Len(t, cfg.Seed.Nominals, 2)
	require.Len(t, cfg.Seed.VatCodes, 1)
	assert.Equal(t, "20", cfg.Seed.VatCodes[0].Rate)
	require.Len(t, cfg.Seed.CashBooks, 1)
	assert.Equal(t, "Bank", cfg.Seed.CashBooks[0].Nominal)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: x.db\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Vat Control", cfg.Accounts.VatControl)
	assert.Equal(t, "System Suspense Account", cfg.Accounts.Suspense)
}

func TestSeedIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, config.Seed(ctx, s, cfg))
	require.NoError(t, config.Seed(ctx, s, cfg))

	nominals, err := s.ListNominals(ctx)
	require.NoError(t, err)
	// the two listed nominals, the two system accounts and the cash
	// book's bank nominal, each exactly once
	assert.Len(t, nominals, 5)

	vcs, err := s.ListVatCodes(ctx)
	require.NoError(t, err)
	require.Len(t, vcs, 1)
	assert.True(t, vcs[0].Rate.Equal(decimal.NewFromInt(20)))

	books, err := s.ListCashBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	bank, err := s.NominalByName(ctx, "Bank")
	require.NoError(t, err)
	assert.Equal(t, bank.ID, books[0].NominalID)

	sups, err := s.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, sups, 1)
}
