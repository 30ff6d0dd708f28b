// Package config loads the server configuration and the chart-of-accounts
// seed data from a YAML file. The chart of accounts, VAT codes and cash
// books are configuration rather than code: posting resolves system
// nominals by name at run time, so a rebuilt or amended chart takes
// effect without redeploying.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/purchase-ledger/ledger"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Accounts AccountsConfig `yaml:"accounts"`
	Seed     SeedConfig     `yaml:"seed"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	// Path to the sqlite file. Empty selects the in-memory store.
	Path string `yaml:"path"`
}

// AccountsConfig names the system nominal accounts posting depends on.
type AccountsConfig struct {
	VatControl string `yaml:"vat_control"`
	Suspense   string `yaml:"suspense"`
}

// SeedConfig is reference data created at startup when missing.
type SeedConfig struct {
	Nominals  []string        `yaml:"nominals"`
	VatCodes  []VatCodeSeed   `yaml:"vat_codes"`
	CashBooks []CashBookSeed  `yaml:"cash_books"`
	Suppliers []SupplierSeed  `yaml:"suppliers"`
}

type VatCodeSeed struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	Rate       string `yaml:"rate"`
	Registered bool   `yaml:"registered"`
}

type CashBookSeed struct {
	Name    string `yaml:"name"`
	Nominal string `yaml:"nominal"`
}

type SupplierSeed struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Accounts: AccountsConfig{VatControl: "Vat Control", Suspense: "System Suspense Account"},
	}
}

// Load reads and parses a YAML configuration file. Missing server or
// account fields fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Accounts.VatControl == "" {
		cfg.Accounts.VatControl = "Vat Control"
	}
	if cfg.Accounts.Suspense == "" {
		cfg.Accounts.Suspense = "System Suspense Account"
	}
	return cfg, nil
}

// SystemAccounts converts the account names into the ledger's form.
func (c Config) SystemAccounts() ledger.SystemAccounts {
	return ledger.SystemAccounts{
		VatControl: c.Accounts.VatControl,
		Suspense:   c.Accounts.Suspense,
	}
}

// Seed creates the configured reference data plus the system accounts
// themselves. Existing rows are kept; seeding is additive and safe to
// run on every startup.
func Seed(ctx context.Context, s ledger.Store, cfg Config) error {
	names := append([]string{}, cfg.Seed.Nominals...)
	names = append(names, cfg.Accounts.VatControl, cfg.Accounts.Suspense)
	for _, cb := range cfg.Seed.CashBooks {
		names = append(names, cb.Nominal)
	}

	nominalIDs := map[string]int64{}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := nominalIDs[name]; ok {
			continue
		}
		n, err := s.NominalByName(ctx, name)
		if ledger.IsNotFound(err) {
			n = &ledger.Nominal{Name: name}
			if err := s.CreateNominal(ctx, n); err != nil {
				return fmt.Errorf("seed nominal %q: %w", name, err)
			}
		} else if err != nil {
			return err
		}
		nominalIDs[name] = n.ID
	}

	existingCodes, err := s.ListVatCodes(ctx)
	if err != nil {
		return err
	}
	haveCode := map[string]bool{}
	for _, v := range existingCodes {
		haveCode[v.Code] = true
	}
	for _, vc := range cfg.Seed.VatCodes {
		if haveCode[vc.Code] {
			continue
		}
		rate, err := decimal.NewFromString(vc.Rate)
		if err != nil {
			return fmt.Errorf("seed vat code %q: %w", vc.Code, err)
		}
		v := &ledger.VatCode{Code: vc.Code, Name: vc.Name, Rate: rate, Registered: vc.Registered}
		if err := s.CreateVatCode(ctx, v); err != nil {
			return fmt.Errorf("seed vat code %q: %w", vc.Code, err)
		}
	}

	existingBooks, err := s.ListCashBooks(ctx)
	if err != nil {
		return err
	}
	haveBook := map[string]bool{}
	for _, cb := range existingBooks {
		haveBook[cb.Name] = true
	}
	for _, cbs := range cfg.Seed.CashBooks {
		if haveBook[cbs.Name] {
			continue
		}
		nominalID, ok := nominalIDs[cbs.Nominal]
		if !ok {
			return fmt.Errorf("seed cash book %q: unknown nominal %q", cbs.Name, cbs.Nominal)
		}
		cb := &ledger.CashBook{Name: cbs.Name, NominalID: nominalID}
		if err := s.CreateCashBook(ctx, cb); err != nil {
			return fmt.Errorf("seed cash book %q: %w", cbs.Name, err)
		}
	}

	existingSuppliers, err := s.ListSuppliers(ctx)
	if err != nil {
		return err
	}
	haveSupplier := map[string]bool{}
	for _, sup := range existingSuppliers {
		haveSupplier[sup.Code] = true
	}
	for _, ss := range cfg.Seed.Suppliers {
		if haveSupplier[ss.Code] {
			continue
		}
		sup := &ledger.Supplier{Code: ss.Code, Name: ss.Name}
		if err := s.CreateSupplier(ctx, sup); err != nil {
			return fmt.Errorf("seed supplier %q: %w", ss.Code, err)
		}
	}
	return nil
}
