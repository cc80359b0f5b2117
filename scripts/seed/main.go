package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type chartAccount struct {
	Code   string
	Name   string
	Type   accounts.AccountType
	Module string
	Key    string
}

// defaultChart is the minimal chart every ledger operation resolves through
// its account mappings.
var defaultChart = []chartAccount{
	{"1100", "Cash and bank", accounts.AccountTypeAsset, mappings.ModuleAP, mappings.KeyCash},
	{"1300", "Inventory", accounts.AccountTypeAsset, mappings.ModuleInventory, mappings.KeyInventory},
	{"1590", "Accumulated depreciation", accounts.AccountTypeAsset, mappings.ModuleAssets, mappings.KeyAccumulatedDepreciation},
	{"2100", "Accounts payable", accounts.AccountTypeLiability, mappings.ModuleAP, mappings.KeyPayable},
	{"2150", "Goods received not invoiced", accounts.AccountTypeLiability, mappings.ModuleInventory, mappings.KeyGRIR},
	{"4900", "Inventory adjustment gain", accounts.AccountTypeRevenue, mappings.ModuleInventory, mappings.KeyAdjustmentGain},
	{"5100", "Cost of goods sold", accounts.AccountTypeExpense, mappings.ModuleInventory, mappings.KeyCOGS},
	{"5900", "Inventory adjustment loss", accounts.AccountTypeExpense, mappings.ModuleInventory, mappings.KeyAdjustmentLoss},
	{"6100", "Depreciation expense", accounts.AccountTypeExpense, mappings.ModuleAssets, mappings.KeyDepreciationExpense},
}

func main() {
	year := flag.Int("year", time.Now().UTC().Year(), "fiscal year to open monthly periods for")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	services := app.NewServices(app.PostgresBackend(pool, cfg), nil, nil, nil)
	if err := seed(ctx, services, *year, os.Stdout); err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seed creates the default chart, its mappings and twelve monthly periods.
// Existing accounts and periods are left untouched, so reruns are safe.
func seed(ctx context.Context, s *app.Services, year int, out io.Writer) error {
	fmt.Fprintln(out, "→ Seeding chart of accounts...")
	for _, c := range defaultChart {
		acct, err := s.Accounts.GetByCode(ctx, c.Code)
		if errors.Is(err, shared.ErrNotFound) {
			acct, err = s.Accounts.Create(ctx, accounts.CreateInput{Code: c.Code, Name: c.Name, Type: c.Type})
		}
		if err != nil {
			return fmt.Errorf("account %s: %w", c.Code, err)
		}
		if _, err := s.Mappings.Upsert(ctx, mappings.AccountMapping{Module: c.Module, Key: c.Key, AccountID: acct.ID}); err != nil {
			return fmt.Errorf("mapping %s/%s: %w", c.Module, c.Key, err)
		}
	}

	fmt.Fprintf(out, "→ Seeding periods for %d...\n", year)
	for month := time.January; month <= time.December; month++ {
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)
		_, err := s.Periods.Create(ctx, periods.CreatePeriodInput{
			Label:     start.Format("2006-01"),
			StartDate: start,
			EndDate:   end,
		})
		if err != nil && !errors.Is(err, shared.ErrConflict) {
			return fmt.Errorf("period %s: %w", start.Format("2006-01"), err)
		}
	}
	return nil
}
