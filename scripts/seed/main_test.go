package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

func TestSeedIsRepeatable(t *testing.T) {
	ctx := context.Background()
	backend, _ := app.MemoryBackend()
	services := app.NewServices(backend, nil, nil, nil)

	require.NoError(t, seed(ctx, services, 2026, &bytes.Buffer{}))
	require.NoError(t, seed(ctx, services, 2026, &bytes.Buffer{}))

	accts, err := services.Accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, accts, len(defaultChart))

	ps, err := services.Periods.List(ctx)
	require.NoError(t, err)
	require.Len(t, ps, 12)
	require.Equal(t, "2026-02", ps[1].Label)
	require.Equal(t, 28, ps[1].EndDate.Day())

	m, err := services.Mappings.Get(ctx, mappings.ModuleInventory, mappings.KeyGRIR)
	require.NoError(t, err)
	inv, err := services.Accounts.GetByCode(ctx, "2150")
	require.NoError(t, err)
	require.Equal(t, inv.ID, m.AccountID)
}
