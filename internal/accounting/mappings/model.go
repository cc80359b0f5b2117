package mappings

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Modules and keys resolved by ledger operations.
const (
	ModuleInventory = "INVENTORY"
	ModuleAP        = "AP"
	ModuleAssets    = "ASSETS"

	KeyInventory               = "INVENTORY"
	KeyGRIR                    = "GRIR"
	KeyCOGS                    = "COGS"
	KeyAdjustmentGain          = "ADJUSTMENT_GAIN"
	KeyAdjustmentLoss          = "ADJUSTMENT_LOSS"
	KeyPayable                 = "PAYABLE"
	KeyCash                    = "CASH"
	KeyDepreciationExpense     = "DEPRECIATION_EXPENSE"
	KeyAccumulatedDepreciation = "ACCUMULATED_DEPRECIATION"
)

func normalize(module, key string) (string, string, error) {
	module = strings.ToUpper(strings.TrimSpace(module))
	key = strings.ToUpper(strings.TrimSpace(key))
	if module == "" || key == "" {
		return "", "", fmt.Errorf("%w: mapping module and key required", shared.ErrInvalidArgument)
	}
	return module, key, nil
}
