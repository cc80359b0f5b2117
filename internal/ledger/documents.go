package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/ap"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Document types of the entries the coordinator posts for documents.
const (
	DocSupplierPayment = "SUPPLIER_PAYMENT"
	DocDepreciation    = "DEPRECIATION"
)

// SettlePaymentInput applies a payment to a supplier invoice.
type SettlePaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	PeriodID  int64
	Reference string
	ActorID   int64
}

func (in *SettlePaymentInput) validate() error {
	in.Reference = strings.TrimSpace(in.Reference)
	if in.InvoiceID <= 0 {
		return fmt.Errorf("%w: invoice required", shared.ErrInvalidArgument)
	}
	if in.Reference == "" {
		return fmt.Errorf("%w: payment reference required", shared.ErrInvalidArgument)
	}
	return shared.ValidateMagnitude("amount", in.Amount, shared.MaxAmount)
}

// SettleSupplierPayment posts Dr accounts payable / Cr cash and applies the
// payment to the invoice. The invoice row is locked first and its
// paid_amount and status are written last, so an overpayment or a failed
// posting leaves the invoice untouched.
func (c *Coordinator) SettleSupplierPayment(ctx context.Context, in SettlePaymentInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = c.now()
	}
	periodID, err := c.resolvePeriod(ctx, in.PeriodID, in.PaidAt)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.run(ctx, OpSettlePayment, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: OpSettlePayment}
		if err := claim(ctx, tx, OpSettlePayment, in.Reference); err != nil {
			return err
		}
		inv, err := c.payables.LockForPaymentTx(ctx, tx.Payables(), in.InvoiceID, in.Amount)
		if err != nil {
			return err
		}
		payable, err := resolveAccount(ctx, tx, mappings.ModuleAP, mappings.KeyPayable)
		if err != nil {
			return err
		}
		cash, err := resolveAccount(ctx, tx, mappings.ModuleAP, mappings.KeyCash)
		if err != nil {
			return err
		}
		number := inv.Number
		entry, err := c.journals.PostEntryTx(ctx, tx.Journals(), journals.PostingInput{
			EntryNumber:    "PAY-" + in.Reference,
			PostingDate:    in.PaidAt,
			DocumentType:   DocSupplierPayment,
			DocumentNumber: &number,
			PeriodID:       periodID,
			CreatedBy:      in.ActorID,
			Lines:          twoLine(payable, cash, in.Amount, fmt.Sprintf("Payment %s for invoice %s", in.Reference, inv.Number)),
		})
		if err != nil {
			return err
		}
		res.Entry = &entry

		inv, payment, err := c.payables.SettleTx(ctx, tx.Payables(), inv, ap.Payment{
			Amount:    in.Amount,
			PaidAt:    in.PaidAt,
			Reference: in.Reference,
			EntryID:   entry.ID,
			CreatedBy: in.ActorID,
		})
		if err != nil {
			return err
		}
		res.Invoice, res.Payment = &inv, &payment

		posted, err := entryEvent(events.TypeEntryPosted, entry)
		if err != nil {
			return err
		}
		settled, err := events.New(events.TypePaymentSettled, aggregateInvoice, strconv.FormatInt(inv.ID, 10),
			fmt.Sprintf("%s:%d", events.TypePaymentSettled, payment.ID), events.PaymentSettled{
				InvoiceID:  inv.ID,
				PaymentID:  payment.ID,
				Amount:     payment.Amount,
				PaidAmount: inv.PaidAmount,
				Status:     string(inv.Status),
				EntryID:    entry.ID,
			})
		if err != nil {
			return err
		}
		return publish(ctx, tx, &res, posted, settled)
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, in.ActorID, res)
	return res, nil
}

// DepreciationInput books one period's depreciation of an asset. A zero
// Amount charges the asset's monthly depreciation capped at what remains. A
// zero PostingDate posts on the last day of the period. EntryNumber
// defaults to DEP-<asset code>-<period id>; a period re-run after its charge
// was reversed needs a fresh one.
type DepreciationInput struct {
	AssetID     int64
	PeriodID    int64
	Amount      decimal.Decimal
	PostingDate time.Time
	EntryNumber string
	ActorID     int64
}

func depreciationKey(assetID, periodID int64) string {
	return fmt.Sprintf("%d:%d", assetID, periodID)
}

// PostDepreciation posts Dr depreciation expense / Cr accumulated
// depreciation and updates the asset's accumulated depreciation. The charge
// never exceeds the remaining depreciable amount and is booked at most once
// per asset and period.
func (c *Coordinator) PostDepreciation(ctx context.Context, in DepreciationInput) (Result, error) {
	if in.AssetID <= 0 {
		return Result{}, fmt.Errorf("%w: asset required", shared.ErrInvalidArgument)
	}
	if in.Amount.IsNegative() {
		return Result{}, fmt.Errorf("%w: amount must not be negative", shared.ErrInvalidArgument)
	}
	if in.PeriodID == 0 {
		date := in.PostingDate
		if date.IsZero() {
			date = c.now()
		}
		periodID, err := c.resolvePeriod(ctx, 0, date)
		if err != nil {
			return Result{}, err
		}
		in.PeriodID = periodID
	}
	if in.PostingDate.IsZero() {
		if c.periods == nil {
			return Result{}, fmt.Errorf("%w: posting date required", shared.ErrInvalidArgument)
		}
		p, err := c.periods.Get(ctx, in.PeriodID)
		if err != nil {
			return Result{}, err
		}
		in.PostingDate = p.EndDate
	}

	var res Result
	err := c.run(ctx, OpDepreciation, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: OpDepreciation}
		asset, amount, err := c.assets.LockForDepreciationTx(ctx, tx.Assets(), in.AssetID, in.PeriodID, in.Amount)
		if err != nil {
			return err
		}
		expense, err := resolveAccount(ctx, tx, mappings.ModuleAssets, mappings.KeyDepreciationExpense)
		if err != nil {
			return err
		}
		accumulated, err := resolveAccount(ctx, tx, mappings.ModuleAssets, mappings.KeyAccumulatedDepreciation)
		if err != nil {
			return err
		}
		code := asset.Code
		number := strings.TrimSpace(in.EntryNumber)
		if number == "" {
			number = fmt.Sprintf("DEP-%s-%d", asset.Code, in.PeriodID)
		}
		entry, err := c.journals.PostEntryTx(ctx, tx.Journals(), journals.PostingInput{
			EntryNumber:    number,
			PostingDate:    in.PostingDate,
			DocumentType:   DocDepreciation,
			DocumentNumber: &code,
			PeriodID:       in.PeriodID,
			CreatedBy:      in.ActorID,
			Lines:          twoLine(expense, accumulated, amount, "Depreciation "+asset.Code),
		})
		if err != nil {
			return err
		}
		res.Entry = &entry

		asset, charge, err := c.assets.ApplyDepreciationTx(ctx, tx.Assets(), asset, in.PeriodID, amount, entry.ID)
		if err != nil {
			return err
		}
		if err := claim(ctx, tx, OpDepreciation, depreciationKey(in.AssetID, in.PeriodID)); err != nil {
			return err
		}
		res.Asset, res.Charge = &asset, &charge

		posted, err := entryEvent(events.TypeEntryPosted, entry)
		if err != nil {
			return err
		}
		booked, err := events.New(events.TypeDepreciationPosted, aggregateAsset, strconv.FormatInt(asset.ID, 10),
			fmt.Sprintf("%s:%d:%d", events.TypeDepreciationPosted, asset.ID, in.PeriodID), events.DepreciationPosted{
				AssetID:     asset.ID,
				PeriodID:    in.PeriodID,
				Amount:      amount,
				Accumulated: asset.AccumulatedDepreciation,
				EntryID:     entry.ID,
			})
		if err != nil {
			return err
		}
		return publish(ctx, tx, &res, posted, booked)
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, in.ActorID, res)
	return res, nil
}

// ReverseInput reverses a posted entry. EntryNumber defaults to REV-<id> and
// PostingDate to today; the period is resolved from the posting date when
// not given.
type ReverseInput struct {
	EntryID     int64
	EntryNumber string
	PostingDate time.Time
	PeriodID    int64
	ActorID     int64
}

// ReverseEntry reverses an entry and records the reversal in the outbox.
func (c *Coordinator) ReverseEntry(ctx context.Context, in ReverseInput) (Result, error) {
	if in.EntryID <= 0 {
		return Result{}, fmt.Errorf("%w: entry required", shared.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.EntryNumber) == "" {
		in.EntryNumber = "REV-" + strconv.FormatInt(in.EntryID, 10)
	}
	if in.PostingDate.IsZero() {
		in.PostingDate = c.now()
	}
	periodID, err := c.resolvePeriod(ctx, in.PeriodID, in.PostingDate)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.run(ctx, OpReverseEntry, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: OpReverseEntry}
		reversal, err := c.journals.ReverseEntryTx(ctx, tx.Journals(), journals.ReverseInput{
			OriginalID:  in.EntryID,
			EntryNumber: in.EntryNumber,
			PostingDate: in.PostingDate,
			PeriodID:    periodID,
			CreatedBy:   in.ActorID,
		})
		if err != nil {
			return err
		}
		if err := claim(ctx, tx, OpReverseEntry, strconv.FormatInt(in.EntryID, 10)); err != nil {
			return err
		}
		res.Entry = &reversal
		reversed, err := entryEvent(events.TypeEntryReversed, reversal)
		if err != nil {
			return err
		}
		return publish(ctx, tx, &res, reversed)
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, in.ActorID, res)
	return res, nil
}

// ReversePaymentInput reverses a settled supplier payment. EntryNumber
// defaults to REV-PAY-<reference> and PostingDate to today.
type ReversePaymentInput struct {
	PaymentID   int64
	EntryNumber string
	PostingDate time.Time
	PeriodID    int64
	ActorID     int64
}

// ReversePayment reverses the payment's journal entry and takes the amount
// back off the invoice in one transaction. The invoice returns to OPEN or
// PARTIALLY_PAID.
func (c *Coordinator) ReversePayment(ctx context.Context, in ReversePaymentInput) (Result, error) {
	if in.PaymentID <= 0 {
		return Result{}, fmt.Errorf("%w: payment required", shared.ErrInvalidArgument)
	}
	if in.PostingDate.IsZero() {
		in.PostingDate = c.now()
	}
	periodID, err := c.resolvePeriod(ctx, in.PeriodID, in.PostingDate)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.run(ctx, OpReversePayment, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: OpReversePayment}
		inv, payment, err := c.payables.LockForReversalTx(ctx, tx.Payables(), in.PaymentID)
		if err != nil {
			return err
		}
		if err := claim(ctx, tx, OpReversePayment, strconv.FormatInt(payment.ID, 10)); err != nil {
			return err
		}
		number := strings.TrimSpace(in.EntryNumber)
		if number == "" {
			number = "REV-PAY-" + payment.Reference
		}
		reversal, err := c.journals.ReverseEntryTx(ctx, tx.Journals(), journals.ReverseInput{
			OriginalID:  payment.EntryID,
			EntryNumber: number,
			PostingDate: in.PostingDate,
			PeriodID:    periodID,
			CreatedBy:   in.ActorID,
			Compensated: true,
		})
		if err != nil {
			return err
		}
		res.Entry = &reversal

		inv, payment, err = c.payables.UnsettleTx(ctx, tx.Payables(), inv, payment, reversal.ID)
		if err != nil {
			return err
		}
		res.Invoice, res.Payment = &inv, &payment

		reversed, err := entryEvent(events.TypeEntryReversed, reversal)
		if err != nil {
			return err
		}
		undone, err := events.New(events.TypePaymentReversed, aggregateInvoice, strconv.FormatInt(inv.ID, 10),
			fmt.Sprintf("%s:%d", events.TypePaymentReversed, payment.ID), events.PaymentSettled{
				InvoiceID:  inv.ID,
				PaymentID:  payment.ID,
				Amount:     payment.Amount,
				PaidAmount: inv.PaidAmount,
				Status:     string(inv.Status),
				EntryID:    reversal.ID,
			})
		if err != nil {
			return err
		}
		return publish(ctx, tx, &res, reversed, undone)
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, in.ActorID, res)
	return res, nil
}

// ReverseDepreciationInput reverses an asset's latest depreciation charge.
// ReversalPeriodID is resolved from PostingDate when not given.
type ReverseDepreciationInput struct {
	AssetID          int64
	PeriodID         int64
	EntryNumber      string
	PostingDate      time.Time
	ReversalPeriodID int64
	ActorID          int64
}

// ReverseDepreciation reverses the charge's journal entry, removes the
// charge and restores the asset's accumulated depreciation. Only the latest
// charge of an asset can be reversed. The period can be depreciated again
// afterwards.
func (c *Coordinator) ReverseDepreciation(ctx context.Context, in ReverseDepreciationInput) (Result, error) {
	if in.AssetID <= 0 || in.PeriodID <= 0 {
		return Result{}, fmt.Errorf("%w: asset and period required", shared.ErrInvalidArgument)
	}
	if in.PostingDate.IsZero() {
		in.PostingDate = c.now()
	}
	periodID, err := c.resolvePeriod(ctx, in.ReversalPeriodID, in.PostingDate)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = c.run(ctx, OpReverseDepr, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: OpReverseDepr}
		asset, charge, err := c.assets.LockForReversalTx(ctx, tx.Assets(), in.AssetID, in.PeriodID)
		if err != nil {
			return err
		}
		if err := claim(ctx, tx, OpReverseDepr, strconv.FormatInt(charge.EntryID, 10)); err != nil {
			return err
		}
		number := strings.TrimSpace(in.EntryNumber)
		if number == "" {
			number = "REV-" + strconv.FormatInt(charge.EntryID, 10)
		}
		reversal, err := c.journals.ReverseEntryTx(ctx, tx.Journals(), journals.ReverseInput{
			OriginalID:  charge.EntryID,
			EntryNumber: number,
			PostingDate: in.PostingDate,
			PeriodID:    periodID,
			CreatedBy:   in.ActorID,
			Compensated: true,
		})
		if err != nil {
			return err
		}
		res.Entry = &reversal

		asset, err = c.assets.RevertDepreciationTx(ctx, tx.Assets(), asset, charge)
		if err != nil {
			return err
		}
		if err := tx.Idempotency().Delete(ctx, OpDepreciation+":"+depreciationKey(in.AssetID, in.PeriodID)); err != nil {
			return err
		}
		res.Asset, res.Charge = &asset, &charge

		reversed, err := entryEvent(events.TypeEntryReversed, reversal)
		if err != nil {
			return err
		}
		undone, err := events.New(events.TypeDepreciationReversed, aggregateAsset, strconv.FormatInt(asset.ID, 10),
			fmt.Sprintf("%s:%d", events.TypeDepreciationReversed, charge.EntryID), events.DepreciationPosted{
				AssetID:     asset.ID,
				PeriodID:    in.PeriodID,
				Amount:      charge.Amount,
				Accumulated: asset.AccumulatedDepreciation,
				EntryID:     reversal.ID,
			})
		if err != nil {
			return err
		}
		return publish(ctx, tx, &res, reversed, undone)
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, in.ActorID, res)
	return res, nil
}
