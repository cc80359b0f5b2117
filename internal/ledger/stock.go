package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Reference types stamped on movements and entries.
const (
	RefGoodsReceipt    = "GOODS_RECEIPT"
	RefGoodsIssue      = "GOODS_ISSUE"
	RefStockTransfer   = "STOCK_TRANSFER"
	RefStockAdjustment = "STOCK_ADJUSTMENT"
)

// StockLine is one material line of a stock operation. UnitCost is optional.
// Receipt lines without it carry no value; issue and adjustment lines without
// it are valued at the moving average cost of their key.
type StockLine struct {
	MaterialID int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	UnitID     *int64
}

// StockInput describes a goods receipt or issue at one location.
type StockInput struct {
	ReferenceNo string
	LocationID  int64
	Date        time.Time
	PeriodID    int64
	Operator    string
	Remark      string
	ActorID     int64
	Lines       []StockLine
}

func (in *StockInput) validate() error {
	in.ReferenceNo = strings.TrimSpace(in.ReferenceNo)
	if in.ReferenceNo == "" {
		return fmt.Errorf("%w: reference number required", shared.ErrInvalidArgument)
	}
	if in.LocationID <= 0 {
		return fmt.Errorf("%w: location required", shared.ErrInvalidArgument)
	}
	return validateLines(in.Lines)
}

func validateLines(lines []StockLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line required", shared.ErrInvalidArgument)
	}
	for i, l := range lines {
		if l.MaterialID <= 0 {
			return fmt.Errorf("%w: line %d missing material", shared.ErrInvalidArgument, i)
		}
		if l.UnitCost.IsNegative() {
			return fmt.Errorf("%w: line %d unit cost negative", shared.ErrInvalidArgument, i)
		}
		if l.UnitCost.GreaterThanOrEqual(shared.MaxAmount) {
			return fmt.Errorf("%w: line %d unit cost too large", shared.ErrInvalidArgument, i)
		}
	}
	return nil
}

// movementsValue sums the booked value of recorded movements.
func movementsValue(recs []inventory.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Value())
	}
	return total
}

// TransferInput moves stock between two locations.
type TransferInput struct {
	ReferenceNo    string
	FromLocationID int64
	ToLocationID   int64
	Operator       string
	Remark         string
	ActorID        int64
	Lines          []StockLine
}

func (in *TransferInput) validate() error {
	in.ReferenceNo = strings.TrimSpace(in.ReferenceNo)
	if in.ReferenceNo == "" {
		return fmt.Errorf("%w: reference number required", shared.ErrInvalidArgument)
	}
	if in.FromLocationID <= 0 || in.ToLocationID <= 0 {
		return fmt.Errorf("%w: source and destination location required", shared.ErrInvalidArgument)
	}
	if in.FromLocationID == in.ToLocationID {
		return fmt.Errorf("%w: source and destination must differ", shared.ErrInvalidArgument)
	}
	return validateLines(in.Lines)
}

// AdjustInput corrects the on-hand quantity of one key. A positive Delta is
// a gain, a negative Delta a loss.
type AdjustInput struct {
	ReferenceNo string
	MaterialID  int64
	LocationID  int64
	Delta       decimal.Decimal
	UnitCost    decimal.Decimal
	Date        time.Time
	PeriodID    int64
	Operator    string
	Remark      string
	ActorID     int64
}

func (in *AdjustInput) validate() error {
	in.ReferenceNo = strings.TrimSpace(in.ReferenceNo)
	if in.ReferenceNo == "" {
		return fmt.Errorf("%w: reference number required", shared.ErrInvalidArgument)
	}
	if in.LocationID <= 0 {
		return fmt.Errorf("%w: location required", shared.ErrInvalidArgument)
	}
	if in.Delta.IsZero() {
		return fmt.Errorf("%w: adjustment quantity must not be zero", shared.ErrInvalidArgument)
	}
	return validateLines([]StockLine{{MaterialID: in.MaterialID, Quantity: in.Delta.Abs(), UnitCost: in.UnitCost}})
}

// stockPosting is the shape shared by every stock operation: a batch of
// movements and, when debit is set and the booked value is positive, one
// two-line entry.
type stockPosting struct {
	op          string
	refType     string
	prefix      string
	memo        string
	referenceNo string
	actorID     int64
	date        time.Time
	periodID    int64
	movements   []inventory.MovementInput
	debit       [2]string
	credit      [2]string
}

// ReceiveGoods books inbound stock and, for valued lines, Dr inventory /
// Cr goods received not invoiced.
func (c *Coordinator) ReceiveGoods(ctx context.Context, in StockInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	return c.postStock(ctx, stockPosting{
		op:          OpReceiveGoods,
		refType:     RefGoodsReceipt,
		prefix:      "GR",
		memo:        "Goods receipt",
		referenceNo: in.ReferenceNo,
		actorID:     in.ActorID,
		date:        in.Date,
		periodID:    in.PeriodID,
		movements:   costedMovements(in.Lines, in.LocationID, inventory.MovementInbound, RefGoodsReceipt, in.ReferenceNo, in.Operator, in.Remark),
		debit:       [2]string{mappings.ModuleInventory, mappings.KeyInventory},
		credit:      [2]string{mappings.ModuleInventory, mappings.KeyGRIR},
	})
}

// IssueGoods books outbound stock and, for valued lines, Dr cost of goods
// sold / Cr inventory.
func (c *Coordinator) IssueGoods(ctx context.Context, in StockInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	return c.postStock(ctx, stockPosting{
		op:          OpIssueGoods,
		refType:     RefGoodsIssue,
		prefix:      "GI",
		memo:        "Goods issue",
		referenceNo: in.ReferenceNo,
		actorID:     in.ActorID,
		date:        in.Date,
		periodID:    in.PeriodID,
		movements:   lineMovements(in.Lines, in.LocationID, inventory.MovementOutbound, RefGoodsIssue, in.ReferenceNo, in.Operator, in.Remark),
		debit:       [2]string{mappings.ModuleInventory, mappings.KeyCOGS},
		credit:      [2]string{mappings.ModuleInventory, mappings.KeyInventory},
	})
}

// TransferStock moves stock out of one location and into another in a
// single transaction. No entry is posted; stock moves at the source's
// average cost, so the inventory value does not change.
func (c *Coordinator) TransferStock(ctx context.Context, in TransferInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	lines := make([]StockLine, len(in.Lines))
	for i, l := range in.Lines {
		l.UnitCost = decimal.Zero
		lines[i] = l
	}
	out := lineMovements(lines, in.FromLocationID, inventory.MovementTransferOut, RefStockTransfer, in.ReferenceNo, in.Operator, in.Remark)
	inbound := lineMovements(lines, in.ToLocationID, inventory.MovementTransferIn, RefStockTransfer, in.ReferenceNo, in.Operator, in.Remark)
	return c.postStock(ctx, stockPosting{
		op:          OpTransferStock,
		refType:     RefStockTransfer,
		referenceNo: in.ReferenceNo,
		actorID:     in.ActorID,
		movements:   append(out, inbound...),
	})
}

// AdjustStock corrects on-hand quantity. A gain posts Dr inventory / Cr
// adjustment gain and a loss posts Dr adjustment loss / Cr inventory, valued
// at the unit cost or, without one, the moving average cost.
func (c *Coordinator) AdjustStock(ctx context.Context, in AdjustInput) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}
	line := StockLine{MaterialID: in.MaterialID, Quantity: in.Delta.Abs(), UnitCost: in.UnitCost}
	p := stockPosting{
		op:          OpAdjustStock,
		refType:     RefStockAdjustment,
		prefix:      "ADJ",
		memo:        "Inventory adjustment",
		referenceNo: in.ReferenceNo,
		actorID:     in.ActorID,
		date:        in.Date,
		periodID:    in.PeriodID,
	}
	if in.Delta.IsPositive() {
		p.movements = lineMovements([]StockLine{line}, in.LocationID, inventory.MovementAdjustIn, RefStockAdjustment, in.ReferenceNo, in.Operator, in.Remark)
		p.debit = [2]string{mappings.ModuleInventory, mappings.KeyInventory}
		p.credit = [2]string{mappings.ModuleInventory, mappings.KeyAdjustmentGain}
	} else {
		p.movements = lineMovements([]StockLine{line}, in.LocationID, inventory.MovementAdjustOut, RefStockAdjustment, in.ReferenceNo, in.Operator, in.Remark)
		p.debit = [2]string{mappings.ModuleInventory, mappings.KeyAdjustmentLoss}
		p.credit = [2]string{mappings.ModuleInventory, mappings.KeyInventory}
	}
	return c.postStock(ctx, p)
}

func (c *Coordinator) postStock(ctx context.Context, p stockPosting) (Result, error) {
	if p.date.IsZero() {
		p.date = c.now()
	}
	// The value is only known once the movements are booked, so a missing
	// period fails the operation only when an entry is due.
	var periodErr error
	if p.debit[0] != "" {
		p.periodID, periodErr = c.resolvePeriod(ctx, p.periodID, p.date)
	}

	var res Result
	err := c.run(ctx, p.op, func(ctx context.Context, tx Tx) error {
		res = Result{Operation: p.op}
		if err := claim(ctx, tx, p.op, p.referenceNo); err != nil {
			return err
		}
		recs, err := c.inventory.RecordMovementsTx(ctx, tx.Inventory(), p.movements)
		if err != nil {
			return err
		}
		res.Movements = recs

		if value := movementsValue(recs); p.debit[0] != "" && value.IsPositive() {
			if periodErr != nil {
				return periodErr
			}
			debit, err := resolveAccount(ctx, tx, p.debit[0], p.debit[1])
			if err != nil {
				return err
			}
			credit, err := resolveAccount(ctx, tx, p.credit[0], p.credit[1])
			if err != nil {
				return err
			}
			ref := p.referenceNo
			entry, err := c.journals.PostEntryTx(ctx, tx.Journals(), journals.PostingInput{
				EntryNumber:    p.prefix + "-" + p.referenceNo,
				PostingDate:    p.date,
				DocumentType:   p.refType,
				DocumentNumber: &ref,
				PeriodID:       p.periodID,
				CreatedBy:      p.actorID,
				Lines:          twoLine(debit, credit, value, p.memo+" "+p.referenceNo),
			})
			if err != nil {
				return err
			}
			res.Entry = &entry
		}

		moved, err := movementEvent(p.op, p.referenceNo, p.refType, res.Movements, res.Entry)
		if err != nil {
			return err
		}
		if err := publish(ctx, tx, &res, moved); err != nil {
			return err
		}
		if res.Entry != nil {
			posted, err := entryEvent(events.TypeEntryPosted, *res.Entry)
			if err != nil {
				return err
			}
			return publish(ctx, tx, &res, posted)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	c.committed(ctx, p.actorID, res)
	return res, nil
}

// lineMovements builds one movement per line. Lines without a unit cost are
// left to the moving average.
func lineMovements(lines []StockLine, locationID int64, typ inventory.MovementType, refType, referenceNo, operator, remark string) []inventory.MovementInput {
	out := make([]inventory.MovementInput, 0, len(lines))
	for _, l := range lines {
		m := inventory.MovementInput{
			MaterialID: l.MaterialID,
			LocationID: locationID,
			Type:       typ,
			Quantity:   l.Quantity,
			Provenance: inventory.Provenance{
				ReferenceNo:   referenceNo,
				ReferenceType: refType,
				Operator:      operator,
				Remark:        remark,
				UnitID:        l.UnitID,
			},
		}
		if l.UnitCost.IsPositive() {
			cost := l.UnitCost
			m.UnitCost = &cost
		}
		out = append(out, m)
	}
	return out
}

// costedMovements is lineMovements with every line carrying its own cost,
// zero when none was given.
func costedMovements(lines []StockLine, locationID int64, typ inventory.MovementType, refType, referenceNo, operator, remark string) []inventory.MovementInput {
	out := lineMovements(lines, locationID, typ, refType, referenceNo, operator, remark)
	for i := range out {
		if out[i].UnitCost == nil {
			zero := decimal.Zero
			out[i].UnitCost = &zero
		}
	}
	return out
}
