package assistant

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"bizbot-backend/internal/store"
)

// Bounds of the inventory.quantity INTEGER column.
var (
	minQuantity = decimal.NewFromInt(math.MinInt32)
	maxQuantity = decimal.NewFromInt(math.MaxInt32)
)

type inventoryOutput struct {
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type cashflowOutput struct {
	ItemPurpose string          `json:"item_purpose"`
	Amount      decimal.Decimal `json:"amount"`
	CreditDebit string          `json:"credit_debit"`
}

// ExtractInventory turns a message into an inventory record for userID. The
// record is only returned when every field parsed.
func (a *Assistant) ExtractInventory(ctx context.Context, message string, userID int64) (store.InventoryRecord, error) {
	var out inventoryOutput
	if err := a.complete(ctx, PromptInventory, map[string]string{"input": message}, inventorySchema, &out); err != nil {
		return store.InventoryRecord{}, wrapOutput(ErrExtraction, "inventory", err)
	}
	name := strings.TrimSpace(out.ItemName)
	if name == "" {
		return store.InventoryRecord{}, fmt.Errorf("%w: inventory: item name is blank", ErrExtraction)
	}
	if !out.Quantity.IsInteger() {
		return store.InventoryRecord{}, fmt.Errorf("%w: inventory: quantity %s is not a whole number", ErrExtraction, out.Quantity)
	}
	if out.Quantity.LessThan(minQuantity) || out.Quantity.GreaterThan(maxQuantity) {
		return store.InventoryRecord{}, fmt.Errorf("%w: inventory: quantity %s is out of range", ErrExtraction, out.Quantity)
	}
	return store.InventoryRecord{
		ItemName:   name,
		Quantity:   int(out.Quantity.IntPart()),
		Price:      out.Price,
		UserID:     userID,
		LastUpdate: a.now().UTC(),
	}, nil
}

// ExtractCashflow turns a message into a cashflow record dated now. The
// direction must be exactly credit or debit.
func (a *Assistant) ExtractCashflow(ctx context.Context, message string, userID int64) (store.CashflowRecord, error) {
	var out cashflowOutput
	if err := a.complete(ctx, PromptCashflow, map[string]string{"input": message}, cashflowSchema, &out); err != nil {
		return store.CashflowRecord{}, wrapOutput(ErrExtraction, "cashflow", err)
	}
	dir, err := store.ParseDirection(out.CreditDebit)
	if err != nil {
		return store.CashflowRecord{}, fmt.Errorf("%w: cashflow: %v", ErrExtraction, err)
	}
	purpose := strings.TrimSpace(out.ItemPurpose)
	if purpose == "" {
		return store.CashflowRecord{}, fmt.Errorf("%w: cashflow: purpose is blank", ErrExtraction)
	}
	return store.CashflowRecord{
		Purpose:   purpose,
		Amount:    out.Amount,
		Direction: dir,
		UserID:    userID,
		Date:      a.now().UTC(),
	}, nil
}

func (a *Assistant) handleInventory(ctx context.Context, message string, userID int64) (Reply, error) {
	rec, err := a.ExtractInventory(ctx, message, userID)
	if err != nil {
		return Reply{}, err
	}
	if _, err := a.store.InsertInventory(ctx, rec); err != nil {
		return Reply{}, fmt.Errorf("%w: insert inventory: %v", ErrPersistence, err)
	}
	return TextReply(fmt.Sprintf("Added %d %s at $%s each to inventory.",
		rec.Quantity, rec.ItemName, formatMoney(rec.Price))), nil
}

func (a *Assistant) handleCashflow(ctx context.Context, message string, userID int64) (Reply, error) {
	rec, err := a.ExtractCashflow(ctx, message, userID)
	if err != nil {
		return Reply{}, err
	}
	if _, err := a.store.InsertCashflow(ctx, rec); err != nil {
		return Reply{}, fmt.Errorf("%w: insert cashflow: %v", ErrPersistence, err)
	}
	return TextReply(fmt.Sprintf("Recorded %s: $%s for %s",
		rec.Direction, formatMoney(rec.Amount), rec.Purpose)), nil
}

// formatMoney renders money keeping at least one decimal place: 2 -> 2.0, 2.5 -> 2.5, 3.25 -> 3.25.
func formatMoney(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return d.StringFixed(1)
	}
	return d.String()
}
