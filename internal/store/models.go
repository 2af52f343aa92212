package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          int64
	PhoneNumber string
	UserName    string
	CreatedAt   time.Time
}

// Direction is the cashflow direction; only credit (income) and debit
// (expense) exist.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ParseDirection accepts exactly "credit" or "debit".
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionCredit, DirectionDebit:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid cashflow direction %q", s)
}

type InventoryRecord struct {
	ID         int64
	ItemName   string
	Quantity   int
	Price      decimal.Decimal
	UserID     int64
	LastUpdate time.Time
}

type CashflowRecord struct {
	ID        int64
	Purpose   string
	Amount    decimal.Decimal
	Direction Direction
	UserID    int64
	Date      time.Time
}

// QueryResult holds rows of an ad-hoc read query in column order.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Column returns the values of column i across all rows.
func (r *QueryResult) Column(i int) []any {
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		if i < len(row) {
			out = append(out, row[i])
		}
	}
	return out
}

// String renders the result as a header line followed by one line per row.
func (r *QueryResult) String() string {
	if r == nil || len(r.Rows) == 0 {
		return "No results."
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, ", "))
	for _, row := range r.Rows {
		b.WriteString("\n(")
		for i, v := range row {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatValue(v))
		}
		b.WriteString(")")
	}
	return b.String()
}

func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return decimal.NewFromFloat(x).String()
	default:
		return fmt.Sprint(x)
	}
}
