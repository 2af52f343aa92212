package assistant

import (
	"context"
	"fmt"
	"strings"
)

// Category is the closed set of intents a message can be routed to.
type Category string

const (
	CategoryWelcome   Category = "welcome"
	CategoryInventory Category = "inventory"
	CategoryCashflow  Category = "cashflow"
	CategoryQuery     Category = "query"
	CategoryGraph     Category = "graph"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryWelcome, CategoryInventory, CategoryCashflow, CategoryQuery, CategoryGraph}

func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryWelcome, CategoryInventory, CategoryCashflow, CategoryQuery, CategoryGraph:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrClassificationParse, s)
}

// RoutedMessage is the router's verdict for one inbound message.
type RoutedMessage struct {
	Category Category
	Message  string
}

type routerOutput struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Classify makes exactly one oracle call. An unparseable answer or a category
// outside the closed set fails with ErrClassificationParse; there is no retry
// and no default category. When the model echoes an empty message the trimmed
// input is used instead.
func (a *Assistant) Classify(ctx context.Context, raw string) (RoutedMessage, error) {
	var out routerOutput
	if err := a.complete(ctx, PromptRouter, map[string]string{"input": raw}, routerSchema, &out); err != nil {
		return RoutedMessage{}, wrapOutput(ErrClassificationParse, "classify", err)
	}
	category, err := ParseCategory(out.Category)
	if err != nil {
		return RoutedMessage{}, err
	}
	msg := strings.TrimSpace(out.Message)
	if msg == "" {
		msg = strings.TrimSpace(raw)
	}
	return RoutedMessage{Category: category, Message: msg}, nil
}

// dispatch hands the routed message to the one handler of its category.
func (a *Assistant) dispatch(ctx context.Context, routed RoutedMessage, userID int64) (Reply, error) {
	switch routed.Category {
	case CategoryWelcome:
		return a.handleWelcome(ctx, routed.Message)
	case CategoryInventory:
		return a.handleInventory(ctx, routed.Message, userID)
	case CategoryCashflow:
		return a.handleCashflow(ctx, routed.Message, userID)
	case CategoryQuery:
		return a.handleQuery(ctx, routed.Message, userID)
	case CategoryGraph:
		return a.handleGraph(ctx, routed.Message, userID)
	default:
		return Reply{}, fmt.Errorf("%w: unknown category %q", ErrClassificationParse, routed.Category)
	}
}

const welcomeText = "Hello! I'm your business assistant. How can I help you today?"

func (a *Assistant) handleWelcome(_ context.Context, _ string) (Reply, error) {
	return TextReply(welcomeText), nil
}
