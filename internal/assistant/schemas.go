package assistant

// JSON schemas the oracle output must satisfy before it is decoded.

var routerSchema = map[string]any{
	"type":     "object",
	"required": []any{"category", "message"},
	"properties": map[string]any{
		"category": map[string]any{
			"type": "string",
			"enum": []any{"welcome", "inventory", "cashflow", "query", "graph"},
		},
		"message": map[string]any{"type": "string"},
	},
}

var inventorySchema = map[string]any{
	"type":     "object",
	"required": []any{"item_name", "quantity", "price"},
	"properties": map[string]any{
		"item_name": map[string]any{"type": "string", "minLength": 1},
		"quantity":  map[string]any{"type": "integer"},
		"price":     map[string]any{"type": "number", "minimum": 0},
	},
}

var cashflowSchema = map[string]any{
	"type":     "object",
	"required": []any{"item_purpose", "amount", "credit_debit"},
	"properties": map[string]any{
		"item_purpose": map[string]any{"type": "string", "minLength": 1},
		"amount":       map[string]any{"type": "number", "minimum": 0},
		"credit_debit": map[string]any{
			"type": "string",
			"enum": []any{"credit", "debit"},
		},
	},
}

var querySchema = map[string]any{
	"type":     "object",
	"required": []any{"query"},
	"properties": map[string]any{
		"query": map[string]any{"type": "string", "minLength": 1},
	},
}

var chartSchema = map[string]any{
	"type":     "object",
	"required": []any{"type"},
	"properties": map[string]any{
		"type": map[string]any{"type": "string"},
	},
}
