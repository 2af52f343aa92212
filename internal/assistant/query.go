package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bizbot-backend/internal/store"
)

type queryOutput struct {
	Query string `json:"query"`
}

// loadSchema introspects the store on every call so new columns reach the
// prompt without a restart.
func (a *Assistant) loadSchema(ctx context.Context) ([]string, map[string]string, error) {
	tables, err := a.schema.ListTables(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list tables: %v", ErrQueryExecution, err)
	}
	schemas := make(map[string]string, len(tables))
	for _, t := range tables {
		ddl, err := a.schema.DescribeTable(ctx, t)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: describe %s: %v", ErrQueryExecution, t, err)
		}
		schemas[t] = ddl
	}
	return tables, schemas, nil
}

// Synthesize asks the oracle for one SQL statement answering message. The
// statement is returned as text; it is not validated or executed here.
func (a *Assistant) Synthesize(ctx context.Context, message string, tables []string, schemas map[string]string, userID int64) (string, error) {
	return a.synthesize(ctx, PromptQuery, message, tables, schemas, userID)
}

func (a *Assistant) synthesize(ctx context.Context, prompt, message string, tables []string, schemas map[string]string, userID int64) (string, error) {
	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return "", fmt.Errorf("marshal tables: %w", err)
	}
	schemasJSON, err := json.Marshal(schemas)
	if err != nil {
		return "", fmt.Errorf("marshal schemas: %w", err)
	}
	vars := map[string]string{
		"input":   message,
		"tables":  string(tablesJSON),
		"schemas": string(schemasJSON),
		"user_id": strconv.FormatInt(userID, 10),
	}
	var out queryOutput
	if err := a.complete(ctx, prompt, vars, querySchema, &out); err != nil {
		return "", wrapOutput(ErrQuerySynthesis, prompt, err)
	}
	sql := stripMarkdownSQL(out.Query)
	if sql == "" {
		return "", fmt.Errorf("%w: %s: model returned empty SQL", ErrQuerySynthesis, prompt)
	}
	return sql, nil
}

// runQuery validates sql for userID and executes it read-only.
func (a *Assistant) runQuery(ctx context.Context, sql string, userID int64) (*store.QueryResult, error) {
	if err := ValidateReadOnly(sql, userID); err != nil {
		return nil, err
	}
	res, err := a.store.ExecuteReadOnly(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryExecution, err)
	}
	return res, nil
}

// handleQuery answers with the rows as text. An empty result is a normal
// reply, not an error.
func (a *Assistant) handleQuery(ctx context.Context, message string, userID int64) (Reply, error) {
	tables, schemas, err := a.loadSchema(ctx)
	if err != nil {
		return Reply{}, err
	}
	sql, err := a.Synthesize(ctx, message, tables, schemas, userID)
	if err != nil {
		return Reply{}, err
	}
	a.log(ctx).Debug("synthesized query", zap.String("sql", sql))
	res, err := a.runQuery(ctx, sql, userID)
	if err != nil {
		return Reply{}, err
	}
	return TextReply(res.String()), nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
