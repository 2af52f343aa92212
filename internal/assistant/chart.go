package assistant

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bizbot-backend/internal/metrics"
)

// ChartKind is the closed set of chart families the renderer draws.
type ChartKind string

const (
	ChartLine    ChartKind = "line"
	ChartBar     ChartKind = "bar"
	ChartScatter ChartKind = "scatter"
	ChartPie     ChartKind = "pie"
	ChartHist    ChartKind = "hist"
)

var ChartKinds = []ChartKind{ChartLine, ChartBar, ChartScatter, ChartPie, ChartHist}

// ParseChartKind matches s against the chart kinds, ignoring case and
// surrounding space.
func ParseChartKind(s string) (ChartKind, error) {
	switch k := ChartKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ChartLine, ChartBar, ChartScatter, ChartPie, ChartHist:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVisualization, s)
}

type chartOutput struct {
	Type string `json:"type"`
}

// SelectChart asks the oracle which chart family fits query and message.
// Anything outside the closed set is ErrInvalidVisualization.
func (a *Assistant) SelectChart(ctx context.Context, query, message string) (ChartKind, error) {
	var out chartOutput
	vars := map[string]string{"query": query, "input": message}
	if err := a.complete(ctx, PromptChartType, vars, chartSchema, &out); err != nil {
		return "", wrapOutput(ErrInvalidVisualization, "chart type", err)
	}
	return ParseChartKind(out.Type)
}

func (a *Assistant) handleGraph(ctx context.Context, message string, userID int64) (Reply, error) {
	tables, schemas, err := a.loadSchema(ctx)
	if err != nil {
		return Reply{}, err
	}
	sql, err := a.synthesize(ctx, PromptGraphQuery, message, tables, schemas, userID)
	if err != nil {
		return Reply{}, err
	}
	if err := ValidateReadOnly(sql, userID); err != nil {
		return Reply{}, err
	}
	kind, err := a.SelectChart(ctx, sql, message)
	if err != nil {
		return Reply{}, err
	}
	a.log(ctx).Debug("chart selected", zap.String("sql", sql), zap.String("kind", string(kind)))

	res, err := a.runQuery(ctx, sql, userID)
	if err != nil {
		return Reply{}, err
	}
	png, err := RenderChart(kind, message, res)
	if err != nil {
		return Reply{}, err
	}
	metrics.ChartsRendered.WithLabelValues(string(kind)).Inc()
	return MediaReply(base64.StdEncoding.EncodeToString(png), fmt.Sprintf("Here's your %s chart", kind)), nil
}
