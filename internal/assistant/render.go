package assistant

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"bizbot-backend/internal/store"
)

const (
	chartWidth  = 1000
	chartHeight = 600
	histBins    = 20
)

type renderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

// RenderChart draws res as a PNG. Column 0 holds labels or x values and
// column 1 the numeric values; hist only uses column 0. The same input always
// yields the same bytes.
func RenderChart(kind ChartKind, title string, res *store.QueryResult) ([]byte, error) {
	if res == nil || len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: query returned no rows", ErrRendering)
	}
	minCols := 2
	if kind == ChartHist {
		minCols = 1
	}
	if len(res.Columns) < minCols {
		return nil, fmt.Errorf("%w: %s chart needs %d columns, got %d", ErrRendering, kind, minCols, len(res.Columns))
	}

	var (
		graph renderable
		err   error
	)
	switch kind {
	case ChartLine:
		graph, err = lineChart(title, res)
	case ChartBar:
		graph, err = barChart(title, res)
	case ChartScatter:
		graph, err = scatterChart(title, res)
	case ChartPie:
		graph, err = pieChart(title, res)
	case ChartHist:
		graph, err = histChart(title, res)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidVisualization, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendering, err)
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendering, err)
	}
	return buf.Bytes(), nil
}

func lineChart(title string, res *store.QueryResult) (renderable, error) {
	labels := labelsOf(res.Column(0))
	ys, err := floatsOf(res.Columns[1], res.Column(1))
	if err != nil {
		return nil, err
	}
	xs := make([]float64, len(ys))
	ticks := make([]chart.Tick, 0, len(ys)+2)
	for i := range ys {
		xs[i] = float64(i)
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: labels[i]})
	}
	// The x range is taken from the ticks and must not be empty.
	if len(ys) == 1 {
		ticks = append([]chart.Tick{{Value: -1}}, chart.Tick{Value: 0, Label: labels[0]}, chart.Tick{Value: 1})
	}
	return chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chartPadding(),
		XAxis: chart.XAxis{
			Name:  res.Columns[0],
			Style: chart.Style{TextRotationDegrees: 45},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:  res.Columns[1],
			Range: paddedRange(ys),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{Name: res.Columns[1], XValues: xs, YValues: ys},
		},
	}, nil
}

func scatterChart(title string, res *store.QueryResult) (renderable, error) {
	xs, err := floatsOf(res.Columns[0], res.Column(0))
	if err != nil {
		return nil, err
	}
	ys, err := floatsOf(res.Columns[1], res.Column(1))
	if err != nil {
		return nil, err
	}
	return chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chartPadding(),
		XAxis:      chart.XAxis{Name: res.Columns[0], Range: paddedRange(xs)},
		YAxis:      chart.YAxis{Name: res.Columns[1], Range: paddedRange(ys)},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    res.Columns[1],
				Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 5},
				XValues: xs,
				YValues: ys,
			},
		},
	}, nil
}

func barChart(title string, res *store.QueryResult) (renderable, error) {
	labels := labelsOf(res.Column(0))
	values, err := floatsOf(res.Columns[1], res.Column(1))
	if err != nil {
		return nil, err
	}
	bars := make([]chart.Value, len(values))
	for i, v := range values {
		bars[i] = chart.Value{Label: labels[i], Value: v}
	}
	return bars2chart(title, bars), nil
}

func histChart(title string, res *store.QueryResult) (renderable, error) {
	values, err := floatsOf(res.Columns[0], res.Column(0))
	if err != nil {
		return nil, err
	}
	lo, hi := minMax(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	// Scaled before subtracting so extreme ranges do not overflow.
	width := hi/histBins - lo/histBins
	counts := make([]int, histBins)
	for _, v := range values {
		i := int(v/width - lo/width)
		i = max(0, min(i, histBins-1))
		counts[i]++
	}
	bars := make([]chart.Value, histBins)
	for i, c := range counts {
		bars[i] = chart.Value{
			Label: strconv.FormatFloat(lo+float64(i)*width, 'g', 4, 64),
			Value: float64(c),
		}
	}
	return bars2chart(title, bars), nil
}

func bars2chart(title string, bars []chart.Value) chart.BarChart {
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Value
	}
	lo, hi := minMax(values)
	lo, hi = math.Min(lo, 0), math.Max(hi, 0)
	if lo == hi {
		hi = 1
	}
	spacing := 10
	barWidth := (chartWidth-120)/len(bars) - spacing
	if barWidth < 4 {
		barWidth, spacing = 4, 2
	}
	return chart.BarChart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chartPadding(),
		BarWidth:   barWidth,
		BarSpacing: spacing,
		XAxis:      chart.Style{TextRotationDegrees: 45},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Bars: bars,
	}
}

func pieChart(title string, res *store.QueryResult) (renderable, error) {
	labels := labelsOf(res.Column(0))
	values, err := floatsOf(res.Columns[1], res.Column(1))
	if err != nil {
		return nil, err
	}
	var total float64
	for _, v := range values {
		if v < 0 {
			return nil, fmt.Errorf("pie chart cannot show negative value %g", v)
		}
		total += v
	}
	if total == 0 {
		return nil, fmt.Errorf("pie chart values sum to zero")
	}
	slices := make([]chart.Value, len(values))
	for i, v := range values {
		slices[i] = chart.Value{
			Label: fmt.Sprintf("%s (%.1f%%)", labels[i], v/total*100),
			Value: v,
		}
	}
	return chart.PieChart{
		Title:  title,
		Width:  chartHeight,
		Height: chartHeight,
		Values: slices,
	}, nil
}

func chartPadding() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}}
}

// paddedRange returns the data range, widened when all values are equal so
// the axis never collapses to a point.
func paddedRange(values []float64) *chart.ContinuousRange {
	lo, hi := minMax(values)
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func labelsOf(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = store.FormatValue(v)
	}
	return out
}

// floatsOf converts a result column to finite numbers. NULL counts as zero;
// text is accepted when it parses as a number.
func floatsOf(column string, values []any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("column %q has non-numeric value %q", column, store.FormatValue(v))
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("column %q has non-finite value %q", column, store.FormatValue(v))
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case decimal.Decimal:
		return x.InexactFloat64(), true
	case time.Time:
		return float64(x.Unix()), true
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
