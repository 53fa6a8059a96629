// Package ui renders run progress in a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/eventbt/internal/engine"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ANSI escape codes
const (
	ClearLine   = "\033[2K"
	MoveUp      = "\033[%dA"
	HideCursor  = "\033[?25l"
	ShowCursor  = "\033[?25h"
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorRed    = "\033[31m"
	ColorCyan   = "\033[36m"
	ColorDim    = "\033[2m"
	ColorBold   = "\033[1m"
)

const (
	defaultWidth       = 80
	defaultChartHeight = 10
)

// ProgressView draws an equity chart and a stats line that redraw in
// place once per rendered heartbeat.
type ProgressView struct {
	w       io.Writer
	printer *message.Printer
	ansi    bool

	width       int
	chartHeight int
	maxPoints   int
	every       int

	startEquity decimal.Decimal
	expected    int // heartbeats, 0 when unknown
	equity      []decimal.Decimal
	last        engine.Progress

	linesPrinted int
}

// NewProgressView creates a view writing to w. expected is the number of
// heartbeats the run should take, or 0 when the feed length is unknown.
// Cursor movement and colors are used only when w is a terminal.
func NewProgressView(w io.Writer, startEquity decimal.Decimal, expected int) *ProgressView {
	width, ansi := defaultWidth, false
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		ansi = true
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}

	maxPoints := min(max(width-12, 20), 120)
	return &ProgressView{
		w:           w,
		printer:     message.NewPrinter(language.English),
		ansi:        ansi,
		width:       width,
		chartHeight: defaultChartHeight,
		maxPoints:   maxPoints,
		every:       1,
		startEquity: startEquity,
		expected:    expected,
		equity:      make([]decimal.Decimal, 0, maxPoints),
	}
}

// SetRenderEvery redraws only every n heartbeats. Values below 1 mean 1.
func (v *ProgressView) SetRenderEvery(n int) {
	v.every = max(n, 1)
}

// Start hides the cursor.
func (v *ProgressView) Start() {
	if v.ansi {
		fmt.Fprint(v.w, HideCursor)
	}
	fmt.Fprintln(v.w)
}

// Stop draws the final frame and restores the cursor.
func (v *ProgressView) Stop() {
	if v.last.Heartbeat > 0 && v.last.Heartbeat%v.every != 0 {
		v.Render()
	}
	if v.ansi {
		fmt.Fprint(v.w, ShowCursor)
	}
	fmt.Fprintln(v.w)
}

// Observe records p and redraws when it falls on the render interval.
// Its signature matches backtest.ProgressCallback.
func (v *ProgressView) Observe(p engine.Progress) {
	v.last = p
	v.equity = append(v.equity, p.Total)
	if len(v.equity) > v.maxPoints {
		v.equity = v.equity[1:]
	}
	if p.Heartbeat%v.every == 0 {
		v.Render()
	}
}

// Render draws the current frame.
func (v *ProgressView) Render() {
	if v.ansi && v.linesPrinted > 0 {
		fmt.Fprintf(v.w, MoveUp, v.linesPrinted)
	}

	lines := []string{v.progressLine()}
	lines = append(lines, v.renderChart()...)
	lines = append(lines, v.statsLine())

	for _, line := range lines {
		if v.ansi {
			fmt.Fprint(v.w, ClearLine)
		}
		fmt.Fprintln(v.w, line)
	}
	v.linesPrinted = len(lines)
}

func (v *ProgressView) color(code, s string) string {
	if !v.ansi {
		return s
	}
	return code + s + ColorReset
}

func (v *ProgressView) progressLine() string {
	date := ""
	if !v.last.Timestamp.IsZero() {
		date = v.last.Timestamp.Format("2006-01-02")
	}
	if v.expected <= 0 {
		return v.color(ColorCyan, v.printer.Sprintf("heartbeat %d %s", v.last.Heartbeat, date))
	}

	progress := min(float64(v.last.Heartbeat)/float64(v.expected), 1)
	barWidth := max(v.width-40, 20)
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return v.color(ColorCyan, v.printer.Sprintf("%s %.1f%% [%d/%d] %s", bar, progress*100, v.last.Heartbeat, v.expected, date))
}

func (v *ProgressView) statsLine() string {
	pnlPct := decimal.Zero
	if !v.startEquity.IsZero() {
		pnlPct = v.last.Total.Sub(v.startEquity).Div(v.startEquity).Mul(decimal.NewFromInt(100))
	}
	pnlColor := ColorGreen
	if pnlPct.IsNegative() {
		pnlColor = ColorRed
	}

	s := v.last.Stats
	return v.printer.Sprintf("%s $%.2f (%s) │ %s %.2f%% │ %s %d/%d/%d",
		v.color(ColorBold, "Equity:"), v.last.Total.InexactFloat64(),
		v.color(pnlColor, v.printer.Sprintf("%+.2f%%", pnlPct.InexactFloat64())),
		v.color(ColorBold, "DD:"), v.last.Drawdown.Mul(decimal.NewFromInt(100)).InexactFloat64(),
		v.color(ColorBold, "Sig/Ord/Fill:"), s.Signals, s.Orders, s.Fills)
}

// renderChart plots the recent equity points as a column chart.
func (v *ProgressView) renderChart() []string {
	height := v.chartHeight
	if len(v.equity) < 2 {
		lines := make([]string, height)
		for i := range lines {
			lines[i] = v.color(ColorDim, "         │")
		}
		return lines
	}

	minEq, maxEq := v.equity[0], v.equity[0]
	for _, e := range v.equity {
		minEq = decimal.Min(minEq, e)
		maxEq = decimal.Max(maxEq, e)
	}

	eqRange := maxEq.Sub(minEq)
	if eqRange.IsZero() {
		eqRange = decimal.NewFromInt(1)
	}
	padding := eqRange.Mul(decimal.RequireFromString("0.05"))
	minEq = minEq.Sub(padding)
	eqRange = maxEq.Add(padding).Sub(minEq)

	width := len(v.equity)
	chart := make([][]rune, height)
	for i := range chart {
		chart[i] = []rune(strings.Repeat(" ", width))
	}
	for x, e := range v.equity {
		top := valueToY(e, minEq, eqRange, height)
		for y := max(top, 0); y < height; y++ {
			if y == top {
				chart[y][x] = '█'
			} else {
				chart[y][x] = '│'
			}
		}
	}

	lines := make([]string, height)
	step := max(height/4, 1)
	for y := range height {
		var sb strings.Builder
		if y%step == 0 {
			label := yToValue(y, minEq, eqRange, height)
			sb.WriteString(v.color(ColorDim, fmt.Sprintf("%9.0f", label.InexactFloat64())))
		} else {
			sb.WriteString(strings.Repeat(" ", 9))
		}
		sb.WriteString(v.color(ColorDim, "│"))

		color := ColorGreen
		if v.equity[width-1].LessThan(v.startEquity) {
			color = ColorRed
		}
		sb.WriteString(v.color(color, string(chart[y])))
		lines[y] = sb.String()
	}
	lines = append(lines, v.color(ColorDim, "         └"+strings.Repeat("─", width)))
	return lines
}

// valueToY converts a value to a row, 0 being the top.
func valueToY(value, minValue, valueRange decimal.Decimal, height int) int {
	if valueRange.IsZero() {
		return height / 2
	}
	normalized := value.Sub(minValue).Div(valueRange)
	y := decimal.NewFromInt(int64(height - 1)).Sub(normalized.Mul(decimal.NewFromInt(int64(height - 1))))
	return int(y.Round(0).IntPart())
}

// yToValue converts a row back to a value.
func yToValue(y int, minValue, valueRange decimal.Decimal, height int) decimal.Decimal {
	normalized := decimal.NewFromInt(int64(height - 1 - y)).Div(decimal.NewFromInt(int64(height - 1)))
	return minValue.Add(valueRange.Mul(normalized))
}

