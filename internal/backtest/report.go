package backtest

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report writes a human readable summary of result to w.
func Report(w io.Writer, result *Result) error {
	p := message.NewPrinter(language.English)
	s := result.Summary

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Run", result.RunID},
		{"Strategy", result.Strategy},
		{"Heartbeats", p.Sprintf("%d", result.Stats.Heartbeats)},
		{"Signals / Orders / Fills", p.Sprintf("%d / %d / %d", result.Stats.Signals, result.Stats.Orders, result.Stats.Fills)},
		{"Start equity", money(p, s.StartEquity)},
		{"End equity", money(p, s.EndEquity)},
		{"Total return", percent(p, s.TotalReturn)},
		{"Annualized return", percent(p, s.AnnualizedReturn)},
		{"Sharpe ratio", ratio(p, s.SharpeRatio)},
		{"Sortino ratio", ratio(p, s.SortinoRatio)},
		{"Calmar ratio", ratio(p, s.CalmarRatio)},
		{"Max drawdown", percent(p, s.MaxDrawdown)},
		{"Drawdown duration", p.Sprintf("%d periods", s.DrawdownDuration)},
		{"Trades", p.Sprintf("%d", s.Trades)},
		{"Win rate", percent(p, s.WinRate)},
		{"Profit factor", ratio(p, s.ProfitFactor)},
		{"Expectancy", money(p, s.Expectancy)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	if result.Err != nil {
		if _, err := fmt.Fprintf(tw, "Aborted\t%v\n", result.Err); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func money(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.InexactFloat64())
}

func percent(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f%%", d.Mul(decimal.NewFromInt(100)).InexactFloat64())
}

func ratio(p *message.Printer, d decimal.Decimal) string {
	return p.Sprintf("%.2f", d.InexactFloat64())
}
