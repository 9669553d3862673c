package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apphttp "dailyledger/internal/http"
	"dailyledger/internal/ledger"
	"dailyledger/internal/services"
)

// queryFlags select the report window the same way the HTTP query string does.
type queryFlags struct {
	month     string
	start     string
	end       string
	kinds     []string
	breakdown string
}

func (q *queryFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&q.month, "month", "", "calendar month, YYYY-MM")
	f.StringVar(&q.start, "start", "", "first day of the window (default: first of this month)")
	f.StringVar(&q.end, "end", "", "last day of the window (default: last of this month)")
	f.StringSliceVar(&q.kinds, "kind", nil, "restrict to expense and/or income")
	f.StringVar(&q.breakdown, "breakdown", "", "kind broken down by category (default expense)")
}

func (q *queryFlags) parse(cmd *cobra.Command, app *App) (ledger.Query, error) {
	values := url.Values{}
	if q.month != "" {
		values.Set("month", q.month)
	}
	if cmd.Flags().Changed("start") {
		values.Set("start", q.start)
	}
	if cmd.Flags().Changed("end") {
		values.Set("end", q.end)
	}
	if len(q.kinds) > 0 {
		values.Set("kind", strings.Join(q.kinds, ","))
	}
	if q.breakdown != "" {
		values.Set("breakdown", q.breakdown)
	}
	return apphttp.ParseQuery(values, app.Ledger.DefaultRange(), app.Dates)
}

func newReportCommand(o *globalOptions) *cobra.Command {
	var (
		q      queryFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show totals, the category breakdown and the rows of a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			query, err := q.parse(cmd, app)
			if err != nil {
				return err
			}
			res, err := app.Ledger.Report(cmd.Context(), query)
			if err != nil && !res.Stale {
				return err
			}
			if res.Stale {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", apphttp.StaleWarning)
			}
			return writeReport(cmd.OutOrStdout(), format, app.Ledger.Format(), res)
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func writeReport(w io.Writer, format string, f ledger.Format, res services.ReportResult) error {
	rep := res.Report
	switch format {
	case "json":
		breakdown := make([]map[string]any, 0, len(rep.Breakdown))
		for _, b := range rep.Breakdown {
			breakdown = append(breakdown, map[string]any{"category": b.Category, "amount": b.Amount, "count": b.Count})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"start":     rep.Start.String(),
			"end":       rep.End.String(),
			"income":    rep.IncomeTotal,
			"expense":   rep.ExpenseTotal,
			"balance":   rep.Balance,
			"count":     len(rep.Filtered),
			"breakdown": breakdown,
			"stale":     res.Stale,
		})
	case "table":
		fmt.Fprintf(w, "Period: %s - %s\n\n", rep.Start, rep.End)
		if err := writeTable(w, res.Table.Header, res.Table.Rows); err != nil {
			return err
		}
		fmt.Fprintf(w, "\nIncome:  %s\nExpense: %s\nBalance: %s\n", f.Money(rep.IncomeTotal), f.Money(rep.ExpenseTotal), f.Money(rep.Balance))
		if rep.BreakdownAvailable && len(rep.Breakdown) > 0 {
			fmt.Fprintf(w, "\nBreakdown (%s):\n", rep.BreakdownKind)
			rows := make([][]string, 0, len(rep.Breakdown))
			for _, b := range ledger.SortBreakdown(rep.Breakdown) {
				rows = append(rows, []string{b.Category, f.Money(b.Amount), fmt.Sprint(b.Count)})
			}
			return writeTable(w, nil, rows)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: want table or json", format)
	}
}

func newMonthlyCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "monthly",
		Short: "Income, expense and balance per calendar month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Ledger.Monthly(cmd.Context())
			if err != nil && !res.Stale {
				return err
			}
			if res.Stale {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", apphttp.StaleWarning)
			}
			f := app.Ledger.Format()
			rows := make([][]string, 0, len(res.Months))
			for _, m := range res.Months {
				rows = append(rows, []string{
					fmt.Sprintf("%04d-%02d", m.Year, m.Month),
					f.Money(m.Income), f.Money(m.Expense), f.Money(m.Balance), fmt.Sprint(m.Count),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"Month", "Income", "Expense", "Balance", "Rows"}, rows)
		},
	}
}

func newExportCommand(o *globalOptions) *cobra.Command {
	var (
		q      queryFlags
		format string
		output string
		title  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a window as CSV or as a printable table",
		Long: `Export the rows of a window. csv writes delimited text with a header row;
table and json write the printable document: title, period, rows and totals.
Exports never fall back to stale data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			query, err := q.parse(cmd, app)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer file.Close()
				w = file
			}
			if title == "" {
				title = app.Config.DocumentTitle
			}

			switch format {
			case "csv":
				return app.Ledger.ExportCSV(cmd.Context(), w, query)
			case "table", "json":
				doc, err := app.Ledger.Document(cmd.Context(), title, query)
				if err != nil {
					return err
				}
				if format == "json" {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(doc)
				}
				return writeDocument(w, doc)
			default:
				return fmt.Errorf("unknown format %q: want csv, table or json", format)
			}
		},
	}
	q.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv, table or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "document title (default DOCUMENT_TITLE)")
	return cmd
}

func writeDocument(w io.Writer, doc ledger.Document) error {
	fmt.Fprintf(w, "%s\n%s\n\n", doc.Title, doc.Period)
	if err := writeTable(w, doc.Header, doc.Rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", doc.SummaryText())
	return err
}

// writeTable aligns columns with two spaces of padding. A nil header writes
// rows only.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if header != nil {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}
