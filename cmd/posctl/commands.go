package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/api"
	"github.com/warp/cashdrawer/backup"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
)

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func money(d decimal.Decimal) string {
	return pos.FormatAmount(d, *currency)
}

// =============================================================================
// SHIFTS
// =============================================================================

type activeCmd struct{}

func (*activeCmd) Name() string     { return "active" }
func (*activeCmd) Synopsis() string { return "show the open shift" }
func (*activeCmd) Usage() string {
	return `posctl active

  Prints the open shift and its expected cash, or "no shift open".
`
}
func (*activeCmd) SetFlags(*flag.FlagSet) {}

func (*activeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var resp api.ActiveShiftResponse
	if err := newClient().call(ctx, http.MethodGet, "/api/shifts/active", nil, &resp); err != nil {
		return fail(err)
	}
	if !resp.Open {
		fmt.Fprintln(stdout, "no shift open")
		return subcommands.ExitSuccess
	}
	s := resp.Shift
	fmt.Fprintf(stdout, "shift %s opened %s by %s\n", s.ID, s.OpenedAt.Local().Format(time.DateTime), s.OpenedBy.Name)
	fmt.Fprintf(stdout, "start %s, expected %s\n", money(s.StartCash), money(s.EndCashExpected))
	return subcommands.ExitSuccess
}

type openCmd struct{}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "open a shift with the starting cash" }
func (*openCmd) Usage() string {
	return `posctl open <start_cash>
`
}
func (*openCmd) SetFlags(*flag.FlagSet) {}

func (c *openCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	var shift pos.Shift
	req := api.OpenShiftRequest{StartCash: api.Amount(f.Arg(0))}
	if err := newClient().call(ctx, http.MethodPost, "/api/shifts/open", req, &shift); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "opened shift %s with %s\n", shift.ID, money(shift.StartCash))
	return subcommands.ExitSuccess
}

type closeCmd struct{}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "close the open shift against the counted cash" }
func (*closeCmd) Usage() string {
	return `posctl close <counted_cash>

  The difference is counted minus expected: negative means cash is missing.
`
}
func (*closeCmd) SetFlags(*flag.FlagSet) {}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	var resp api.CloseShiftResponse
	req := api.CloseShiftRequest{ActualCash: api.Amount(f.Arg(0))}
	if err := newClient().call(ctx, http.MethodPost, "/api/shifts/close", req, &resp); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "closed shift %s\n", resp.Shift.ID)
	fmt.Fprintf(stdout, "expected   %s\n", money(resp.Expected))
	fmt.Fprintf(stdout, "counted    %s\n", money(resp.Counted))
	fmt.Fprintf(stdout, "difference %s\n", money(resp.Difference))
	return subcommands.ExitSuccess
}

type historyCmd struct {
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list closed shifts, latest first" }
func (*historyCmd) Usage() string {
	return `posctl history [-n <count>]
`
}
func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of shifts to list, 0 for all")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var shifts []pos.Shift
	path := "/api/shifts/history?limit=" + strconv.Itoa(c.limit)
	if err := newClient().call(ctx, http.MethodGet, path, nil, &shifts); err != nil {
		return fail(err)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIFT\tCLOSED\tBY\tEXPECTED\tCOUNTED\tDIFFERENCE")
	for _, s := range shifts {
		closed, by, counted := "", "", ""
		if s.ClosedAt != nil {
			closed = s.ClosedAt.Local().Format(time.DateTime)
		}
		if s.ClosedBy != nil {
			by = s.ClosedBy.Name
		}
		if s.EndCashActual != nil {
			counted = money(*s.EndCashActual)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, closed, by, money(s.EndCashExpected), counted, money(s.Difference()))
	}
	if err := tw.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type summaryCmd struct{}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print the report of a shift" }
func (*summaryCmd) Usage() string {
	return `posctl summary [<shift_id>]

  Without an id, reports the open shift.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (*summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c := newClient()
	id := f.Arg(0)
	if id == "" {
		var active api.ActiveShiftResponse
		if err := c.call(ctx, http.MethodGet, "/api/shifts/active", nil, &active); err != nil {
			return fail(err)
		}
		if !active.Open {
			return fail(fmt.Errorf("no shift open"))
		}
		id = string(active.Shift.ID)
	}
	var sum api.SummaryDTO
	if err := c.call(ctx, http.MethodGet, "/api/shifts/"+url.PathEscape(id)+"/summary", nil, &sum); err != nil {
		return fail(err)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "shift\t%s (%s)\n", sum.Shift.ID, sum.Shift.Status)
	fmt.Fprintf(tw, "start cash\t%s\n", money(sum.Shift.StartCash))
	fmt.Fprintf(tw, "sales\t%d\n", sum.SalesCount)
	fmt.Fprintf(tw, "  cash\t%s\n", money(sum.CashSales))
	fmt.Fprintf(tw, "  card\t%s\n", money(sum.CardSales))
	fmt.Fprintf(tw, "  other\t%s\n", money(sum.OtherSales))
	fmt.Fprintf(tw, "expenses (%d)\t%s\n", sum.ExpenseCount, money(sum.Expenses))
	fmt.Fprintf(tw, "cash refunds\t%s\n", money(sum.CashRefunds))
	fmt.Fprintf(tw, "expected\t%s\n", money(sum.Expected))
	if sum.Shift.EndCashActual != nil {
		fmt.Fprintf(tw, "counted\t%s\n", money(*sum.Shift.EndCashActual))
		fmt.Fprintf(tw, "difference\t%s\n", money(sum.Difference))
	}
	if err := tw.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// EXPENSES
// =============================================================================

type expenseCmd struct {
	category    string
	description string
}

func (*expenseCmd) Name() string     { return "expense" }
func (*expenseCmd) Synopsis() string { return "take an expense out of the drawer" }
func (*expenseCmd) Usage() string {
	return `posctl expense [-c <category>] [-d <description>] <amount>

  Categories: SUPPLIES, SERVICES, FOOD, TRANSPORT, SALARY, OTHER.
`
}
func (c *expenseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "c", string(pos.ExpenseOther), "Expense category")
	f.StringVar(&c.description, "d", "", "Description")
}

func (c *expenseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	req := api.ExpenseRequest{
		Amount:      api.Amount(f.Arg(0)),
		Category:    pos.ExpenseCategory(strings.ToUpper(c.category)),
		Description: c.description,
	}
	var exp pos.Expense
	if err := newClient().call(ctx, http.MethodPost, "/api/expenses", req, &exp); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "recorded expense %s: %s %s\n", exp.ID, money(exp.Amount), exp.Category)
	return subcommands.ExitSuccess
}

type unexpenseCmd struct{}

func (*unexpenseCmd) Name() string     { return "unexpense" }
func (*unexpenseCmd) Synopsis() string { return "delete an expense of the open shift" }
func (*unexpenseCmd) Usage() string {
	return `posctl unexpense <expense_id>
`
}
func (*unexpenseCmd) SetFlags(*flag.FlagSet) {}

func (c *unexpenseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	var exp pos.Expense
	if err := newClient().call(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(f.Arg(0)), nil, &exp); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "deleted expense %s, %s back in the drawer\n", exp.ID, money(exp.Amount))
	return subcommands.ExitSuccess
}

// =============================================================================
// SALES
// =============================================================================

type saleCmd struct {
	method string
}

func (*saleCmd) Name() string     { return "sale" }
func (*saleCmd) Synopsis() string { return "record a sale" }
func (*saleCmd) Usage() string {
	return `posctl sale [-pay CASH|CARD|OTHER] <item>[:<qty>] ...

  An item is a variant id, a barcode or a SKU. Quantity defaults to 1.
`
}
func (c *saleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.method, "pay", string(pos.PaymentCash), "Payment method")
}

func (c *saleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	cl := newClient()
	lines := make([]ledger.LineRequest, 0, f.NArg())
	for _, arg := range f.Args() {
		code, qty, err := parseItem(arg)
		if err != nil {
			return fail(err)
		}
		id, err := cl.resolveVariant(ctx, code)
		if err != nil {
			return fail(err)
		}
		lines = append(lines, ledger.LineRequest{VariantID: id, Quantity: qty})
	}

	req := api.SaleRequest{Items: lines, PaymentMethod: pos.PaymentMethod(strings.ToUpper(c.method))}
	var sale pos.Sale
	if err := cl.call(ctx, http.MethodPost, "/api/sales", req, &sale); err != nil {
		return fail(err)
	}
	for _, item := range sale.Items {
		name := item.ProductName
		if item.AttributeSummary != "" {
			name += " (" + item.AttributeSummary + ")"
		}
		fmt.Fprintf(stdout, "%3d x %-30s %s\n", item.Quantity, name, money(item.LineTotal()))
	}
	fmt.Fprintf(stdout, "total %s (%s) sale %s\n", money(sale.Total), sale.PaymentMethod, sale.ID)
	return subcommands.ExitSuccess
}

// parseItem splits "code:qty".
func parseItem(arg string) (string, int, error) {
	code, rawQty, found := strings.Cut(arg, ":")
	if code == "" {
		return "", 0, fmt.Errorf("empty item in %q", arg)
	}
	if !found {
		return code, 1, nil
	}
	qty, err := strconv.Atoi(rawQty)
	if err != nil || qty <= 0 {
		return "", 0, fmt.Errorf("invalid quantity in %q", arg)
	}
	return code, qty, nil
}

// resolveVariant maps a barcode or SKU to its variant id. Codes the
// catalog does not know are passed through as variant ids.
func (c *client) resolveVariant(ctx context.Context, code string) (pos.VariantID, error) {
	var v pos.Variant
	err := c.call(ctx, http.MethodGet, "/api/variants/lookup?code="+url.QueryEscape(code), nil, &v)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return pos.VariantID(code), nil
	}
	if err != nil {
		return "", err
	}
	return v.ID, nil
}

// =============================================================================
// BACKUP
// =============================================================================

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "download a full backup document" }
func (*exportCmd) Usage() string {
	return `posctl export [-o <file>]
`
}
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file (default: stdout)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	resp, err := newClient().send(ctx, http.MethodGet, "/api/backup", nil)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	w := stdout
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fail(err)
	}
	if c.output != "" {
		fmt.Fprintf(os.Stderr, "backup written to %s\n", c.output)
	}
	return subcommands.ExitSuccess
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "replace the whole till state with a backup document" }
func (*importCmd) Usage() string {
	return `posctl import <file>

  Requires an ADMIN user. Everything on the server is replaced.
`
}
func (*importCmd) SetFlags(*flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	defer file.Close()

	resp, err := newClient().send(ctx, http.MethodPost, "/api/backup", file)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	var res backup.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "imported v%s: %d products, %d variants, %d shifts, %d sales, %d expenses, %d returns\n",
		res.Version, res.Products, res.Variants, res.Shifts, res.Sales, res.Expenses, res.Returns)
	if res.Repaired > 0 {
		fmt.Fprintf(stdout, "closed %d extra open shifts\n", res.Repaired)
	}
	return subcommands.ExitSuccess
}
