// Package renderer formats tax outcomes as markdown.
package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/etnz/cgt"
	"github.com/etnz/cgt/fx"
	"github.com/etnz/cgt/session"
)

// Report renders the per tax year outcome of a snapshot.
func Report(snap session.Snapshot) string {
	var b strings.Builder
	fmt.Fprint(&b, "# UK Capital Gains Tax Report\n\n")
	fmt.Fprintf(&b, "Exchange rates: %s\n\n", snap.Strategy)
	if len(snap.TaxYears) == 0 {
		fmt.Fprint(&b, "No taxable event.\n\n")
	}
	b.WriteString(TaxYears(snap.TaxYears))
	b.WriteString(Income(snap.TaxYears))
	b.WriteString(Unresolved(snap.Failures))
	b.WriteString(Issues(snap.Issues))
	return b.String()
}

// TaxYears renders the capital gains of each year.
func TaxYears(years []cgt.TaxYearSummary) string {
	var b strings.Builder
	ConditionalBlock(&b, func(w io.Writer) bool {
		fmt.Fprint(w, "## Capital Gains\n\n")
		fmt.Fprintln(w, "| Tax Year | Disposals | Gains | Losses | Net Gain | Exempt Amount | Losses Used | Chargeable Gain | Losses Carried Forward |")
		fmt.Fprintln(w, "|:---|---:|---:|---:|---:|---:|---:|---:|---:|")
		rows := 0
		for _, y := range years {
			if y.Disposals == 0 && y.LossesBroughtForward.IsZero() {
				continue
			}
			rows++
			disposals := fmt.Sprint(y.Disposals)
			if y.Underfunded > 0 {
				disposals = fmt.Sprintf("%d (%d underfunded)", y.Disposals, y.Underfunded)
			}
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s | %s | **%s** | %s |\n",
				y.Label(), disposals, gbp(y.Gains), gbp(y.Losses), gbp(y.NetGain),
				gbp(y.AnnualExemptAmount), gbp(y.LossesUsed), gbp(y.ChargeableGain), gbp(y.LossesCarriedForward))
		}
		fmt.Fprintln(w)
		return rows > 0
	})
	return b.String()
}

// Income renders dividends, interest, fees and other taxes of each year.
func Income(years []cgt.TaxYearSummary) string {
	var b strings.Builder
	ConditionalBlock(&b, func(w io.Writer) bool {
		fmt.Fprint(w, "## Dividends\n\n")
		fmt.Fprintln(w, "| Tax Year | Payments | Gross | Withholding | Net | Allowance | Taxable |")
		fmt.Fprintln(w, "|:---|---:|---:|---:|---:|---:|---:|")
		rows := 0
		for _, y := range years {
			d := y.Dividends
			if d.Count == 0 && d.Withholding.IsZero() {
				continue
			}
			rows++
			fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | **%s** |\n",
				y.Label(), d.Count, gbp(d.Gross), gbp(d.Withholding), gbp(d.Net), gbp(d.Allowance), gbp(d.Taxable))
		}
		fmt.Fprintln(w)
		return rows > 0
	})
	ConditionalBlock(&b, func(w io.Writer) bool {
		fmt.Fprint(w, "## Interest, Fees and Taxes\n\n")
		fmt.Fprintln(w, "| Tax Year | Interest | Fees | Other Taxes |")
		fmt.Fprintln(w, "|:---|---:|---:|---:|")
		rows := 0
		for _, y := range years {
			if y.Interest.IsZero() && y.Fees.IsZero() && y.OtherTax.IsZero() {
				continue
			}
			rows++
			fmt.Fprintf(w, "| %s | %s | %s | %s |\n", y.Label(), gbp(y.Interest), gbp(y.Fees), gbp(y.OtherTax))
		}
		fmt.Fprintln(w)
		return rows > 0
	})
	return b.String()
}

// Unresolved lists the transactions left out for lack of an exchange rate.
func Unresolved(failures []fx.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprint(&b, "## Unresolved Transactions\n\n")
	fmt.Fprintf(&b, "%d transactions have no exchange rate and are left out of the figures above.\n\n", len(failures))
	fmt.Fprintln(&b, "| Transaction | Date | Kind | Currency | Reason |")
	fmt.Fprintln(&b, "|:---|:---|:---|:---|:---|")
	for _, f := range failures {
		tx := f.Transaction
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", tx.ID, tx.Date, tx.Kind, tx.Currency, escape(f.Err.Error()))
	}
	fmt.Fprintln(&b)
	return b.String()
}

// Issues lists the data problems found while matching.
func Issues(issues []cgt.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprint(&b, "## Data Issues\n\n")
	fmt.Fprintln(&b, "| Transaction | Asset | Problem |")
	fmt.Fprintln(&b, "|:---|:---|:---|")
	for _, i := range issues {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", i.TransactionID, i.Asset, escape(i.Err.Error()))
	}
	fmt.Fprintln(&b)
	return b.String()
}

func escape(s string) string { return strings.ReplaceAll(s, "|", `\|`) }
