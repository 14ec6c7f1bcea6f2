package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/cgt"
)

// Disposals renders each disposal with the share matched by every rule.
func Disposals(title string, disposals []cgt.Disposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(disposals) == 0 {
		fmt.Fprint(&b, "No disposal.\n")
		return b.String()
	}

	fmt.Fprintln(&b, "| Date | Asset | Quantity | Proceeds | Same Day | 30 Day | Pool | Fee | Cost | Gain | Notes |")
	fmt.Fprintln(&b, "|:---|:---|---:|---:|---:|---:|---:|---:|---:|---:|:---|")
	total := cgt.M(0, cgt.GBP)
	for _, d := range disposals {
		var notes []string
		if d.Short {
			notes = append(notes, "short")
		}
		if d.Underfunded {
			notes = append(notes, fmt.Sprintf("underfunded by %s", d.Unfunded))
		}
		if !d.ShortCoverCost.IsZero() {
			notes = append(notes, fmt.Sprintf("covered later for %s", gbp(d.ShortCoverCost)))
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			d.Date, d.Asset, d.Quantity, gbp(d.Proceeds),
			part(d.SameDay, d.SameDayCost), part(d.ThirtyDay, d.ThirtyDayCost), part(d.Pool, d.PoolCost),
			gbp(d.Fee), gbp(d.Cost()), d.Gain().Round().SignedString(), strings.Join(notes, ", "))
		total = total.Add(d.Gain())
	}
	fmt.Fprintf(&b, "| **Total** | | | | | | | | | **%s** | |\n\n", total.Round().SignedString())
	return b.String()
}

// Pools renders the Section 104 holdings.
func Pools(pools []cgt.Pool) string {
	var b strings.Builder
	fmt.Fprint(&b, "# Section 104 Pools\n\n")
	if len(pools) == 0 {
		fmt.Fprint(&b, "No holding.\n")
		return b.String()
	}
	fmt.Fprintln(&b, "| Asset | Quantity | Cost | Average Cost | Notes |")
	fmt.Fprintln(&b, "|:---|---:|---:|---:|:---|")
	for _, p := range pools {
		notes := ""
		if p.Short {
			notes = "open short"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", p.Asset, p.Quantity, gbp(p.Cost), gbp(p.AverageCost()), notes)
	}
	fmt.Fprintln(&b)
	return b.String()
}

// SA106 renders the foreign income figures of each year.
func SA106(years []cgt.TaxYearSummary) string {
	var b strings.Builder
	fmt.Fprint(&b, "# SA106 Foreign Income\n\n")
	rows := 0
	for _, y := range years {
		if y.SA106 == nil {
			continue
		}
		if rows == 0 {
			fmt.Fprintln(&b, "| Tax Year | Gross Dividends | Foreign Tax Paid | Net |")
			fmt.Fprintln(&b, "|:---|---:|---:|---:|")
		}
		rows++
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", y.Label(), gbp(y.SA106.Gross), gbp(y.SA106.Withholding), gbp(y.SA106.Net))
	}
	if rows == 0 {
		fmt.Fprint(&b, "No foreign dividend.\n")
		return b.String()
	}
	fmt.Fprintln(&b)
	return b.String()
}
