package cgt

import "github.com/etnz/cgt/date"

// step is an amount in force from a tax year until the next step.
type step struct {
	from   date.TaxYear
	amount int64
}

// annualExemptAmounts is the capital gains annual exempt amount by tax year.
var annualExemptAmounts = []step{
	{2011, 10600},
	{2013, 10900},
	{2014, 11000},
	{2015, 11100},
	{2017, 11300},
	{2018, 11700},
	{2019, 12000},
	{2020, 12300},
	{2023, 6000},
	{2024, 3000},
}

// dividendAllowances is the dividend allowance by tax year, none before 2016/17.
var dividendAllowances = []step{
	{2016, 5000},
	{2018, 2000},
	{2023, 1000},
	{2024, 500},
}

// lookup returns the amount in force in y. Years before the first step get
// def, years past the table keep the last known amount.
func lookup(steps []step, y date.TaxYear, def int64) int64 {
	amount := def
	for _, s := range steps {
		if s.from > y {
			break
		}
		amount = s.amount
	}
	return amount
}

// AnnualExemptAmount returns the capital gains annual exempt amount for y.
func AnnualExemptAmount(y date.TaxYear) Money {
	return M(lookup(annualExemptAmounts, y, annualExemptAmounts[0].amount), GBP)
}

// DividendAllowance returns the tax-free dividend allowance for y.
func DividendAllowance(y date.TaxYear) Money {
	return M(lookup(dividendAllowances, y, 0), GBP)
}
