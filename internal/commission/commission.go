// Package commission computes the brokerage split of a settled sale.
package commission

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/medstock/medstock-backend/pkg/errors"
)

// Rate is the fixed brokerage fee charged on every transaction total.
var Rate = decimal.RequireFromString("0.05")

// centPlaces is the precision currency amounts are rounded to.
const centPlaces = 2

// Split is the result of applying the brokerage rate to a transaction total.
type Split struct {
	Total      decimal.Decimal
	Commission decimal.Decimal
	SellerNet  decimal.Decimal
}

// Compute applies Rate to total, rounding the commission half-up to the cent.
// The seller keeps the remainder, so Commission + SellerNet == Total exactly.
func Compute(total decimal.Decimal) (Split, error) {
	if total.IsNegative() {
		return Split{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction total must not be negative").
			WithDetails(map[string]any{"total": total.StringFixed(centPlaces)})
	}
	total = total.Round(centPlaces)
	fee := total.Mul(Rate).Round(centPlaces)
	return Split{
		Total:      total,
		Commission: fee,
		SellerNet:  total.Sub(fee),
	}, nil
}

// PointsRequired is the number of whole points a seller pays to reveal the
// buyer behind a settlement with the given commission. Commissions are rounded
// half-up and never cost less than one point.
func PointsRequired(commission decimal.Decimal) decimal.Decimal {
	points := commission.Round(0)
	if points.LessThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return points
}
