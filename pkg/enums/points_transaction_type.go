package enums

import "fmt"

// PointsTransactionType classifies an entry in the points ledger.
type PointsTransactionType string

const (
	PointsTransactionCharge PointsTransactionType = "charge"
	PointsTransactionDeduct PointsTransactionType = "deduct"
	PointsTransactionRefund PointsTransactionType = "refund"
)

var validPointsTransactionTypes = []PointsTransactionType{
	PointsTransactionCharge,
	PointsTransactionDeduct,
	PointsTransactionRefund,
}

// String implements fmt.Stringer.
func (t PointsTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PointsTransactionType.
func (t PointsTransactionType) IsValid() bool {
	for _, candidate := range validPointsTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Sign returns +1 for credits and -1 for debits.
func (t PointsTransactionType) Sign() int {
	if t == PointsTransactionDeduct {
		return -1
	}
	return 1
}

// ParsePointsTransactionType converts raw input into a PointsTransactionType.
func ParsePointsTransactionType(value string) (PointsTransactionType, error) {
	for _, candidate := range validPointsTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid points transaction type %q", value)
}
