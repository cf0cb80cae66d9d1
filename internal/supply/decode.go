package supply

import (
	"fmt"
	"math/big"
)

// ParseError reports a snapshot field that is not a non-negative base-10 integer.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: invalid decimal integer %q", e.Field, e.Value)
}

// Decode converts a wire snapshot into exact Wei integers. Gwei fields are
// multiplied by 10^9. Any malformed field aborts the whole decode.
func Decode(w WireSnapshot) (Snapshot, error) {
	beaconBalances, err := parseDecimal("beaconBalancesSum.balancesSum", w.BeaconBalancesSum.BalancesSum)
	if err != nil {
		return Snapshot{}, err
	}
	beaconDeposits, err := parseDecimal("beaconDepositsSum.depositsSum", w.BeaconDepositsSum.DepositsSum)
	if err != nil {
		return Snapshot{}, err
	}
	executionBalances, err := parseDecimal("executionBalancesSum.balancesSum", w.ExecutionBalancesSum.BalancesSum)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		BeaconBalancesSum: BeaconBalances{
			BalancesSum: beaconBalances.Mul(beaconBalances, WeiPerGwei),
			Slot:        w.BeaconBalancesSum.Slot,
		},
		BeaconDepositsSum: BeaconDeposits{
			DepositsSum: beaconDeposits.Mul(beaconDeposits, WeiPerGwei),
			Slot:        w.BeaconDepositsSum.Slot,
		},
		ExecutionBalancesSum: ExecutionBalances{
			BalancesSum: executionBalances,
			BlockNumber: w.ExecutionBalancesSum.BlockNumber,
		},
	}, nil
}

// parseDecimal accepts digits only: big.Int.SetString alone would let a sign through.
func parseDecimal(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, &ParseError{Field: field, Value: s}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, &ParseError{Field: field, Value: s}
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &ParseError{Field: field, Value: s}
	}
	return v, nil
}
