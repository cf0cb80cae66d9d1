package supply

import "math/big"

// WireSnapshot is the JSON document served by the eth-supply-parts endpoint.
// Beacon quantities are Gwei, the execution quantity is Wei, all as decimal strings.
type WireSnapshot struct {
	BeaconBalancesSum struct {
		BalancesSum string `json:"balancesSum"`
		Slot        uint64 `json:"slot"`
	} `json:"beaconBalancesSum"`
	BeaconDepositsSum struct {
		DepositsSum string `json:"depositsSum"`
		Slot        uint64 `json:"slot"`
	} `json:"beaconDepositsSum"`
	ExecutionBalancesSum struct {
		BalancesSum string `json:"balancesSum"`
		BlockNumber uint64 `json:"blockNumber"`
	} `json:"executionBalancesSum"`
}

// Snapshot is a decoded WireSnapshot. Every quantity is an exact Wei amount.
type Snapshot struct {
	BeaconBalancesSum    BeaconBalances
	BeaconDepositsSum    BeaconDeposits
	ExecutionBalancesSum ExecutionBalances
}

type BeaconBalances struct {
	BalancesSum *big.Int
	Slot        uint64
}

type BeaconDeposits struct {
	DepositsSum *big.Int
	Slot        uint64
}

type ExecutionBalances struct {
	BalancesSum *big.Int
	BlockNumber uint64
}

var (
	// WeiPerGwei is 10^9.
	WeiPerGwei = big.NewInt(1_000_000_000)
	// WeiPerEth is 10^18.
	WeiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)
