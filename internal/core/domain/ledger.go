package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// weiExponent converts wei to ether.
const weiExponent = -18

// LedgerEntry is one deposit or withdrawal from the bank contract log.
// Entries are history only; balances come from authoritative reads.
type LedgerEntry struct {
	Account      Address  `json:"account"`
	SignedAmount *big.Int `json:"signed_amount"` // positive = deposit, negative = withdrawal
	BlockNumber  uint64   `json:"block_number"`
	LogIndex     uint64   `json:"log_index"`
	TxHash       string   `json:"tx_hash"`
}

// IsDeposit reports whether the entry credits the account.
func (e LedgerEntry) IsDeposit() bool {
	return e.SignedAmount != nil && e.SignedAmount.Sign() >= 0
}

// Position returns the chain order key of the entry.
func (e LedgerEntry) Position() Position {
	return Position{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// Ether renders the signed amount in ether with four decimals, e.g. "+1.5000".
func (e LedgerEntry) Ether() string {
	s := FormatEther(e.SignedAmount)
	if e.IsDeposit() {
		return "+" + s
	}
	return s
}

// FormatEther renders a wei amount in ether with four decimals.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	return decimal.NewFromBigInt(wei, weiExponent).StringFixed(4)
}

// ParseEther converts a decimal ether string to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(-weiExponent).Truncate(0).BigInt(), nil
}

// CounterChange is one NumberChanged log from the storage contract.
type CounterChange struct {
	By          Address  `json:"by"`
	Value       *big.Int `json:"value"`
	BlockNumber uint64   `json:"block_number"`
	LogIndex    uint64   `json:"log_index"`
	TxHash      string   `json:"tx_hash"`
}
