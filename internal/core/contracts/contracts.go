// Package contracts is the catalogue of the job board, bank and counter
// contracts: event and function definitions plus request builders.
package contracts

import (
	"embed"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/chain"
)

//go:embed abi/*.json
var abiFS embed.FS

// Contract ABIs.
var (
	JobsABI    = mustLoad("abi/jobs.json")
	BankABI    = mustLoad("abi/bank.json")
	StorageABI = mustLoad("abi/storage.json")
)

// Events.
var (
	EventJobAdded    = JobsABI.Events["jobAdded"]
	EventJobTaken    = JobsABI.Events["jobTaken"]
	EventJobFinished = JobsABI.Events["jobIsFinishedAndPaid"]
	EventDeposited   = BankABI.Events["etherDeposited"]
	EventWithdrawn   = BankABI.Events["etherWithdrawn"]
	EventNumberSet   = StorageABI.Events["NumberChanged"]
)

// Methods.
var (
	FnAddJob    = JobsABI.Methods["addJob"]
	FnTakeJob   = JobsABI.Methods["takeJob"]
	FnFinishJob = JobsABI.Methods["setIsFinishedAndPay"]
	FnDeposit   = BankABI.Methods["deposit"]
	FnWithdraw  = BankABI.Methods["withdraw"]
	FnBalanceOf = BankABI.Methods["getBalanceOfUser"]
	FnSetNumber = StorageABI.Methods["setMyNumber"]
	FnGetNumber = StorageABI.Methods["getMyNumber"]
)

func mustLoad(name string) abi.ABI {
	f, err := abiFS.Open(name)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	parsed, err := abi.JSON(f)
	if err != nil {
		panic(name + ": " + err.Error())
	}
	return parsed
}

// Addresses locates the deployed contracts. A zero value disables that contract.
type Addresses struct {
	Jobs    domain.Address
	Bank    domain.Address
	Storage domain.Address
}

// Window bounds the blocks every log query covers. To nil means latest.
type Window struct {
	From uint64
	To   *uint64
}

// Pin returns a copy of w with an open upper bound fixed at head.
func (w Window) Pin(head uint64) Window {
	if w.To != nil {
		return w
	}
	to := head
	return Window{From: w.From, To: &to}
}

// Source pairs an event kind with the query that yields its records.
type Source struct {
	Kind  domain.EventKind
	Query chain.LogQuery
}

// Sources returns one log query per event kind for the configured contracts.
func Sources(a Addresses, w Window) []Source {
	var out []Source
	add := func(contract domain.Address, kind domain.EventKind, ev abi.Event) {
		if !contract.IsKnown() {
			return
		}
		out = append(out, Source{
			Kind: kind,
			Query: chain.LogQuery{
				Contract:  contract,
				Event:     ev,
				FromBlock: w.From,
				ToBlock:   w.To,
			},
		})
	}
	add(a.Jobs, domain.EventKindJobAdded, EventJobAdded)
	add(a.Jobs, domain.EventKindJobTaken, EventJobTaken)
	add(a.Jobs, domain.EventKindJobFinished, EventJobFinished)
	add(a.Bank, domain.EventKindDeposited, EventDeposited)
	add(a.Bank, domain.EventKindWithdrawn, EventWithdrawn)
	add(a.Storage, domain.EventKindNumberChanged, EventNumberSet)
	return out
}

// BalanceOf reads the bank's authoritative balance of account.
func BalanceOf(a Addresses, account domain.Address) chain.ReadRequest {
	return chain.ReadRequest{Contract: a.Bank, Method: FnBalanceOf, Args: []any{account.String()}}
}

// CurrentNumber reads the counter's stored value.
func CurrentNumber(a Addresses) chain.ReadRequest {
	return chain.ReadRequest{Contract: a.Storage, Method: FnGetNumber}
}

// AddJob posts a job paying price wei.
func AddJob(a Addresses, description string, price *big.Int) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Jobs, Method: FnAddJob, Args: []any{description}, Value: price}
}

func TakeJob(a Addresses, id uint64) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Jobs, Method: FnTakeJob, Args: []any{id}}
}

func FinishJob(a Addresses, id uint64) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Jobs, Method: FnFinishJob, Args: []any{id}}
}

func Deposit(a Addresses, amount *big.Int) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Bank, Method: FnDeposit, Value: amount}
}

func Withdraw(a Addresses, amount *big.Int) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Bank, Method: FnWithdraw, Args: []any{amount}}
}

func SetNumber(a Addresses, n *big.Int) chain.WriteRequest {
	return chain.WriteRequest{Contract: a.Storage, Method: FnSetNumber, Args: []any{n}}
}
