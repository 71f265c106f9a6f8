package memory

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
)

type job struct {
	author      domain.Address
	description string
	price       *big.Int
	worker      domain.Address
	finished    bool
}

type jobBoard struct {
	jobs []*job
}

func (b *jobBoard) get(id *big.Int) (*job, bool) {
	if !id.IsUint64() || id.Uint64() >= uint64(len(b.jobs)) {
		return nil, false
	}
	return b.jobs[id.Uint64()], true
}

func (c *Chain) deployJobs() {
	jobs := c.addrs.Jobs

	c.register(jobs, contracts.FnAddJob, func(cl *call) error {
		if cl.value.Sign() == 0 {
			return revert("Price must be greater than 0")
		}
		id := big.NewInt(int64(len(c.jobBoard.jobs)))
		description := cl.args[0].(string)
		c.jobBoard.jobs = append(c.jobBoard.jobs, &job{
			author:      cl.from,
			description: description,
			price:       new(big.Int).Set(cl.value),
		})
		cl.emit(contracts.EventJobAdded, map[string]any{
			"author":      cl.from,
			"description": description,
			"price":       cl.value,
			"id":          id,
			"isFinished":  false,
		})
		return nil
	})

	c.register(jobs, contracts.FnTakeJob, func(cl *call) error {
		id := cl.args[0].(*big.Int)
		j, ok := c.jobBoard.get(id)
		switch {
		case !ok:
			return revert("Job does not exist")
		case j.author == cl.from:
			return revert("You cannot take your own job")
		case j.worker.IsKnown():
			return revert("Job already taken")
		}
		j.worker = cl.from
		cl.emit(contracts.EventJobTaken, map[string]any{"worker": cl.from, "id": id})
		return nil
	})

	c.register(jobs, contracts.FnFinishJob, func(cl *call) error {
		id := cl.args[0].(*big.Int)
		j, ok := c.jobBoard.get(id)
		switch {
		case !ok:
			return revert("Job does not exist")
		case j.author != cl.from:
			return revert("You are not the author of the job")
		case !j.worker.IsKnown():
			return revert("Job is not taken")
		case j.finished:
			return revert("Job already finished")
		}
		j.finished = true
		c.etherLocked(jobs).Sub(c.etherLocked(jobs), j.price)
		c.etherLocked(j.worker).Add(c.etherLocked(j.worker), j.price)
		cl.emit(contracts.EventJobFinished, map[string]any{
			"author":    j.author,
			"worker":    j.worker,
			"id":        id,
			"pricePaid": j.price,
		})
		return nil
	})
}

func (c *Chain) deployBank() {
	bank := c.addrs.Bank

	c.register(bank, contracts.FnDeposit, func(cl *call) error {
		if cl.value.Sign() == 0 {
			return revert("not enough funds provided")
		}
		c.bankBalance(cl.from).Add(c.bankBalance(cl.from), cl.value)
		cl.emit(contracts.EventDeposited, map[string]any{"account": cl.from, "amount": cl.value})
		return nil
	})

	c.register(bank, contracts.FnWithdraw, func(cl *call) error {
		amount := cl.args[0].(*big.Int)
		balance := c.bankBalance(cl.from)
		if amount.Cmp(balance) > 0 {
			return revert("you cannot withdraw more than you have")
		}
		balance.Sub(balance, amount)
		c.etherLocked(bank).Sub(c.etherLocked(bank), amount)
		c.etherLocked(cl.from).Add(c.etherLocked(cl.from), amount)
		cl.emit(contracts.EventWithdrawn, map[string]any{"account": cl.from, "amount": amount})
		return nil
	})

	c.registerView(bank, contracts.FnBalanceOf, func(args []any) any {
		account := domain.NormalizeAddress(args[0].(common.Address).Hex())
		return new(big.Int).Set(c.bankBalance(account))
	})
}

func (c *Chain) bankBalance(account domain.Address) *big.Int {
	b, ok := c.bank[account]
	if !ok {
		b = new(big.Int)
		c.bank[account] = b
	}
	return b
}

func (c *Chain) deployStorage() {
	storage := c.addrs.Storage

	c.register(storage, contracts.FnSetNumber, func(cl *call) error {
		n := cl.args[0].(*big.Int)
		c.number = new(big.Int).Set(n)
		cl.emit(contracts.EventNumberSet, map[string]any{"by": cl.from, "number": n})
		return nil
	})

	c.registerView(storage, contracts.FnGetNumber, func(args []any) any {
		return new(big.Int).Set(c.number)
	})
}
