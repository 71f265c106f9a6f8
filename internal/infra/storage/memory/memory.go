// Package memory provides an in-process chain that automines every write.
// It simulates the job board, bank and counter contracts and implements
// chain.Backend, so a session can run without a node.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
)

var (
	// ErrUnknownContract is returned for calls to an address with no simulated contract.
	ErrUnknownContract = errors.New("no contract at address")
	// ErrUnknownFunction is returned for a function the contract does not implement.
	ErrUnknownFunction = errors.New("function not implemented")
	// ErrInsufficientFunds is returned when the sender cannot cover the value sent.
	ErrInsufficientFunds = errors.New("insufficient funds for value")
	// ErrUnknownSender is returned when a write has no usable from address.
	ErrUnknownSender = errors.New("unknown sender")
	// ErrUnknownTransaction is returned when waiting for a hash never submitted.
	ErrUnknownTransaction = errors.New("unknown transaction")
)

// InitialEther is the balance every account starts with, in wei.
var InitialEther = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))

type logEntry struct {
	contract    domain.Address
	topics      []common.Hash
	data        []byte
	blockNumber uint64
	logIndex    uint64
	txHash      string
}

type tx struct {
	hash    string
	req     chain.WriteRequest
	receipt chain.Receipt
	mined   chan struct{}
}

// call is the execution context of one write.
type call struct {
	from  domain.Address
	value *big.Int
	args  []any
	logs  []emitted
}

type emitted struct {
	event abi.Event
	args  map[string]any
}

func (c *call) emit(ev abi.Event, args map[string]any) {
	c.logs = append(c.logs, emitted{event: ev, args: args})
}

// revert aborts a call with a reason; state must not have been touched yet.
func revert(reason string) error {
	return &chain.RevertError{Reason: reason}
}

type handler func(c *call) error

// Chain is a single-node simulated chain. The zero value is not usable; use New.
type Chain struct {
	addrs contracts.Addresses
	log   *logger.Logger

	mu       sync.Mutex
	automine bool
	head     uint64
	logs     []logEntry
	txs      map[string]*tx
	pending  []*tx
	ether    map[domain.Address]*big.Int
	writes   map[domain.Address]map[string]handler
	reads    map[domain.Address]map[string]func(args []any) any
	jobBoard *jobBoard
	bank     map[domain.Address]*big.Int
	number   *big.Int
}

var _ chain.Backend = (*Chain)(nil)

// New creates a chain with the contracts of addrs deployed at genesis.
// Contracts with an unknown address are not deployed.
func New(addrs contracts.Addresses) *Chain {
	c := &Chain{
		addrs:    addrs,
		log:      logger.Default().With("component", "memory-chain"),
		automine: true,
		txs:      make(map[string]*tx),
		ether:    make(map[domain.Address]*big.Int),
		writes:   make(map[domain.Address]map[string]handler),
		reads:    make(map[domain.Address]map[string]func(args []any) any),
		jobBoard: &jobBoard{},
		bank:     make(map[domain.Address]*big.Int),
		number:   new(big.Int),
	}
	if addrs.Jobs.IsKnown() {
		c.deployJobs()
	}
	if addrs.Bank.IsKnown() {
		c.deployBank()
	}
	if addrs.Storage.IsKnown() {
		c.deployStorage()
	}
	return c
}

// SetAutomine switches between mining on every submit and mining on Mine.
func (c *Chain) SetAutomine(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.automine = on
}

// Mine includes every pending transaction in one new block.
func (c *Chain) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mineLocked()
	return c.head
}

// EtherBalance returns the native balance of account in wei.
func (c *Chain) EtherBalance(account domain.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.etherLocked(account))
}

func (c *Chain) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

// Logs returns the decoded logs of one event in ascending order.
func (c *Chain) Logs(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
	ev := q.Event

	c.mu.Lock()
	defer c.mu.Unlock()

	to := c.head
	if q.ToBlock != nil && *q.ToBlock < to {
		to = *q.ToBlock
	}
	var out []chain.RawLog
	for _, l := range c.logs {
		if l.contract != q.Contract || l.topics[0] != ev.ID {
			continue
		}
		if l.blockNumber < q.FromBlock || l.blockNumber > to {
			continue
		}
		args, err := ethabi.DecodeLog(ev, l.topics, l.data)
		if err != nil {
			c.log.Debug("partial log decode", "event", ev.Name, "tx", l.txHash, "error", err)
		}
		out = append(out, chain.RawLog{
			Args:        args,
			BlockNumber: l.blockNumber,
			LogIndex:    l.logIndex,
			TxHash:      l.txHash,
		})
	}
	return out, nil
}

// Read executes a view function against current state.
func (c *Chain) Read(ctx context.Context, req chain.ReadRequest) (any, error) {
	fn := req.Method
	args, err := roundTrip(fn, req.Args)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	reads, ok := c.reads[req.Contract]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, req.Contract)
	}
	view, ok := reads[fn.Name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fn.Sig)
	}
	result := view(args)
	c.mu.Unlock()

	out, err := ethabi.PackOutputs(fn, result)
	if err != nil {
		return nil, err
	}
	values, err := fn.Outputs.Unpack(out)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// roundTrip encodes args as calldata for fn and decodes them back, so
// handlers see exactly what a contract would.
func roundTrip(fn abi.Method, args []any) ([]any, error) {
	calldata, err := ethabi.Pack(fn, args...)
	if err != nil {
		return nil, err
	}
	return fn.Inputs.Unpack(calldata[len(fn.ID):])
}

// Submit queues a write and, with automine on, mines it at once. The returned
// hash is always mined eventually; a revert shows up in its receipt.
func (c *Chain) Submit(ctx context.Context, req chain.WriteRequest) (string, error) {
	if !req.From.IsKnown() {
		return "", ErrUnknownSender
	}
	if _, err := ethabi.Pack(req.Method, req.Args...); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.writes[req.Contract]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownContract, req.Contract)
	}
	if req.Value != nil && req.Value.Cmp(c.etherLocked(req.From)) > 0 {
		return "", ErrInsufficientFunds
	}

	t := &tx{hash: newHash(), req: req, mined: make(chan struct{})}
	c.txs[t.hash] = t
	c.pending = append(c.pending, t)
	if c.automine {
		c.mineLocked()
	}
	return t.hash, nil
}

// WaitReceipt blocks until hash is mined.
func (c *Chain) WaitReceipt(ctx context.Context, hash string) (chain.Receipt, error) {
	c.mu.Lock()
	t, ok := c.txs[hash]
	c.mu.Unlock()
	if !ok {
		return chain.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	select {
	case <-t.mined:
		return t.receipt, nil
	case <-ctx.Done():
		return chain.Receipt{}, ctx.Err()
	}
}

func (c *Chain) mineLocked() {
	if len(c.pending) == 0 {
		return
	}
	c.head++
	var logIndex uint64
	for _, t := range c.pending {
		t.receipt = chain.Receipt{Hash: t.hash, BlockNumber: c.head}
		logs, err := c.executeLocked(t.req)
		if err != nil {
			var rev *chain.RevertError
			if errors.As(err, &rev) {
				t.receipt.Reason = rev.Reason
			} else {
				t.receipt.Reason = err.Error()
			}
			c.log.Debug("transaction reverted", "hash", t.hash, "reason", t.receipt.Reason)
		} else {
			t.receipt.Success = true
			for _, e := range logs {
				topics, data, err := ethabi.EncodeLog(e.event, e.args)
				if err != nil {
					c.log.Error("encode log", "event", e.event.Name, "error", err)
					continue
				}
				c.logs = append(c.logs, logEntry{
					contract:    t.req.Contract,
					topics:      topics,
					data:        data,
					blockNumber: c.head,
					logIndex:    logIndex,
					txHash:      t.hash,
				})
				logIndex++
			}
		}
		close(t.mined)
	}
	c.pending = nil
}

func (c *Chain) executeLocked(req chain.WriteRequest) ([]emitted, error) {
	fn := req.Method
	h, ok := c.writes[req.Contract][fn.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fn.Sig)
	}
	args, err := roundTrip(fn, req.Args)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	if value.Sign() > 0 && !fn.IsPayable() {
		return nil, revert("")
	}
	if value.Cmp(c.etherLocked(req.From)) > 0 {
		return nil, ErrInsufficientFunds
	}

	cl := &call{from: req.From, value: value, args: args}
	if err := h(cl); err != nil {
		return nil, err
	}
	// Value moves to the contract only on success.
	c.etherLocked(req.From).Sub(c.etherLocked(req.From), value)
	c.etherLocked(req.Contract).Add(c.etherLocked(req.Contract), value)
	return cl.logs, nil
}

func (c *Chain) etherLocked(account domain.Address) *big.Int {
	b, ok := c.ether[account]
	if !ok {
		b = new(big.Int).Set(InitialEther)
		c.ether[account] = b
	}
	return b
}

func (c *Chain) register(contract domain.Address, fn abi.Method, h handler) {
	if c.writes[contract] == nil {
		c.writes[contract] = make(map[string]handler)
	}
	c.writes[contract][fn.Name] = h
}

func (c *Chain) registerView(contract domain.Address, fn abi.Method, view func(args []any) any) {
	if c.reads[contract] == nil {
		c.reads[contract] = make(map[string]func(args []any) any)
	}
	c.reads[contract][fn.Name] = view
}

// newHash derives a transaction hash from a random UUID.
func newHash() string {
	id := uuid.New()
	return crypto.Keccak256Hash(id[:]).Hex()
}
