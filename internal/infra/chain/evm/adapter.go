package evm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
	"github.com/vietddude/dappwatch/internal/infra/rpc"
)

// RPCClient is the subset of rpc.Client the adapter needs.
type RPCClient interface {
	// Call is retried and may fail over between providers.
	Call(ctx context.Context, method string, params []any) (any, error)
	// CallOnce makes a single attempt; used for eth_sendTransaction.
	CallOnce(ctx context.Context, method string, params []any) (any, error)
}

// EVMAdapter implements chain.Backend over Ethereum JSON-RPC.
type EVMAdapter struct {
	client       RPCClient
	pollInterval time.Duration
	log          *logger.Logger
}

var _ chain.Backend = (*EVMAdapter)(nil)

func NewEVMAdapter(client RPCClient, pollInterval time.Duration) *EVMAdapter {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &EVMAdapter{
		client:       client,
		pollInterval: pollInterval,
		log:          logger.Default().With("component", "evm"),
	}
}

func (a *EVMAdapter) LatestBlock(ctx context.Context) (uint64, error) {
	result, err := a.client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	blockHex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}
	return parseHexString(blockHex)
}

// Logs fetches and decodes the logs of one event. Arguments that fail to
// decode are left out of RawLog.Args so normalization can default them.
func (a *EVMAdapter) Logs(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
	ev := q.Event
	toBlock := "latest"
	if q.ToBlock != nil {
		toBlock = toHex(*q.ToBlock)
	}
	filter := map[string]any{
		"address":   q.Contract.String(),
		"topics":    []any{ev.ID.Hex()},
		"fromBlock": toHex(q.FromBlock),
		"toBlock":   toBlock,
	}

	result, err := a.client.Call(ctx, "eth_getLogs", []any{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs %s failed: %w", ev.Name, err)
	}
	if result == nil {
		return nil, nil
	}
	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid eth_getLogs response")
	}

	logs := make([]chain.RawLog, 0, len(rawLogs))
	for _, item := range rawLogs {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if removed, _ := raw["removed"].(bool); removed {
			continue
		}
		log, err := a.parseLog(ev, raw)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	slices.SortStableFunc(logs, func(x, y chain.RawLog) int {
		if x.BlockNumber != y.BlockNumber {
			return cmpUint(x.BlockNumber, y.BlockNumber)
		}
		return cmpUint(x.LogIndex, y.LogIndex)
	})
	return logs, nil
}

func (a *EVMAdapter) parseLog(ev abi.Event, raw map[string]any) (chain.RawLog, error) {
	blockNumber, err := parseHexString(getString(raw["blockNumber"]))
	if err != nil {
		return chain.RawLog{}, fmt.Errorf("log block number: %w", err)
	}
	logIndex, err := parseHexString(getString(raw["logIndex"]))
	if err != nil {
		return chain.RawLog{}, fmt.Errorf("log index: %w", err)
	}

	var topics []common.Hash
	if rawTopics, ok := raw["topics"].([]any); ok {
		for _, t := range rawTopics {
			topics = append(topics, common.HexToHash(getString(t)))
		}
	}
	data := common.FromHex(getString(raw["data"]))

	txHash := getString(raw["transactionHash"])
	args, decodeErr := ethabi.DecodeLog(ev, topics, data)
	if decodeErr != nil {
		a.log.Debug("partial log decode", "event", ev.Name, "tx", txHash, "error", decodeErr)
	}

	return chain.RawLog{
		Args:        args,
		BlockNumber: blockNumber,
		LogIndex:    logIndex,
		TxHash:      txHash,
	}, nil
}

// Read performs eth_call against the latest block. A function with a single
// output returns that value; otherwise the decoded outputs slice.
func (a *EVMAdapter) Read(ctx context.Context, req chain.ReadRequest) (any, error) {
	fn := req.Method
	data, err := ethabi.Pack(fn, req.Args...)
	if err != nil {
		return nil, err
	}

	call := map[string]any{
		"to":   req.Contract.String(),
		"data": hexutil.Encode(data),
	}
	result, err := a.client.Call(ctx, "eth_call", []any{call, "latest"})
	if err != nil {
		if revert := asRevert(err); revert != nil {
			return nil, revert
		}
		return nil, fmt.Errorf("eth_call %s failed: %w", fn.Name, err)
	}

	out, err := hexutil.Decode(getString(result))
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: invalid result: %w", fn.Name, err)
	}
	values, err := fn.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", fn.Name, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// Submit sends the write through the node's unlocked account. It never retries.
func (a *EVMAdapter) Submit(ctx context.Context, req chain.WriteRequest) (string, error) {
	fn := req.Method
	data, err := ethabi.Pack(fn, req.Args...)
	if err != nil {
		return "", err
	}

	tx := map[string]any{
		"from": req.From.String(),
		"to":   req.Contract.String(),
		"data": hexutil.Encode(data),
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		tx["value"] = hexutil.EncodeBig(req.Value)
	}

	result, err := a.client.CallOnce(ctx, "eth_sendTransaction", []any{tx})
	if err != nil {
		if revert := asRevert(err); revert != nil {
			return "", revert
		}
		return "", fmt.Errorf("eth_sendTransaction %s failed: %w", fn.Name, err)
	}
	hash, ok := result.(string)
	if !ok || hash == "" {
		return "", fmt.Errorf("invalid transaction hash response")
	}
	return hash, nil
}

// WaitReceipt polls eth_getTransactionReceipt until the transaction is mined.
func (a *EVMAdapter) WaitReceipt(ctx context.Context, hash string) (chain.Receipt, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		result, err := a.client.Call(ctx, "eth_getTransactionReceipt", []any{hash})
		if err != nil {
			return chain.Receipt{}, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
		}
		if raw, ok := result.(map[string]any); ok {
			return a.parseReceipt(ctx, hash, raw), nil
		}

		select {
		case <-ctx.Done():
			return chain.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *EVMAdapter) parseReceipt(ctx context.Context, hash string, raw map[string]any) chain.Receipt {
	blockNumber, _ := parseHexString(getString(raw["blockNumber"]))
	status, _ := parseHexString(getString(raw["status"]))
	receipt := chain.Receipt{
		Hash:        hash,
		Success:     status == 1,
		BlockNumber: blockNumber,
	}
	if !receipt.Success {
		receipt.Reason = a.replayReason(ctx, hash, blockNumber)
	}
	return receipt
}

// replayReason re-executes a failed transaction with eth_call at its block to
// recover the revert message, which receipts do not carry.
func (a *EVMAdapter) replayReason(ctx context.Context, hash string, blockNumber uint64) string {
	result, err := a.client.Call(ctx, "eth_getTransactionByHash", []any{hash})
	if err != nil {
		return chain.ErrReverted.Error()
	}
	tx, ok := result.(map[string]any)
	if !ok {
		return chain.ErrReverted.Error()
	}
	call := map[string]any{
		"from": getString(tx["from"]),
		"to":   getString(tx["to"]),
		"data": getString(tx["input"]),
	}
	if v := getString(tx["value"]); v != "" && v != "0x0" {
		call["value"] = v
	}
	_, err = a.client.Call(ctx, "eth_call", []any{call, toHex(blockNumber)})
	if revert := asRevert(err); revert != nil && revert.Reason != "" {
		return revert.Reason
	}
	return chain.ErrReverted.Error()
}

// asRevert turns a node-side revert into a *chain.RevertError, preferring the
// Error(string) payload in the error data when present.
func asRevert(err error) *chain.RevertError {
	var rpcErr *rpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	if data, ok := rpcErr.Data.(string); ok {
		if raw, err := hexutil.Decode(data); err == nil {
			if msg, ok := ethabi.DecodeRevert(raw); ok {
				return &chain.RevertError{Reason: msg}
			}
		}
	}
	msg := strings.ToLower(rpcErr.Message)
	if strings.Contains(msg, "revert") || rpcErr.Code == 3 {
		return chain.NewRevertError(rpcErr.Message)
	}
	return nil
}

func toHex(n uint64) string {
	return hexutil.EncodeUint64(n)
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseHexString(hexStr string) (uint64, error) {
	if hexStr == "" {
		return 0, fmt.Errorf("empty hex string")
	}
	return strconv.ParseUint(strings.TrimPrefix(hexStr, "0x"), 16, 64)
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
