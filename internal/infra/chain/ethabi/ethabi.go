// Package ethabi adapts go-ethereum's ABI codec to the chain boundary.
//
// Call arguments are accepted in the loose shapes callers hold: hex strings or
// domain addresses for address, machine integers or decimal strings for
// (u)intN. Decoded arguments come back as plain values: addresses as
// lower-case hex strings, hashes as hex strings, integers as *big.Int.
package ethabi

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidArgument is returned when a value does not fit its ABI type.
var ErrInvalidArgument = errors.New("invalid abi argument")

var (
	bigIntType     = reflect.TypeOf(&big.Int{})
	revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
)

// Pack encodes a call to m: selector followed by the arguments.
func Pack(m abi.Method, args ...any) ([]byte, error) {
	values, err := coerceAll(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	body, err := m.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	return append(slices.Clone(m.ID), body...), nil
}

// PackOutputs encodes return values the way a node returns them from eth_call.
func PackOutputs(m abi.Method, values ...any) ([]byte, error) {
	coerced, err := coerceAll(m.Outputs, values)
	if err != nil {
		return nil, fmt.Errorf("%s outputs: %w", m.Name, err)
	}
	return m.Outputs.Pack(coerced...)
}

// DecodeLog decodes the indexed arguments from topics[1:] and the rest from
// data. Decoding is best effort: arguments that fail are left out of the
// returned map and reported in the joined error.
func DecodeLog(ev abi.Event, topics []common.Hash, data []byte) (map[string]any, error) {
	args := make(map[string]any, len(ev.Inputs))
	var errs []error

	indexed := topics
	if !ev.Anonymous && len(indexed) > 0 {
		indexed = indexed[1:]
	}
	i := 0
	for _, in := range ev.Inputs {
		if !in.Indexed {
			continue
		}
		if i >= len(indexed) {
			errs = append(errs, fmt.Errorf("%s: missing topic for %s", ev.Name, in.Name))
			continue
		}
		one := make(map[string]any, 1)
		if err := abi.ParseTopicsIntoMap(one, abi.Arguments{in}, indexed[i:i+1]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", ev.Name, in.Name, err))
		} else {
			args[in.Name] = plain(one[in.Name])
		}
		i++
	}

	values := make(map[string]any)
	if err := ev.Inputs.UnpackIntoMap(values, data); err != nil {
		errs = append(errs, fmt.Errorf("%s: data: %w", ev.Name, err))
	}
	for k, v := range values {
		args[k] = plain(v)
	}
	return args, errors.Join(errs...)
}

// EncodeLog is the inverse of DecodeLog. It returns topics, including
// topic0, and data for argument values keyed by parameter name.
func EncodeLog(ev abi.Event, args map[string]any) ([]common.Hash, []byte, error) {
	topics := []common.Hash{ev.ID}
	var data []any
	for _, in := range ev.Inputs {
		v, err := coerce(in.Type, args[in.Name])
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", ev.Name, in.Name, err)
		}
		if !in.Indexed {
			data = append(data, v)
			continue
		}
		rules, err := abi.MakeTopics([]any{v})
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", ev.Name, in.Name, err)
		}
		topics = append(topics, rules[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ev.Name, err)
	}
	return topics, packed, nil
}

// DecodeRevert extracts the message from Error(string) revert data.
func DecodeRevert(data []byte) (string, bool) {
	msg, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return msg, true
}

// EncodeRevert builds Error(string) revert data for msg.
func EncodeRevert(msg string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	body, _ := abi.Arguments{{Type: stringType}}.Pack(msg)
	return append(slices.Clone(revertSelector), body...)
}

// ToBigInt converts the integer-like values LogSources and callers produce.
func ToBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return big.NewInt(int64(n)), nil
	case string:
		return parseIntString(n)
	case fmt.Stringer:
		return parseIntString(n.String())
	}
	return nil, fmt.Errorf("unsupported integer value %T", v)
}

func parseIntString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return n, nil
		}
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func coerceAll(params abi.Arguments, values []any) ([]any, error) {
	if len(values) != len(params) {
		return nil, fmt.Errorf("expected %d values, got %d", len(params), len(values))
	}
	out := make([]any, len(values))
	for i, p := range params {
		v, err := coerce(p.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// coerce converts v to the Go type go-ethereum packs for t. Types outside
// the elementary ones are passed through for the codec to check.
func coerce(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if a, ok := v.(common.Address); ok {
			return a, nil
		}
		s, ok := asString(v)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: address %v", ErrInvalidArgument, v)
		}
		return common.HexToAddress(s), nil
	case abi.UintTy, abi.IntTy:
		n, err := ToBigInt(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, t, err)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("%w: %s: negative value %s", ErrInvalidArgument, t, n)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("%w: %s: overflow", ErrInvalidArgument, t)
		}
		typ := t.GetType()
		if typ == bigIntType {
			return n, nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(typ).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(typ).Interface(), nil
	case abi.BoolTy:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: bool %T", ErrInvalidArgument, v)
		}
		return b, nil
	case abi.StringTy:
		s, ok := asString(v)
		if !ok {
			return nil, fmt.Errorf("%w: string %T", ErrInvalidArgument, v)
		}
		return s, nil
	case abi.BytesTy:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			raw, err := hexutil.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("%w: bytes: %v", ErrInvalidArgument, err)
			}
			return raw, nil
		}
		return nil, fmt.Errorf("%w: bytes %T", ErrInvalidArgument, v)
	}
	return v, nil
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}

// plain maps go-ethereum's decoded values to the shapes the normalizer reads.
func plain(v any) any {
	switch val := v.(type) {
	case common.Address:
		return strings.ToLower(val.Hex())
	case common.Hash:
		return val.Hex()
	}
	return v
}
