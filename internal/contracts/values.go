package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vaultctl/internal/strategy"
)

// AsAddress converts an unpacked value into an address.
func AsAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// AsBigInt converts an unpacked integer into a fresh *big.Int.
func AsBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

// AsBool converts an unpacked bool.
func AsBool(value interface{}) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", value)
	}
	return v, nil
}

// AsHash converts an unpacked bytes32.
func AsHash(value interface{}) (common.Hash, error) {
	switch v := value.(type) {
	case [32]byte:
		return common.Hash(v), nil
	case common.Hash:
		return v, nil
	case []byte:
		if len(v) != common.HashLength {
			return common.Hash{}, fmt.Errorf("bytes32 length %d", len(v))
		}
		return common.BytesToHash(v), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported bytes32 type %T", value)
	}
}

// AsAddresses converts an unpacked address[].
func AsAddresses(value interface{}) ([]common.Address, error) {
	v, ok := value.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unsupported address[] type %T", value)
	}
	out := make([]common.Address, len(v))
	copy(out, v)
	return out, nil
}

// AsSteps converts an unpacked StrategyStep[] tuple array.
func AsSteps(value interface{}) (steps []strategy.Step, err error) {
	if direct, ok := value.([]strategy.Step); ok {
		out := make([]strategy.Step, len(direct))
		copy(out, direct)
		return out, nil
	}
	defer func() {
		if r := recover(); r != nil {
			steps, err = nil, fmt.Errorf("unsupported strategy steps type %T: %v", value, r)
		}
	}()
	converted := *abi.ConvertType(value, new([]strategy.Step)).(*[]strategy.Step)
	return converted, nil
}

// FormatArgs renders call arguments for logs and the action ledger.
func FormatArgs(args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatArg(arg))
	}
	return strings.Join(parts, ", ")
}

func formatArg(arg interface{}) string {
	switch v := arg.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return common.Hash(v).Hex()
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case []common.Address:
		items := make([]string, 0, len(v))
		for _, a := range v {
			items = append(items, a.Hex())
		}
		return "[" + strings.Join(items, " ") + "]"
	case []strategy.Step:
		items := make([]string, 0, len(v))
		for _, s := range v {
			items = append(items, fmt.Sprintf("%s:%s:%t", s.Pool.Hex(), s.OutputToken.Hex(), s.IsBorrow))
		}
		return "[" + strings.Join(items, " ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
