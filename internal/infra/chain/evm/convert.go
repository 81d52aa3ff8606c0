package evm

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

// toABI converts a domain value into the Go type the ABI packer expects for t.
// Tuples accept either an abi-tagged struct or a map keyed by component name.
func toABI(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch a := v.(type) {
		case common.Address:
			return a, nil
		case domain.Address:
			return parseAddr(string(a))
		case string:
			return parseAddr(a)
		}

	case abi.UintTy, abi.IntTy:
		n, ok := snapshot.Big(v)
		if !ok {
			break
		}
		return sizedInt(t, n)

	case abi.BoolTy:
		if b, ok := v.(bool); ok {
			return b, nil
		}

	case abi.StringTy:
		if s, ok := v.(string); ok {
			return s, nil
		}

	case abi.BytesTy:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return hexutil.Decode(b)
		}

	case abi.FixedBytesTy:
		var raw []byte
		switch b := v.(type) {
		case []byte:
			raw = b
		case string:
			d, err := hexutil.Decode(b)
			if err != nil {
				return nil, err
			}
			raw = d
		default:
			return v, nil
		}
		if len(raw) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(raw))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(raw))
		return arr.Interface(), nil

	case abi.TupleTy:
		m, ok := v.(map[string]any)
		if !ok {
			// Structs are packed by the abi package using their abi tags.
			if reflect.ValueOf(v).Kind() == reflect.Struct {
				return v, nil
			}
			break
		}
		s := reflect.New(t.TupleType).Elem()
		for i, name := range t.TupleRawNames {
			fv, err := toABI(*t.TupleElems[i], m[name])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			s.Field(i).Set(reflect.ValueOf(fv))
		}
		return s.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), rv.Len(), rv.Len())
		} else {
			if rv.Len() != t.Size {
				return nil, fmt.Errorf("want %d elements, got %d", t.Size, rv.Len())
			}
			out = reflect.New(t.GetType()).Elem()
		}
		for i := 0; i < rv.Len(); i++ {
			ev, err := toABI(*t.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(ev))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t.String())
}

func parseAddr(s string) (common.Address, error) {
	if !domain.IsValidAddress(s) || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

var bigIntType = reflect.TypeOf(&big.Int{})

// sizedInt returns n as the exact Go type the packer wants: *big.Int for
// non-native sizes, the matching fixed-size integer otherwise.
func sizedInt(t abi.Type, n *big.Int) (any, error) {
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for %s", n, t.String())
	}
	if n.BitLen() > t.Size {
		return nil, fmt.Errorf("value %s overflows %s", n, t.String())
	}
	rt := t.GetType()
	if rt == bigIntType {
		return new(big.Int).Set(n), nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(rt).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(rt).Interface(), nil
}

// fromABI normalizes an unpacked value: *big.Int for every integer,
// domain.Address for addresses, maps for tuples and typed slices where the
// element type allows.
func fromABI(t abi.Type, v any) any {
	switch t.T {
	case abi.AddressTy:
		if a, ok := v.(common.Address); ok {
			return domain.Address(strings.ToLower(a.Hex()))
		}

	case abi.UintTy, abi.IntTy:
		if n, ok := snapshot.Big(v); ok {
			return n
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return big.NewInt(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return new(big.Int).SetUint64(rv.Uint())
		}

	case abi.TupleTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			break
		}
		m := make(map[string]any, len(t.TupleRawNames))
		for i, name := range t.TupleRawNames {
			m[name] = fromABI(*t.TupleElems[i], rv.Field(i).Interface())
		}
		return m

	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		n := rv.Len()
		switch t.Elem.T {
		case abi.AddressTy:
			out := make([]domain.Address, n)
			for i := range out {
				out[i], _ = fromABI(*t.Elem, rv.Index(i).Interface()).(domain.Address)
			}
			return out
		case abi.UintTy, abi.IntTy:
			out := make([]*big.Int, n)
			for i := range out {
				out[i], _ = fromABI(*t.Elem, rv.Index(i).Interface()).(*big.Int)
			}
			return out
		case abi.TupleTy:
			out := make([]map[string]any, n)
			for i := range out {
				out[i], _ = fromABI(*t.Elem, rv.Index(i).Interface()).(map[string]any)
			}
			return out
		}
		out := make([]any, n)
		for i := range out {
			out[i] = fromABI(*t.Elem, rv.Index(i).Interface())
		}
		return out

	case abi.BytesTy:
		if b, ok := v.([]byte); ok {
			return hexutil.Encode(b)
		}

	case abi.FixedBytesTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Array {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
		if h, ok := v.(common.Hash); ok {
			return strings.ToLower(h.Hex())
		}
	}
	return v
}
