package redis

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// value is the tagged form of a decoded view value. The tag keeps integers,
// addresses and plain strings apart after a round trip through JSON.
type value struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

const (
	tagInt       = "i"
	tagAddr      = "a"
	tagString    = "s"
	tagBool      = "b"
	tagInts      = "I"
	tagAddrs     = "A"
	tagStrings   = "S"
	tagTuple     = "t"
	tagTupleList = "T"
	tagList      = "l"
)

func encodeValues(vs []any) ([]byte, error) {
	out := make([]value, len(vs))
	for i, v := range vs {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return json.Marshal(out)
}

func decodeValues(data []byte) ([]any, error) {
	var in []value
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	out := make([]any, len(in))
	for i, v := range in {
		dec, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

func tagged(tag string, v any) (value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return value{}, err
	}
	return value{T: tag, V: raw}, nil
}

func encodeValue(v any) (value, error) {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return value{}, fmt.Errorf("nil integer")
		}
		return tagged(tagInt, t.String())
	case domain.Address:
		return tagged(tagAddr, string(t))
	case string:
		return tagged(tagString, t)
	case bool:
		return tagged(tagBool, t)
	case []*big.Int:
		s := make([]string, len(t))
		for i, n := range t {
			s[i] = n.String()
		}
		return tagged(tagInts, s)
	case []domain.Address:
		return tagged(tagAddrs, t)
	case []string:
		return tagged(tagStrings, t)
	case map[string]any:
		m, err := encodeTuple(t)
		if err != nil {
			return value{}, err
		}
		return tagged(tagTuple, m)
	case []map[string]any:
		list := make([]map[string]value, len(t))
		for i, item := range t {
			m, err := encodeTuple(item)
			if err != nil {
				return value{}, err
			}
			list[i] = m
		}
		return tagged(tagTupleList, list)
	case []any:
		list := make([]value, len(t))
		for i, item := range t {
			enc, err := encodeValue(item)
			if err != nil {
				return value{}, err
			}
			list[i] = enc
		}
		return tagged(tagList, list)
	}
	return value{}, fmt.Errorf("uncacheable value of type %T", v)
}

func encodeTuple(m map[string]any) (map[string]value, error) {
	out := make(map[string]value, len(m))
	for k, v := range m {
		enc, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

func decodeValue(v value) (any, error) {
	switch v.T {
	case tagInt:
		var s string
		if err := json.Unmarshal(v.V, &s); err != nil {
			return nil, err
		}
		return parseBig(s)
	case tagAddr:
		var s string
		if err := json.Unmarshal(v.V, &s); err != nil {
			return nil, err
		}
		return domain.Address(s), nil
	case tagString:
		var s string
		err := json.Unmarshal(v.V, &s)
		return s, err
	case tagBool:
		var b bool
		err := json.Unmarshal(v.V, &b)
		return b, err
	case tagInts:
		var s []string
		if err := json.Unmarshal(v.V, &s); err != nil {
			return nil, err
		}
		out := make([]*big.Int, len(s))
		for i, item := range s {
			n, err := parseBig(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case tagAddrs:
		var out []domain.Address
		err := json.Unmarshal(v.V, &out)
		return out, err
	case tagStrings:
		var out []string
		err := json.Unmarshal(v.V, &out)
		return out, err
	case tagTuple:
		var m map[string]value
		if err := json.Unmarshal(v.V, &m); err != nil {
			return nil, err
		}
		return decodeTuple(m)
	case tagTupleList:
		var list []map[string]value
		if err := json.Unmarshal(v.V, &list); err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(list))
		for i, m := range list {
			dec, err := decodeTuple(m)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case tagList:
		var list []value
		if err := json.Unmarshal(v.V, &list); err != nil {
			return nil, err
		}
		out := make([]any, len(list))
		for i, item := range list {
			dec, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown tag %q", v.T)
}

func decodeTuple(m map[string]value) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		dec, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = dec
	}
	return out, nil
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
