package evm

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

//go:embed abis/*.json
var abiFiles embed.FS

// Registry holds the parsed ABI of every contract the client talks to.
type Registry struct {
	abis map[domain.Contract]abi.ABI
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// DefaultRegistry returns the registry built from the embedded ABIs.
func DefaultRegistry() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = LoadRegistry()
	})
	return defaultRegistry, defaultErr
}

// LoadRegistry parses the embedded ABI files.
func LoadRegistry() (*Registry, error) {
	r := &Registry{abis: make(map[domain.Contract]abi.ABI)}
	for _, c := range []domain.Contract{
		domain.ContractAccessControl,
		domain.ContractEventFactory,
		domain.ContractEvent,
		domain.ContractTicketNFT,
		domain.ContractToken,
	} {
		raw, err := abiFiles.ReadFile("abis/" + string(c) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read abi %s: %w", c, err)
		}
		parsed, err := abi.JSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse abi %s: %w", c, err)
		}
		r.abis[c] = parsed
	}
	return r, nil
}

func (r *Registry) contract(c domain.Contract) (abi.ABI, error) {
	a, ok := r.abis[c]
	if !ok {
		return abi.ABI{}, fmt.Errorf("unknown contract %q", c)
	}
	return a, nil
}

func (r *Registry) method(c domain.Contract, name string) (abi.Method, error) {
	a, err := r.contract(c)
	if err != nil {
		return abi.Method{}, err
	}
	m, ok := a.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("%s has no method %q", c, name)
	}
	return m, nil
}

// Pack encodes a call to method with args converted to ABI types.
func (r *Registry) Pack(c domain.Contract, method string, args []any) ([]byte, error) {
	m, err := r.method(c, method)
	if err != nil {
		return nil, err
	}
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("%s.%s: want %d arguments, got %d", c, method, len(m.Inputs), len(args))
	}
	converted := make([]any, len(args))
	for i, in := range m.Inputs {
		v, err := toABI(in.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s argument %d: %w", c, method, i, err)
		}
		converted[i] = v
	}
	packed, err := m.Inputs.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c, method, err)
	}
	return append(append([]byte{}, m.ID...), packed...), nil
}

// Unpack decodes the return data of method into normalized values.
func (r *Registry) Unpack(c domain.Contract, method string, data []byte) ([]any, error) {
	m, err := r.method(c, method)
	if err != nil {
		return nil, err
	}
	raw, err := m.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c, method, err)
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = fromABI(m.Outputs[i].Type, v)
	}
	return out, nil
}

// EventTopic returns the lowercase topic0 of the named event.
func (r *Registry) EventTopic(c domain.Contract, event string) (string, error) {
	a, err := r.contract(c)
	if err != nil {
		return "", err
	}
	ev, ok := a.Events[event]
	if !ok {
		return "", fmt.Errorf("%s has no event %q", c, event)
	}
	return strings.ToLower(ev.ID.Hex()), nil
}

// DecodeLog decodes indexed and data fields of an event log by field name.
func (r *Registry) DecodeLog(c domain.Contract, event string, l domain.Log) (map[string]any, error) {
	a, err := r.contract(c)
	if err != nil {
		return nil, err
	}
	ev, ok := a.Events[event]
	if !ok {
		return nil, fmt.Errorf("%s has no event %q", c, event)
	}
	if len(l.Topics) == 0 || !strings.EqualFold(l.Topics[0], ev.ID.Hex()) {
		return nil, fmt.Errorf("log is not %s", event)
	}

	out := make(map[string]any, len(ev.Inputs))
	if err := ev.Inputs.UnpackIntoMap(out, l.Data); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", event, err)
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	topics := make([]common.Hash, 0, len(l.Topics)-1)
	for _, t := range l.Topics[1:] {
		topics = append(topics, common.HexToHash(t))
	}
	if err := abi.ParseTopicsIntoMap(out, indexed, topics); err != nil {
		return nil, fmt.Errorf("decode %s topics: %w", event, err)
	}

	for _, in := range ev.Inputs {
		if v, ok := out[in.Name]; ok {
			out[in.Name] = fromABI(in.Type, v)
		}
	}
	return out, nil
}
