package evm

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/infra/rpc"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

const (
	factory   = domain.Address("0x1111111111111111111111111111111111111111")
	eventAddr = domain.Address("0x2222222222222222222222222222222222222222")
	sender    = domain.Address("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	txHash    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

// fakeRPC answers JSON-RPC calls through function fields.
type fakeRPC struct {
	mu      sync.Mutex
	callFn  func(method string, params []any) (any, error)
	batchFn func(reqs []rpc.BatchRequest) ([]rpc.BatchResponse, error)
	sendFn  func(method string, params []any) (any, error)
	methods []string
}

func (f *fakeRPC) Call(ctx context.Context, method string, params []any) (any, error) {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()
	if f.callFn == nil {
		return nil, errors.New("unexpected call " + method)
	}
	return f.callFn(method, params)
}

func (f *fakeRPC) BatchCall(ctx context.Context, reqs []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
	if f.batchFn == nil {
		return nil, errors.New("unexpected batch")
	}
	return f.batchFn(reqs)
}

func (f *fakeRPC) Send(ctx context.Context, method string, params []any) (any, error) {
	if f.sendFn == nil {
		return nil, errors.New("unexpected send " + method)
	}
	return f.sendFn(method, params)
}

func (f *fakeRPC) CanSubscribe() bool { return false }

func (f *fakeRPC) Subscribe(ctx context.Context, params []any) (<-chan json.RawMessage, func(), error) {
	return nil, nil, rpc.ErrNoSubscriptions
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func newGateway(t *testing.T, f *fakeRPC, cfg Config) *Gateway {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	g, err := NewGateway(f, nil, cfg, nil)
	require.NoError(t, err)
	return g
}

func registry(t *testing.T) *Registry {
	t.Helper()
	r, err := DefaultRegistry()
	require.NoError(t, err)
	return r
}

func encodeOutputs(t *testing.T, c domain.Contract, method string, values ...any) string {
	t.Helper()
	m, err := registry(t).method(c, method)
	require.NoError(t, err)
	conv := make([]any, len(values))
	for i, v := range values {
		conv[i], err = toABI(m.Outputs[i].Type, v)
		require.NoError(t, err)
	}
	data, err := m.Outputs.Pack(conv...)
	require.NoError(t, err)
	return hexutil.Encode(data)
}

func selector(t *testing.T, c domain.Contract, method string) string {
	t.Helper()
	m, err := registry(t).method(c, method)
	require.NoError(t, err)
	return hexutil.Encode(m.ID)
}

func callData(params []any) string {
	msg, _ := params[0].(map[string]any)
	data, _ := msg["data"].(string)
	return data
}

func keccak(s string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(s))
	return hexutil.Encode(h.Sum(nil))
}

func TestRegistry_EventTopics(t *testing.T) {
	r := registry(t)

	topic, err := r.EventTopic(domain.ContractEventFactory, "EventCreated")
	require.NoError(t, err)
	assert.Equal(t, keccak("EventCreated(address,address,string,uint256)"), topic)

	topic, err = r.EventTopic(domain.ContractEvent, "TicketPurchased")
	require.NoError(t, err)
	assert.Equal(t, keccak("TicketPurchased(address,uint256,uint256,uint256)"), topic)

	_, err = r.EventTopic(domain.ContractEvent, "Nope")
	assert.Error(t, err)
}

func TestRegistry_PackTupleFromStructOrMap(t *testing.T) {
	type params struct {
		Name         string   `abi:"name"`
		Description  string   `abi:"description"`
		Date         *big.Int `abi:"date"`
		Venue        string   `abi:"venue"`
		IpfsMetadata string   `abi:"ipfsMetadata"`
	}
	r := registry(t)

	fromStruct, err := r.Pack(domain.ContractEventFactory, "createEvent", []any{params{
		Name: "Devcon", Description: "Conf", Date: big.NewInt(1796115600), Venue: "Jakarta", IpfsMetadata: "ipfs://x",
	}})
	require.NoError(t, err)

	fromMap, err := r.Pack(domain.ContractEventFactory, "createEvent", []any{map[string]any{
		"name": "Devcon", "description": "Conf", "date": big.NewInt(1796115600), "venue": "Jakarta", "ipfsMetadata": "ipfs://x",
	}})
	require.NoError(t, err)

	assert.Equal(t, fromStruct, fromMap)
	assert.Equal(t, selector(t, domain.ContractEventFactory, "createEvent"), hexutil.Encode(fromStruct[:4]))
}

func TestRegistry_PackRejectsBadArguments(t *testing.T) {
	r := registry(t)

	_, err := r.Pack(domain.ContractEvent, "purchaseTicket", []any{big.NewInt(0)})
	assert.ErrorContains(t, err, "want 2 arguments")

	_, err = r.Pack(domain.ContractEvent, "purchaseTicket", []any{big.NewInt(-1), big.NewInt(1)})
	assert.ErrorContains(t, err, "negative")

	_, err = r.Pack(domain.ContractToken, "approve", []any{domain.Address("0x123"), big.NewInt(1)})
	assert.ErrorContains(t, err, "invalid address")

	_, err = r.Pack(domain.ContractEvent, "noSuchMethod", nil)
	assert.Error(t, err)
}

func TestRegistry_DecodeLog(t *testing.T) {
	r := registry(t)
	ev := r.abis[domain.ContractEventFactory].Events["EventCreated"]

	data, err := ev.Inputs.NonIndexed().Pack("Devcon", big.NewInt(1796115600))
	require.NoError(t, err)

	l := domain.Log{
		Address: factory,
		Topics: []string{
			strings.ToLower(ev.ID.Hex()),
			common.BytesToHash(common.HexToAddress(string(eventAddr)).Bytes()).Hex(),
			common.BytesToHash(common.HexToAddress(string(sender)).Bytes()).Hex(),
		},
		Data: data,
	}

	fields, err := r.DecodeLog(domain.ContractEventFactory, "EventCreated", l)
	require.NoError(t, err)
	assert.Equal(t, eventAddr, fields["eventAddress"])
	assert.Equal(t, sender, fields["organizer"])
	assert.Equal(t, "Devcon", fields["name"])
	assert.Equal(t, int64(1796115600), fields["date"].(*big.Int).Int64())

	l.Topics[0] = "0xdeadbeef"
	_, err = r.DecodeLog(domain.ContractEventFactory, "EventCreated", l)
	assert.Error(t, err)
}

func TestReadView_NormalizesTuple(t *testing.T) {
	tier := map[string]any{
		"name": "VIP", "price": big.NewInt(250000), "available": big.NewInt(100), "sold": big.NewInt(25),
		"maxPerPurchase": big.NewInt(4), "description": "front rows", "isActive": true,
	}
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
		require.Equal(t, "eth_call", method)
		require.Equal(t, "latest", params[1])
		return encodeOutputs(t, domain.ContractEvent, "getTierDetails", tier), nil
	}}

	values, err := newGateway(t, f, Config{}).ReadView(context.Background(), domain.Call{
		To: eventAddr, Contract: domain.ContractEvent, Method: "getTierDetails", Args: []any{big.NewInt(0)},
	})
	require.NoError(t, err)
	require.Len(t, values, 1)

	got, ok := values[0].(map[string]any)
	require.True(t, ok, "tuple must decode to a map, got %T", values[0])
	assert.Equal(t, "VIP", got["name"])
	assert.Equal(t, int64(25), got["sold"].(*big.Int).Int64())
	assert.Equal(t, true, got["isActive"])
}

func TestReadView_AddressListAndDecimals(t *testing.T) {
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
		switch {
		case strings.HasPrefix(callData(params), selector(t, domain.ContractEventFactory, "getEvents")):
			return encodeOutputs(t, domain.ContractEventFactory, "getEvents", []domain.Address{eventAddr}), nil
		case strings.HasPrefix(callData(params), selector(t, domain.ContractToken, "decimals")):
			return encodeOutputs(t, domain.ContractToken, "decimals", big.NewInt(18)), nil
		}
		return nil, errors.New("unexpected call")
	}}
	g := newGateway(t, f, Config{})

	values, err := g.ReadView(context.Background(), domain.Call{To: factory, Contract: domain.ContractEventFactory, Method: "getEvents"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{eventAddr}, values[0])

	values, err = g.ReadView(context.Background(), domain.Call{To: factory, Contract: domain.ContractToken, Method: "decimals"})
	require.NoError(t, err)
	assert.Equal(t, int64(18), values[0].(*big.Int).Int64(), "uint8 is widened to *big.Int")
}

func TestReadView_Errors(t *testing.T) {
	t.Run("no contract", func(t *testing.T) {
		f := &fakeRPC{callFn: func(method string, params []any) (any, error) { return "0x", nil }}
		_, err := newGateway(t, f, Config{}).ReadView(context.Background(), domain.Call{
			To: eventAddr, Contract: domain.ContractEvent, Method: "tierCount",
		})
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
		assert.ErrorContains(t, err, "no contract")
		assert.Equal(t, 1, f.count("eth_getCode"))
	})

	t.Run("revert is not found", func(t *testing.T) {
		f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
			return nil, &rpc.RPCError{Code: 3, Message: "execution reverted"}
		}}
		_, err := newGateway(t, f, Config{}).ReadView(context.Background(), domain.Call{
			To: eventAddr, Contract: domain.ContractEvent, Method: "getTierDetails", Args: []any{big.NewInt(9)},
		})
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	t.Run("transport is rpc unavailable", func(t *testing.T) {
		f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
			return nil, errors.New("connection refused")
		}}
		_, err := newGateway(t, f, Config{}).ReadView(context.Background(), domain.Call{
			To: eventAddr, Contract: domain.ContractEvent, Method: "tierCount",
		})
		assert.Equal(t, domain.KindRPCUnavailable, domain.KindOf(err))
	})

	t.Run("bad arguments make no call", func(t *testing.T) {
		f := &fakeRPC{}
		_, err := newGateway(t, f, Config{}).ReadView(context.Background(), domain.Call{
			To: eventAddr, Contract: domain.ContractEvent, Method: "getTierDetails", Args: []any{"zero"},
		})
		assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
		assert.Empty(t, f.methods)
	})
}

func TestBatchReadView(t *testing.T) {
	f := &fakeRPC{batchFn: func(reqs []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
		require.Len(t, reqs, 2)
		return []rpc.BatchResponse{
			{Result: encodeOutputs(t, domain.ContractEvent, "tierCount", big.NewInt(3))},
			{Error: &rpc.RPCError{Code: 3, Message: "execution reverted"}},
		}, nil
	}}

	res, err := newGateway(t, f, Config{}).BatchReadView(context.Background(), []domain.Call{
		{To: eventAddr, Contract: domain.ContractEvent, Method: "tierCount"},
		{To: eventAddr, Contract: domain.ContractEvent, Method: "getTierDetails", Args: []any{big.NewInt(7)}},
		{To: "bad", Contract: domain.ContractEvent, Method: "tierCount"},
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	require.NoError(t, res[0].Err)
	assert.Equal(t, int64(3), res[0].Values[0].(*big.Int).Int64())
	assert.Equal(t, domain.KindNotFound, domain.KindOf(res[1].Err))
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(res[2].Err))
}

func TestBatchReadView_Unsupported(t *testing.T) {
	f := &fakeRPC{batchFn: func(reqs []rpc.BatchRequest) ([]rpc.BatchResponse, error) {
		return nil, &rpc.RPCError{Code: rpc.CodeMethodNotFound, Message: "batch not supported"}
	}}
	_, err := newGateway(t, f, Config{}).BatchReadView(context.Background(), []domain.Call{
		{To: eventAddr, Contract: domain.ContractEvent, Method: "tierCount"},
	})
	assert.ErrorIs(t, err, snapshot.ErrBatchUnsupported)
}

func TestSubmitWrite(t *testing.T) {
	var sent map[string]any
	f := &fakeRPC{sendFn: func(method string, params []any) (any, error) {
		require.Equal(t, "eth_sendTransaction", method)
		sent = params[0].(map[string]any)
		return strings.ToUpper(txHash[:2]) + txHash[2:], nil
	}}

	h, err := newGateway(t, f, Config{}).SubmitWrite(context.Background(), domain.Call{
		From: sender, To: eventAddr, Contract: domain.ContractEvent, Method: "purchaseTicket",
		Args: []any{big.NewInt(0), big.NewInt(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxHandle(txHash), h)
	assert.Equal(t, string(sender), sent["from"])
	assert.Equal(t, string(eventAddr), sent["to"])
	assert.True(t, strings.HasPrefix(sent["data"].(string), selector(t, domain.ContractEvent, "purchaseTicket")))
}

func TestSubmitWrite_ErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind domain.ErrorKind
	}{
		{"rejected", &rpc.RPCError{Code: 4001, Message: "User rejected the request."}, domain.KindUserRejected},
		{"funds", &rpc.RPCError{Code: -32000, Message: "insufficient funds for gas * price + value"}, domain.KindInsufficientFunds},
		{"revert", &rpc.RPCError{Code: 3, Message: "execution reverted", Data: revertData(t, "Sold out")}, domain.KindExecutionReverted},
		{"refused", &rpc.RPCError{Code: -32000, Message: "unknown account"}, domain.KindInvalidInput},
		{"timeout", context.DeadlineExceeded, domain.KindSubmissionTimeout},
		{"transport", errors.New("dial tcp: connection refused"), domain.KindRPCUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeRPC{sendFn: func(string, []any) (any, error) { return nil, tc.err }}
			_, err := newGateway(t, f, Config{}).SubmitWrite(context.Background(), domain.Call{
				From: sender, To: eventAddr, Contract: domain.ContractEvent, Method: "checkInAndBurn",
				Args: []any{big.NewInt(1)},
			})
			assert.Equal(t, tc.kind, domain.KindOf(err))
			if tc.name == "revert" {
				assert.ErrorContains(t, err, "Sold out")
			}
		})
	}
}

func TestSubmitWrite_NeedsSender(t *testing.T) {
	_, err := newGateway(t, &fakeRPC{}, Config{}).SubmitWrite(context.Background(), domain.Call{
		To: eventAddr, Contract: domain.ContractEvent, Method: "checkInAndBurn", Args: []any{big.NewInt(1)},
	})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func revertData(t *testing.T, reason string) json.RawMessage {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	raw, err := json.Marshal(hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)))
	require.NoError(t, err)
	return raw
}

func receiptJSON(block uint64, status string) map[string]any {
	return map[string]any{
		"transactionHash":   txHash,
		"status":            status,
		"blockNumber":       hexutil.EncodeUint64(block),
		"blockHash":         "0xbb",
		"contractAddress":   nil,
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x3b9aca00",
		"logs": []any{map[string]any{
			"address":         string(factory),
			"topics":          []any{"0xABC"},
			"data":            "0x",
			"blockNumber":     hexutil.EncodeUint64(block),
			"transactionHash": txHash,
			"logIndex":        "0x0",
		}},
	}
}

func TestWaitForReceipt_WaitsForDepth(t *testing.T) {
	var polls int
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
		switch method {
		case "eth_getTransactionReceipt":
			polls++
			if polls == 1 {
				return nil, nil
			}
			if polls == 2 {
				return nil, errors.New("temporary failure")
			}
			return receiptJSON(10, "0x1"), nil
		case "eth_blockNumber":
			if polls < 4 {
				return "0xa", nil
			}
			return "0xb", nil
		}
		return nil, errors.New("unexpected " + method)
	}}

	r, err := newGateway(t, f, Config{}).WaitForReceipt(context.Background(), domain.TxHandle(txHash), 2)
	require.NoError(t, err)
	assert.True(t, r.Succeeded())
	assert.Equal(t, uint64(10), r.BlockNumber)
	assert.Equal(t, uint64(2), r.Confirmations)
	assert.Equal(t, uint64(21000), r.GasUsed)
	require.Len(t, r.Logs, 1)
	assert.Equal(t, "0xabc", r.Logs[0].Topics[0])
	assert.Equal(t, 4, polls)
}

func TestWaitForReceipt_Reverted(t *testing.T) {
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
		if method == "eth_blockNumber" {
			return "0xa", nil
		}
		return receiptJSON(10, "0x0"), nil
	}}
	r, err := newGateway(t, f, Config{}).WaitForReceipt(context.Background(), domain.TxHandle(txHash), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusReverted, r.Status)
}

func TestWaitForReceipt_Timeout(t *testing.T) {
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) { return nil, nil }}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newGateway(t, f, Config{}).WaitForReceipt(ctx, domain.TxHandle(txHash), 1)
	assert.Equal(t, domain.KindSubmissionTimeout, domain.KindOf(err))
}

func TestSubscribeToLog_PollsAndDeduplicates(t *testing.T) {
	topic := "0x" + strings.Repeat("c", 64)
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
		assert.Equal(t, "eth_getLogs", method)
		filter := params[0].(map[string]any)
		assert.Equal(t, string(factory), filter["address"])
		return []any{
			map[string]any{
				"address": string(factory), "topics": []any{topic}, "data": "0x",
				"blockNumber": "0x64", "transactionHash": txHash, "logIndex": "0x1",
			},
		}, nil
	}}

	got := make(chan domain.Log, 4)
	cancel, err := newGateway(t, f, Config{}).SubscribeToLog(context.Background(), factory, topic, 100,
		func(l domain.Log) { got <- l })
	require.NoError(t, err)
	defer cancel()

	select {
	case l := <-got:
		assert.Equal(t, txHash, l.TxHash)
		assert.Equal(t, uint64(100), l.BlockNumber)
	case <-time.After(time.Second):
		t.Fatal("no log delivered")
	}

	require.Eventually(t, func() bool { return f.count("eth_getLogs") >= 3 }, time.Second, time.Millisecond)
	assert.Empty(t, got, "the same log must not be delivered twice")
}

func TestCurrentCaller(t *testing.T) {
	t.Run("configured sender wins", func(t *testing.T) {
		f := &fakeRPC{}
		a, err := newGateway(t, f, Config{From: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}).CurrentCaller(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sender, *a)
		assert.Empty(t, f.methods)
	})

	t.Run("first node account", func(t *testing.T) {
		f := &fakeRPC{callFn: func(method string, params []any) (any, error) {
			return []any{string(sender), string(factory)}, nil
		}}
		a, err := newGateway(t, f, Config{}).CurrentCaller(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sender, *a)
	})

	t.Run("no accounts", func(t *testing.T) {
		f := &fakeRPC{callFn: func(method string, params []any) (any, error) { return []any{}, nil }}
		a, err := newGateway(t, f, Config{}).CurrentCaller(context.Background())
		require.NoError(t, err)
		assert.Nil(t, a)
	})
}

func TestVerifyChain(t *testing.T) {
	f := &fakeRPC{callFn: func(method string, params []any) (any, error) { return "0x106a", nil }}
	assert.NoError(t, newGateway(t, f, Config{ChainID: domain.ChainIDLiskSepolia}).VerifyChain(context.Background()))

	err := newGateway(t, f, Config{ChainID: domain.ChainIDAnvil}).VerifyChain(context.Background())
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
