// Package evm binds the ticketing contracts to a JSON-RPC node. The Gateway
// encodes calls with the embedded ABIs, submits writes through the node's
// signer, watches receipts and serves view calls and event logs.
package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/infra/rpc"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

const defaultPollInterval = 2 * time.Second

// RPC is the transport the gateway needs. *rpc.Client implements it.
type RPC interface {
	Call(ctx context.Context, method string, params []any) (any, error)
	BatchCall(ctx context.Context, requests []rpc.BatchRequest) ([]rpc.BatchResponse, error)
	Send(ctx context.Context, method string, params []any) (any, error)
	CanSubscribe() bool
	Subscribe(ctx context.Context, params []any) (<-chan json.RawMessage, func(), error)
}

// Config controls the gateway.
type Config struct {
	ChainID      domain.ChainID
	From         domain.Address // overrides the node's first account
	PollInterval time.Duration
}

// Gateway implements txflow.Writer, txflow.LogSubscriber, txflow.LogDecoder,
// snapshot.Reader and access.Identity over JSON-RPC.
type Gateway struct {
	rpc  RPC
	abis *Registry
	cfg  Config
	log  *slog.Logger
}

// NewGateway creates a gateway. A nil registry uses the embedded ABIs.
func NewGateway(c RPC, abis *Registry, cfg Config, log *slog.Logger) (*Gateway, error) {
	if abis == nil {
		var err error
		if abis, err = DefaultRegistry(); err != nil {
			return nil, err
		}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		rpc:  c,
		abis: abis,
		cfg:  cfg,
		log:  log.With("component", "evm_gateway"),
	}, nil
}

// VerifyChain checks that the node serves the configured chain id.
func (g *Gateway) VerifyChain(ctx context.Context) error {
	if g.cfg.ChainID == "" {
		return nil
	}
	res, err := g.rpc.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return domain.NewError(domain.KindRPCUnavailable, "eth_chainId", err)
	}
	id, err := uintResult(res)
	if err != nil {
		return domain.NewError(domain.KindRPCUnavailable, "eth_chainId", err)
	}
	if got := domain.ChainID(fmt.Sprint(id)); got != g.cfg.ChainID {
		return domain.NewError(domain.KindInvalidInput, "eth_chainId",
			fmt.Errorf("node serves chain %s, configured %s", got, g.cfg.ChainID))
	}
	return nil
}

// SubmitWrite sends call as a transaction signed by the node account From.
func (g *Gateway) SubmitWrite(ctx context.Context, call domain.Call) (domain.TxHandle, error) {
	op := string(call.Contract) + "." + call.Method
	from := call.From
	if from == "" {
		from = g.cfg.From
	}
	if !domain.IsValidAddress(string(from)) {
		return "", domain.NewError(domain.KindInvalidInput, op, errors.New("no sender address"))
	}

	data, err := g.abis.Pack(call.Contract, call.Method, call.Args)
	if err != nil {
		return "", domain.NewError(domain.KindInvalidInput, op, err)
	}

	tx := map[string]any{
		"from": string(from),
		"to":   string(call.To),
		"data": hexutil.Encode(data),
	}
	res, err := g.rpc.Send(ctx, "eth_sendTransaction", []any{tx})
	if err != nil {
		return "", classifyWrite(op, err)
	}
	hash, ok := res.(string)
	if !ok || len(hash) != 66 {
		return "", domain.NewError(domain.KindRPCUnavailable, op, fmt.Errorf("unexpected tx hash %v", res))
	}
	g.log.Debug("transaction sent", "op", op, "tx", hash)
	return domain.TxHandle(strings.ToLower(hash)), nil
}

// WaitForReceipt polls until the transaction is included and has at least
// minConfirmations blocks on top, counting its own block. Transient RPC
// errors are logged and polling continues until ctx ends.
func (g *Gateway) WaitForReceipt(ctx context.Context, h domain.TxHandle, minConfirmations uint64) (*domain.Receipt, error) {
	const op = "eth_getTransactionReceipt"
	if minConfirmations == 0 {
		minConfirmations = 1
	}

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.pollReceipt(ctx, h, minConfirmations)
		switch {
		case err != nil && domain.KindOf(err) != domain.KindRPCUnavailable:
			return nil, err
		case err != nil:
			g.log.Warn("receipt poll failed", "tx", h, "error", err)
		case receipt != nil:
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, domain.NewError(domain.KindSubmissionTimeout, op,
				fmt.Errorf("tx %s not confirmed: %w", h, ctx.Err()))
		case <-ticker.C:
		}
	}
}

// pollReceipt returns nil without error while the receipt is pending or
// not deep enough.
func (g *Gateway) pollReceipt(ctx context.Context, h domain.TxHandle, minConfirmations uint64) (*domain.Receipt, error) {
	const op = "eth_getTransactionReceipt"
	res, err := g.rpc.Call(ctx, op, []any{string(h)})
	if err != nil {
		return nil, classifyRead(op, err)
	}
	if res == nil {
		return nil, nil
	}

	var raw rpcReceipt
	if err := decodeResult(res, &raw); err != nil {
		return nil, domain.NewError(domain.KindRPCUnavailable, op, err)
	}
	receipt := raw.toDomain()
	if receipt.BlockNumber == 0 && raw.BlockHash == "" {
		return nil, nil
	}

	head, err := g.blockNumber(ctx)
	if err != nil {
		return nil, err
	}
	if head >= receipt.BlockNumber {
		receipt.Confirmations = head - receipt.BlockNumber + 1
	}
	if receipt.Confirmations < minConfirmations {
		g.log.Debug("awaiting confirmations", "tx", h, "have", receipt.Confirmations, "want", minConfirmations)
		return nil, nil
	}
	return receipt, nil
}

func (g *Gateway) blockNumber(ctx context.Context) (uint64, error) {
	const op = "eth_blockNumber"
	res, err := g.rpc.Call(ctx, op, nil)
	if err != nil {
		return 0, classifyRead(op, err)
	}
	n, err := uintResult(res)
	if err != nil {
		return 0, domain.NewError(domain.KindRPCUnavailable, op, err)
	}
	return n, nil
}

// ReadView performs eth_call at the latest block and decodes the result.
func (g *Gateway) ReadView(ctx context.Context, call domain.Call) ([]any, error) {
	op := string(call.Contract) + "." + call.Method
	params, err := g.callParams(call)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, op, err)
	}

	res, err := g.rpc.Call(ctx, "eth_call", params)
	if err != nil {
		return nil, classifyRead(op, err)
	}
	data, err := hexResult(res)
	if err != nil {
		return nil, domain.NewError(domain.KindRPCUnavailable, op, err)
	}
	if len(data) == 0 {
		return nil, g.emptyResult(ctx, op, call.To)
	}
	return g.unpack(op, call, data)
}

// BatchReadView sends all calls in one JSON-RPC batch. Entries that fail
// to encode carry InvalidInput without being sent.
func (g *Gateway) BatchReadView(ctx context.Context, calls []domain.Call) ([]domain.ViewResult, error) {
	out := make([]domain.ViewResult, len(calls))
	reqs := make([]rpc.BatchRequest, 0, len(calls))
	index := make([]int, 0, len(calls))

	for i, call := range calls {
		params, err := g.callParams(call)
		if err != nil {
			out[i].Err = domain.NewError(domain.KindInvalidInput, string(call.Contract)+"."+call.Method, err)
			continue
		}
		reqs = append(reqs, rpc.BatchRequest{Method: "eth_call", Params: params})
		index = append(index, i)
	}
	if len(reqs) == 0 {
		return out, nil
	}

	resp, err := g.rpc.BatchCall(ctx, reqs)
	if err != nil {
		if rpcErr, ok := rpc.AsRPCError(err); ok &&
			(rpcErr.Code == rpc.CodeMethodNotFound || rpcErr.Code == rpc.CodeInvalidRequest) {
			return nil, snapshot.ErrBatchUnsupported
		}
		return nil, classifyRead("batch eth_call", err)
	}
	if len(resp) != len(reqs) {
		return nil, domain.NewError(domain.KindRPCUnavailable, "batch eth_call",
			fmt.Errorf("got %d responses for %d requests", len(resp), len(reqs)))
	}

	for j, r := range resp {
		i := index[j]
		call := calls[i]
		op := string(call.Contract) + "." + call.Method
		if r.Error != nil {
			out[i].Err = classifyRead(op, r.Error)
			continue
		}
		data, err := hexResult(r.Result)
		if err != nil {
			out[i].Err = domain.NewError(domain.KindRPCUnavailable, op, err)
			continue
		}
		if len(data) == 0 {
			out[i].Err = domain.NewError(domain.KindNotFound, op, fmt.Errorf("empty result from %s", call.To))
			continue
		}
		out[i].Values, out[i].Err = g.unpack(op, call, data)
	}
	return out, nil
}

func (g *Gateway) callParams(call domain.Call) ([]any, error) {
	if !domain.IsValidAddress(string(call.To)) {
		return nil, fmt.Errorf("invalid target %q", call.To)
	}
	data, err := g.abis.Pack(call.Contract, call.Method, call.Args)
	if err != nil {
		return nil, err
	}
	msg := map[string]any{
		"to":   string(call.To),
		"data": hexutil.Encode(data),
	}
	if call.From != "" {
		msg["from"] = string(call.From)
	}
	return []any{msg, "latest"}, nil
}

func (g *Gateway) unpack(op string, call domain.Call, data []byte) ([]any, error) {
	values, err := g.abis.Unpack(call.Contract, call.Method, data)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, op, err)
	}
	return values, nil
}

// emptyResult explains an empty eth_call return; both cases are NotFound.
func (g *Gateway) emptyResult(ctx context.Context, op string, to domain.Address) error {
	code, err := g.rpc.Call(ctx, "eth_getCode", []any{string(to), "latest"})
	if err == nil {
		if b, derr := hexResult(code); derr == nil && len(b) == 0 {
			return domain.NewError(domain.KindNotFound, op, fmt.Errorf("no contract at %s", to))
		}
	}
	return domain.NewError(domain.KindNotFound, op, fmt.Errorf("empty result from %s", to))
}

// CurrentCaller returns the configured sender, else the node's first
// account, else nil.
func (g *Gateway) CurrentCaller(ctx context.Context) (*domain.Address, error) {
	if g.cfg.From != "" {
		a, err := domain.ParseAddress(string(g.cfg.From))
		if err != nil {
			return nil, err
		}
		return &a, nil
	}

	res, err := g.rpc.Call(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, classifyRead("eth_accounts", err)
	}
	var accounts []string
	if err := decodeResult(res, &accounts); err != nil {
		return nil, domain.NewError(domain.KindRPCUnavailable, "eth_accounts", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	a, err := domain.ParseAddress(accounts[0])
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// EventTopic implements txflow.LogDecoder.
func (g *Gateway) EventTopic(c domain.Contract, event string) (string, error) {
	return g.abis.EventTopic(c, event)
}

// DecodeLog implements txflow.LogDecoder.
func (g *Gateway) DecodeLog(c domain.Contract, event string, l domain.Log) (map[string]any, error) {
	return g.abis.DecodeLog(c, event, l)
}

// classifyWrite maps a submission error to a domain kind.
func classifyWrite(op string, err error) error {
	if rpcErr, ok := rpc.AsRPCError(err); ok {
		switch {
		case rpcErr.UserRejected():
			return domain.NewError(domain.KindUserRejected, op, err)
		case rpcErr.InsufficientFunds():
			return domain.NewError(domain.KindInsufficientFunds, op, err)
		case rpcErr.Reverted():
			if reason := revertReason(rpcErr.Data); reason != "" {
				err = fmt.Errorf("%w: %s", err, reason)
			}
			return domain.NewError(domain.KindExecutionReverted, op, err)
		}
		// The node refused the transaction itself, e.g. unknown account.
		return domain.NewError(domain.KindInvalidInput, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewError(domain.KindSubmissionTimeout, op, err)
	}
	return domain.NewError(domain.KindRPCUnavailable, op, err)
}

// classifyRead maps a read error to a domain kind.
func classifyRead(op string, err error) error {
	if rpcErr, ok := rpc.AsRPCError(err); ok {
		switch {
		case rpcErr.Reverted():
			if reason := revertReason(rpcErr.Data); reason != "" {
				err = fmt.Errorf("%w: %s", err, reason)
			}
			return domain.NewError(domain.KindNotFound, op, err)
		case rpcErr.Code == rpc.CodeInvalidParams:
			return domain.NewError(domain.KindInvalidInput, op, err)
		}
	}
	return domain.NewError(domain.KindRPCUnavailable, op, err)
}

// revertReason decodes an Error(string) payload from the error data.
func revertReason(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var hexData string
	if err := json.Unmarshal(data, &hexData); err != nil {
		var wrapped struct {
			Data string `json:"data"`
		}
		if json.Unmarshal(data, &wrapped) != nil {
			return ""
		}
		hexData = wrapped.Data
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return ""
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return ""
	}
	return reason
}
