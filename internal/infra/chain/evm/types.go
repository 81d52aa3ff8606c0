package evm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

type rpcReceipt struct {
	TransactionHash   string         `json:"transactionHash"`
	Status            hexutil.Uint64 `json:"status"`
	BlockNumber       hexutil.Uint64 `json:"blockNumber"`
	BlockHash         string         `json:"blockHash"`
	ContractAddress   *string        `json:"contractAddress"`
	GasUsed           hexutil.Uint64 `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big   `json:"effectiveGasPrice"`
	Logs              []rpcLog       `json:"logs"`
}

type rpcLog struct {
	Address         string         `json:"address"`
	Topics          []string       `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash string         `json:"transactionHash"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
	Removed         bool           `json:"removed"`
}

func (r rpcReceipt) toDomain() *domain.Receipt {
	out := &domain.Receipt{
		TxHash:      strings.ToLower(r.TransactionHash),
		Status:      domain.TxStatusReverted,
		BlockNumber: uint64(r.BlockNumber),
		BlockHash:   strings.ToLower(r.BlockHash),
		GasUsed:     uint64(r.GasUsed),
		Logs:        make([]domain.Log, 0, len(r.Logs)),
	}
	if r.Status == 1 {
		out.Status = domain.TxStatusSuccess
	}
	if r.ContractAddress != nil {
		out.ContractAddress = domain.Address(strings.ToLower(*r.ContractAddress))
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGas = (*big.Int)(r.EffectiveGasPrice)
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, l.toDomain())
	}
	return out
}

func (l rpcLog) toDomain() domain.Log {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = strings.ToLower(t)
	}
	return domain.Log{
		Address:     domain.Address(strings.ToLower(l.Address)),
		Topics:      topics,
		Data:        l.Data,
		BlockNumber: uint64(l.BlockNumber),
		TxHash:      strings.ToLower(l.TransactionHash),
		LogIndex:    uint(l.LogIndex),
	}
}

// decodeResult re-decodes a generic JSON-RPC result into out.
func decodeResult(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func hexResult(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected hex string, got %T", v)
	}
	return hexutil.Decode(s)
}

func uintResult(v any) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected hex quantity, got %T", v)
	}
	return hexutil.DecodeUint64(s)
}
