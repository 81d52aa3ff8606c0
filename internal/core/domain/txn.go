package domain

import "math/big"

// Contract identifies which ABI a call is encoded against.
type Contract string

const (
	ContractEventFactory  Contract = "event_factory"
	ContractEvent         Contract = "event"
	ContractTicketNFT     Contract = "ticket_nft"
	ContractToken         Contract = "token"
	ContractAccessControl Contract = "access_control"
)

// Call describes one contract invocation, read or write.
// Encoding to calldata is the chain collaborator's job.
type Call struct {
	From     Address
	To       Address
	Contract Contract
	Method   string
	Args     []any
}

// TxHandle identifies a submitted transaction before inclusion.
type TxHandle string

// ViewResult is one entry of a batched read.
type ViewResult struct {
	Values []any
	Err    error
}

// Log is an event log emitted during transaction execution.
type Log struct {
	Address     Address
	Topics      []string
	Data        []byte
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
}

// TxStatus is the execution outcome recorded in a receipt.
type TxStatus string

const (
	TxStatusSuccess  TxStatus = "success"
	TxStatusReverted TxStatus = "reverted"
)

// Receipt is the observed result of a submitted write.
type Receipt struct {
	TxHash          string
	Status          TxStatus
	BlockNumber     uint64
	BlockHash       string
	Confirmations   uint64
	ContractAddress Address
	GasUsed         uint64
	EffectiveGas    *big.Int
	Logs            []Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// StepOutput holds named values extracted from a step's receipt.
type StepOutput map[string]any

// Address returns the named output as an Address if present and valid.
func (o StepOutput) Address(key string) (Address, bool) {
	switch v := o[key].(type) {
	case Address:
		return v, IsValidAddress(string(v))
	case string:
		if IsValidAddress(v) {
			return Address(v), true
		}
	}
	return "", false
}
