package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/snapshot"
	"github.com/vietddude/ticketchain/internal/txflow"
)

const (
	factory   = domain.Address("0x1111111111111111111111111111111111111111")
	created   = domain.Address("0x2222222222222222222222222222222222222222")
	caller    = domain.Address("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	token     = domain.Address("0x6666666666666666666666666666666666666666")
	ticketNFT = domain.Address("0x5555555555555555555555555555555555555555")

	topicCreated   = "0xc0ffee"
	topicPurchased = "0xbeef"
)

// chainWriter answers writes like a node: every call is included, the
// createEvent receipt carries an EventCreated log, and revert lists the
// call indices that should revert.
type chainWriter struct {
	mu       sync.Mutex
	calls    []domain.Call
	revert   map[int]bool
	noLog    bool
	mintedID int64
}

func (w *chainWriter) SubmitWrite(ctx context.Context, call domain.Call) (domain.TxHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
	return domain.TxHandle(fmt.Sprintf("0xtx%d", len(w.calls)-1)), nil
}

func (w *chainWriter) WaitForReceipt(ctx context.Context, h domain.TxHandle, minConfirmations uint64) (*domain.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, _ := strconv.Atoi(strings.TrimPrefix(string(h), "0xtx"))
	call := w.calls[n]
	r := &domain.Receipt{
		TxHash:        string(h),
		Status:        domain.TxStatusSuccess,
		BlockNumber:   uint64(10 + n),
		Confirmations: minConfirmations,
	}
	if w.revert[n] {
		r.Status = domain.TxStatusReverted
		return r, nil
	}
	switch call.Method {
	case "createEvent":
		if !w.noLog {
			r.Logs = append(r.Logs, domain.Log{Address: call.To, Topics: []string{topicCreated, string(created), string(caller)}})
		}
	case "purchaseTicket":
		if w.mintedID > 0 {
			r.Logs = append(r.Logs, domain.Log{Address: call.To, Topics: []string{topicPurchased, string(caller)}, Data: []byte{byte(w.mintedID)}})
		}
	}
	return r, nil
}

func (w *chainWriter) submitted() []domain.Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Call(nil), w.calls...)
}

type decoder struct{}

func (decoder) EventTopic(contract domain.Contract, event string) (string, error) {
	switch event {
	case "EventCreated":
		return topicCreated, nil
	case "TicketPurchased":
		return topicPurchased, nil
	}
	return "", fmt.Errorf("unknown event %s", event)
}

func (decoder) DecodeLog(contract domain.Contract, event string, l domain.Log) (map[string]any, error) {
	switch event {
	case "EventCreated":
		return map[string]any{
			"eventAddress": domain.Address(l.Topics[1]),
			"organizer":    domain.Address(l.Topics[2]),
		}, nil
	case "TicketPurchased":
		return map[string]any{"tokenId": big.NewInt(int64(l.Data[0]))}, nil
	}
	return nil, fmt.Errorf("unknown event %s", event)
}

// viewReader answers reads from a table keyed by "to.method[args]".
type viewReader struct {
	views map[string][]any
}

func viewKey(to domain.Address, method string, args ...any) string {
	return fmt.Sprintf("%s.%s%v", to, method, args)
}

func (r *viewReader) ReadView(ctx context.Context, call domain.Call) ([]any, error) {
	v, ok := r.views[viewKey(call.To, call.Method, call.Args...)]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, call.Method, fmt.Errorf("no view %s", call.Method))
	}
	return v, nil
}

func (r *viewReader) BatchReadView(ctx context.Context, calls []domain.Call) ([]domain.ViewResult, error) {
	out := make([]domain.ViewResult, len(calls))
	for i, c := range calls {
		v, err := r.ReadView(ctx, c)
		out[i] = domain.ViewResult{Values: v, Err: err}
	}
	return out, nil
}

// marketViews describes one event with a single tier priced at 250000
// base units, 10 available, 4 sold, max 3 per purchase.
func marketViews(balance int64) map[string][]any {
	return map[string][]any{
		viewKey(created, "getEventDetails"):     {"Show", "desc", big.NewInt(1767225600), "Hall", caller},
		viewKey(created, "tierCount"):           {big.NewInt(1)},
		viewKey(created, "getTotalSold"):        {big.NewInt(4)},
		viewKey(created, "getTicketNFTAddress"): {ticketNFT},
		viewKey(created, "getTierDetails", big.NewInt(0)): {map[string]any{
			"name": "GA", "price": big.NewInt(250000), "available": big.NewInt(10), "sold": big.NewInt(4),
			"maxPerPurchase": big.NewInt(3), "description": "general", "isActive": true,
		}},
		viewKey(token, "balanceOf", caller): {big.NewInt(balance)},
	}
}

func newService(w txflow.Writer, r snapshot.Reader) *Service {
	return NewService(Deps{
		Executor:  txflow.NewExecutor(w, txflow.ExecutorConfig{}),
		Decoder:   decoder{},
		Snapshots: snapshot.NewBuilder(r, snapshot.WithToken(token)),
	}, Contracts{EventFactory: factory, Token: token})
}

var pc = Context{Caller: caller, ChainID: domain.ChainIDAnvil}
