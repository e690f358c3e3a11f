package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"vmp/src/payments"
	"vmp/src/sse"
)

// Gateway is a scripted payment gateway.
type Gateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]payments.Intent

	CreateErr error
	CancelErr error
	GetErr    error

	Creates atomic.Int32
	Cancels atomic.Int32
}

func NewGateway() *Gateway {
	return &Gateway{intents: map[string]payments.Intent{}}
}

func (g *Gateway) CreateIntent(_ context.Context, amount int64, currency string, _ map[string]string) (payments.Intent, error) {
	g.Creates.Add(1)
	if g.CreateErr != nil {
		return payments.Intent{}, g.CreateErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	intent := payments.Intent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%d%s", id, amount, currency),
		Status:       payments.INTENT_REQUIRES_PAYMENT_METHOD,
	}
	g.intents[id] = intent
	return intent, nil
}

func (g *Gateway) CancelIntent(_ context.Context, id string) (payments.Intent, error) {
	g.Cancels.Add(1)
	if g.CancelErr != nil {
		return payments.Intent{}, g.CancelErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[id]
	intent.ID = id
	intent.Status = payments.INTENT_CANCELED
	g.intents[id] = intent
	return intent, nil
}

func (g *Gateway) GetIntent(_ context.Context, id string) (payments.Intent, error) {
	if g.GetErr != nil {
		return payments.Intent{}, g.GetErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return payments.Intent{}, fmt.Errorf("no such payment_intent: %s", id)
	}
	return intent, nil
}

// SetStatus moves an intent as if the buyer acted on it.
func (g *Gateway) SetStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent := g.intents[id]
	intent.ID = id
	intent.Status = status
	g.intents[id] = intent
}

type Published struct {
	UserID uint
	Role   string
	Type   sse.EventType
	Data   any
}

// Events records everything a service publishes.
type Events struct {
	mu  sync.Mutex
	All []Published
}

func (e *Events) SendToUser(userID uint, t sse.EventType, data any) {
	e.record(Published{UserID: userID, Type: t, Data: data})
}

func (e *Events) SendToRole(role string, t sse.EventType, data any) {
	e.record(Published{Role: role, Type: t, Data: data})
}

func (e *Events) Broadcast(t sse.EventType, data any) {
	e.record(Published{Type: t, Data: data})
}

func (e *Events) record(p Published) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.All = append(e.All, p)
}

// Of returns the recorded events of type t.
func (e *Events) Of(t sse.EventType) []Published {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Published
	for _, p := range e.All {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}
