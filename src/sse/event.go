package sse

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EVENT_CONNECTED              EventType = "CONNECTED"
	EVENT_HEARTBEAT              EventType = "HEARTBEAT"
	EVENT_PAYMENT_STATUS_CHANGED EventType = "PAYMENT_STATUS_CHANGED"
	EVENT_PAYMENT_COMPLETED      EventType = "PAYMENT_COMPLETED"
	EVENT_RESERVATION_RELEASED   EventType = "RESERVATION_RELEASED"
	EVENT_RESERVATION_EXPIRED    EventType = "RESERVATION_EXPIRED"
	EVENT_ORDER_CREATED          EventType = "ORDER_CREATED"
	EVENT_VOUCHER_REDEEMED       EventType = "VOUCHER_REDEEMED"
	EVENT_REDEMPTION_CONFIRMED   EventType = "REDEMPTION_CONFIRMED"
	EVENT_STOCK_UPDATED          EventType = "STOCK_UPDATED"
)

// Event is the unit carried by the bus and written to SSE streams. A zero
// UserID and empty Role mean the event is a broadcast.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	UserID    uint      `json:"userId,omitempty"`
	Role      string    `json:"role,omitempty"`
	Origin    string    `json:"originInstanceId"`
}

func newEvent(origin string, t EventType, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Origin:    origin,
	}
}

func (e Event) Broadcast() bool {
	return e.UserID == 0 && e.Role == ""
}

// Matches reports whether a client identified by userID and role should see e.
func (e Event) Matches(userID uint, role string) bool {
	return e.Broadcast() ||
		e.UserID != 0 && e.UserID == userID ||
		e.Role != "" && e.Role == role ||
		e.Type == EVENT_HEARTBEAT
}
