// Package notify delivers best-effort push notifications to a user's devices.
package notify

import (
	"context"
	"log"
)

// FCM rejects multicast messages with more tokens than this.
const MaxTokensPerMessage = 500

type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

type Result struct {
	Success       int      `json:"success"`
	Failure       int      `json:"failure"`
	InvalidTokens []string `json:"invalid_tokens"`
}

// Dispatcher sends one message to a batch of device tokens.
type Dispatcher interface {
	Send(ctx context.Context, tokens []string, msg Message) (Result, error)
}

type TokenStore interface {
	ListDeviceTokens(ctx context.Context, userIDs []uint) ([]string, error)
	DeleteDeviceTokens(ctx context.Context, tokens []string) error
}

type Service struct {
	store      TokenStore
	dispatcher Dispatcher
}

func NewService(store TokenStore, dispatcher Dispatcher) *Service {
	return &Service{store: store, dispatcher: dispatcher}
}

// NotifyUsers pushes a message to every registered device of the given users
// and forgets tokens the provider reports as no longer valid. Failures are
// logged and counted, never returned.
func (s *Service) NotifyUsers(ctx context.Context, userIDs []uint, title, body string, data map[string]string) Result {
	var result Result
	if s == nil || s.dispatcher == nil || len(userIDs) == 0 {
		return result
	}
	tokens, err := s.store.ListDeviceTokens(ctx, userIDs)
	if err != nil {
		log.Printf("[Notify] Error loading device tokens: %s\n", err.Error())
		return result
	}
	if len(tokens) == 0 {
		return result
	}

	msg := Message{Title: title, Body: body, Data: data}
	for start := 0; start < len(tokens); start += MaxTokensPerMessage {
		batch := tokens[start:min(start+MaxTokensPerMessage, len(tokens))]
		res, err := s.dispatcher.Send(ctx, batch, msg)
		if err != nil {
			log.Printf("[Notify] Error sending to %d devices: %s\n", len(batch), err.Error())
			result.Failure += len(batch)
			continue
		}
		result.Success += res.Success
		result.Failure += res.Failure
		result.InvalidTokens = append(result.InvalidTokens, res.InvalidTokens...)
	}

	if len(result.InvalidTokens) > 0 {
		if err := s.store.DeleteDeviceTokens(ctx, result.InvalidTokens); err != nil {
			log.Printf("[Notify] Error removing %d invalid tokens: %s\n", len(result.InvalidTokens), err.Error())
		}
	}
	return result
}
