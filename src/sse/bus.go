package sse

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"
	"vmp/src/config"
)

const (
	defaultBufferSize     = 64
	defaultQueueSize      = 1024
	defaultPublishTimeout = 5 * time.Second
)

// Client is a connected identity as seen by this instance.
type Client struct {
	UserID       uint      `json:"user_id"`
	Role         string    `json:"role"`
	Streams      int       `json:"streams"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Bus fans events out to the streams connected to this instance and, through
// a Channel, to every sibling instance.
type Bus struct {
	instanceID  string
	channelName string
	channel     Channel
	distributed atomic.Bool

	bufferSize     int
	publishTimeout time.Duration

	// outbox is drained into the channel by a single goroutine.
	outbox    chan []byte
	drainCtx  context.Context
	stopDrain context.CancelFunc
	drainWg   sync.WaitGroup

	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	clients map[uint]*Client
}

type Option func(*Bus)

// WithChannel bridges the bus to sibling instances over ch.
func WithChannel(ch Channel, name string) Option {
	return func(b *Bus) {
		b.channel = ch
		if name != "" {
			b.channelName = name
		}
	}
}

func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithQueueSize bounds the events waiting to be replicated. Events raised
// while the queue is full are delivered locally only.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.outbox = make(chan []byte, n)
		}
	}
}

func NewBus(instanceID string, opts ...Option) *Bus {
	b := &Bus{
		instanceID:     instanceID,
		channelName:    config.DEFAULT_SSE_CHANNEL,
		bufferSize:     defaultBufferSize,
		publishTimeout: defaultPublishTimeout,
		outbox:         make(chan []byte, defaultQueueSize),
		subs:           map[*Subscription]struct{}{},
		clients:        map[uint]*Client{},
	}
	b.drainCtx, b.stopDrain = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) InstanceID() string {
	return b.instanceID
}

// Distributed reports whether events are replicated to sibling instances.
func (b *Bus) Distributed() bool {
	return b.distributed.Load()
}

// Start subscribes to the distributed channel. A missing or failing channel
// leaves the bus in single-instance mode and is never fatal.
func (b *Bus) Start(ctx context.Context) {
	if b.channel == nil {
		log.Println("[SSE] No distributed channel configured. Running in single-instance mode")
		return
	}
	if err := b.channel.Subscribe(ctx, b.channelName, b.handleRemote); err != nil {
		log.Printf("[SSE] WARNING: distributed channel unavailable, running in single-instance mode: %s\n", err.Error())
		return
	}
	b.drainWg.Add(1)
	go b.drain()
	b.distributed.Store(true)
	log.Printf("[SSE] Subscribed to %s as instance %s\n", b.channelName, b.instanceID)
}

func (b *Bus) drain() {
	defer b.drainWg.Done()
	for {
		select {
		case <-b.drainCtx.Done():
			return
		case payload := <-b.outbox:
			ctx, cancel := context.WithTimeout(b.drainCtx, b.publishTimeout)
			if err := b.channel.Publish(ctx, b.channelName, payload); err != nil {
				log.Printf("[SSE] Error publishing to %s: %s\n", b.channelName, err.Error())
			}
			cancel()
		}
	}
}

func (b *Bus) SendToUser(userID uint, t EventType, data any) {
	e := newEvent(b.instanceID, t, data)
	e.UserID = userID
	b.publish(e)
}

func (b *Bus) SendToRole(role string, t EventType, data any) {
	e := newEvent(b.instanceID, t, data)
	e.Role = role
	b.publish(e)
}

func (b *Bus) Broadcast(t EventType, data any) {
	b.publish(newEvent(b.instanceID, t, data))
}

// Heartbeat keeps local streams alive. It is never replicated.
func (b *Bus) Heartbeat() {
	b.deliver(newEvent(b.instanceID, EVENT_HEARTBEAT, nil))
}

func (b *Bus) publish(e Event) {
	b.deliver(e)
	if !b.Distributed() {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("[SSE] Error encoding event %s: %s\n", e.ID, err.Error())
		return
	}
	select {
	case b.outbox <- payload:
	default:
		log.Printf("[SSE] Outbound queue is full. Event %s not replicated\n", e.ID)
	}
}

func (b *Bus) handleRemote(payload []byte) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		log.Printf("[SSE] Dropping malformed message: %s\n", err.Error())
		return
	}
	if e.Origin == b.instanceID || e.Type == EVENT_HEARTBEAT {
		return
	}
	b.deliver(e)
}

func (b *Bus) deliver(e Event) {
	now := time.Now().UTC()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !e.Matches(sub.userID, sub.role) {
			continue
		}
		select {
		case sub.ch <- e:
			sub.lastActivity.Store(now.UnixNano())
		default:
			log.Printf("[SSE] Stream for user %d is full. Dropping event %s\n", sub.userID, e.ID)
		}
	}
}

// CreateStream registers a client and returns its filtered subscription. The
// subscription is closed when ctx is done or Close is called.
func (b *Bus) CreateStream(ctx context.Context, userID uint, role string) *Subscription {
	sub := &Subscription{
		bus:    b,
		userID: userID,
		role:   role,
		ch:     make(chan Event, b.bufferSize),
		done:   make(chan struct{}),
	}
	now := time.Now().UTC()
	sub.lastActivity.Store(now.UnixNano())

	connected := newEvent(b.instanceID, EVENT_CONNECTED, map[string]any{"instance_id": b.instanceID})
	connected.UserID = userID
	sub.ch <- connected

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	client, ok := b.clients[userID]
	if !ok {
		client = &Client{UserID: userID, ConnectedAt: now}
		b.clients[userID] = client
	}
	client.Role = role
	client.Streams++
	client.LastActivity = now
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
	if client, ok := b.clients[sub.userID]; ok {
		client.Streams--
		if client.Streams <= 0 {
			delete(b.clients, sub.userID)
		}
	}
}

// Clients returns a snapshot of the identities connected to this instance.
func (b *Bus) Clients() []Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	last := map[uint]int64{}
	for sub := range b.subs {
		if ts := sub.lastActivity.Load(); ts > last[sub.userID] {
			last[sub.userID] = ts
		}
	}
	clients := make([]Client, 0, len(b.clients))
	for id, c := range b.clients {
		snapshot := *c
		if ts, ok := last[id]; ok {
			snapshot.LastActivity = time.Unix(0, ts).UTC()
		}
		clients = append(clients, snapshot)
	}
	return clients
}

// Close ends every stream and releases the distributed channel. Events still
// waiting in the outbound queue are dropped.
func (b *Bus) Close() error {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Close()
	}
	b.distributed.Store(false)
	b.stopDrain()
	b.drainWg.Wait()
	if b.channel != nil {
		return b.channel.Close()
	}
	return nil
}

// Subscription is a live, filtered sequence of events for one stream.
type Subscription struct {
	bus          *Bus
	userID       uint
	role         string
	ch           chan Event
	done         chan struct{}
	once         sync.Once
	lastActivity atomic.Int64
}

// Events yields matching events until the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}
