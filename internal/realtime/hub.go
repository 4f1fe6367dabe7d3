package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"campuschat/internal/metrics"
)

var ErrHubStopped = errors.New("hub stopped")

type membershipChange struct {
	client *Client
	group  string
	join   bool
	id     string
	err    string
}

// Hub owns every connected client and its group membership.
// Only the Run goroutine touches clients and groups.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]struct{}
	broadcast  chan []byte           // From broker -> Clients
	register   chan *Client          // New client joins
	unregister chan *Client          // Client leaves
	membership chan membershipChange // Join/Leave invocations
	broker     Broker
	log        *zap.Logger
	done       chan struct{}
}

func NewHub(broker Broker, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		membership: make(chan membershipChange, 64),
		broker:     broker,
		log:        log,
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return nil

		case client := <-h.register:
			h.clients[client] = true
			metrics.WSConnections.Inc()
			h.log.Debug("client registered", zap.String("conn_id", client.ID), zap.Int64("user_id", client.UserID))

		case client := <-h.unregister:
			// Always check if they exist to avoid double-deletion panics
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}

		case change := <-h.membership:
			h.applyMembership(change)

		case data := <-h.broadcast:
			h.fanOut(data)
		}
	}
}

// Subscribe pumps envelopes from the broker into the hub until ctx is done.
func (h *Hub) Subscribe(ctx context.Context) error {
	return h.broker.Subscribe(ctx, func(data []byte) {
		select {
		case h.broadcast <- data:
		case <-h.done:
		case <-ctx.Done():
		}
	})
}

// Publish delivers payload to every client currently in group. Delivery is at-most-once.
func (h *Hub) Publish(ctx context.Context, group, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Group: group, Event: event, Payload: raw})
	if err != nil {
		return err
	}
	if err := h.broker.Publish(ctx, data); err != nil {
		metrics.PublishFailures.Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(event).Inc()
	return nil
}

func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) changeMembership(change membershipChange) {
	select {
	case h.membership <- change:
	case <-h.done:
	}
}

func (h *Hub) applyMembership(change membershipChange) {
	client := change.client
	if _, ok := h.clients[client]; !ok {
		return
	}
	if change.err != "" {
		h.sendFrame(client, Frame{Type: FrameError, ID: change.id, Error: change.err})
		return
	}

	if change.join {
		members, ok := h.groups[change.group]
		if !ok {
			members = make(map[*Client]struct{})
			h.groups[change.group] = members
		}
		members[client] = struct{}{}
		client.groups[change.group] = struct{}{}
	} else {
		h.leave(client, change.group)
	}
	h.sendFrame(client, Frame{Type: FrameAck, ID: change.id, Group: change.group})
}

func (h *Hub) fanOut(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Warn("dropping malformed envelope", zap.Error(err))
		return
	}
	members := h.groups[env.Group]
	if len(members) == 0 {
		return
	}
	frame, err := json.Marshal(Frame{Type: FrameEvent, Event: env.Event, Group: env.Group, Payload: env.Payload})
	if err != nil {
		h.log.Warn("encode frame", zap.Error(err))
		return
	}
	for client := range members {
		h.send(client, frame)
	}
}

func (h *Hub) sendFrame(client *Client, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Warn("encode frame", zap.Error(err))
		return
	}
	h.send(client, data)
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		metrics.SlowClientsDropped.Inc()
		h.log.Warn("dropping slow client", zap.String("conn_id", client.ID), zap.Int64("user_id", client.UserID))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	for group := range client.groups {
		h.leave(client, group)
	}
	delete(h.clients, client)
	close(client.Send) // Close their write channel to stop the writePump
	metrics.WSConnections.Dec()
}

func (h *Hub) leave(client *Client, group string) {
	delete(client.groups, group)
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}
