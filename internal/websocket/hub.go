package websocket

import (
	"context"
	"sync"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"go.uber.org/zap"
)

const MessageMatchFound = "match_found"

// Hub WebSocket 연결 관리; one connection per normalized wallet address
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	send       chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	logger *zap.Logger
}

// Message WebSocket 메시지
type Message struct {
	Address string      `json:"-"` // 수신자 (정규화된 주소)
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewHub Hub 생성; call Run before serving connections
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		send:       make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run Hub 실행; returns when ctx is cancelled, closing every connection
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.send:
			h.deliver(message)

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 기존 연결이 있으면 닫기
	if old, exists := h.clients[client.address]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("address", client.address))
	}

	h.clients[client.address] = client
	h.logger.Info("WebSocket client registered",
		zap.String("address", client.address),
		zap.Int("totalClients", len(h.clients)))
}

// unregisterClient only drops the client if it is still the registered one
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.address]; exists && current == client {
		delete(h.clients, client.address)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("address", client.address),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[message.Address]
	if !exists {
		return
	}
	select {
	case client.send <- message:
	default:
		h.logger.Warn("Client send channel full",
			zap.String("address", message.Address))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for address, client := range h.clients {
		close(client.send)
		delete(h.clients, address)
	}
}

// SendToAddress queues a message for one address; false if the hub has stopped
func (h *Hub) SendToAddress(ctx context.Context, address, msgType string, payload interface{}) bool {
	msg := &Message{
		Address: models.NormalizeAddress(address),
		Type:    msgType,
		Payload: payload,
	}
	select {
	case h.send <- msg:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// MatchCreated pushes the match to both players' connections
func (h *Hub) MatchCreated(ctx context.Context, match *models.MatchFound) error {
	for _, address := range match.Addresses() {
		if !h.SendToAddress(ctx, address, MessageMatchFound, match) {
			// nil when the hub stopped rather than ctx
			return ctx.Err()
		}
	}
	return nil
}

// Connected reports whether address has a live connection
func (h *Hub) Connected(address string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[models.NormalizeAddress(address)]
	return ok
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
