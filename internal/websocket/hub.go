package websocket

import (
	"time"

	"codeberg.org/waypair/server/internal/logger"
)

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[string]*Client),
		memberships:   make(map[string]map[string]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Inbound:       make(chan *Message, 256),
		handlers:      make(map[string]MessageHandler),
		shutdown:      make(chan struct{}),
		ipConnections: make(map[string]int),
	}
}

// registers a handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// sets callback to be called when a client disconnects
func (h *Hub) OnClientDisconnect(callback func(client *Client)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClientDisconnect = callback
}

// starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Inbound:
			h.handleMessage(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	logger.Info("client registered",
		"client_id", client.ID,
		"ip", client.IPAddress,
	)
}

// removes a client from the hub and all rooms it was subscribed to
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	// capture callback reference under lock
	callback := h.onClientDisconnect

	if _, exists := h.clients[client.ID]; !exists {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client.ID)

	for code := range h.memberships[client.ID] {
		h.leaveRoom(code, client.ID)
	}

	delete(h.memberships, client.ID)

	client.Close()

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	logger.Info("client unregistered", "client_id", client.ID)

	h.mu.Unlock()

	// call disconnect callback outside lock (tears down the client's
	// session against the store, which must not block the hub loop)
	if callback != nil {
		callback(client)
	}
}

// dispatches an incoming message to its registered handler
func (h *Hub) handleMessage(msg *Message) {
	h.mu.RLock()
	sender, exists := h.clients[msg.ClientID]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("sender client not found for message",
			"client_id", msg.ClientID,
			"message_type", msg.Type,
		)
		return
	}

	h.mu.RLock()
	handler, exists := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", sender.ID,
		)

		sender.SendError("bad_request", "unsupported message type", "message type not recognized")

		return
	}

	// run handler asynchronously to avoid blocking the hub
	go func() {
		if err := handler(h, sender, msg); err != nil {
			logger.ErrorErr(err, "handler error",
				"message_type", msg.Type,
				"client_id", sender.ID,
			)
		}
	}()
}

// adds a client to the room for a session code
func (h *Hub) Subscribe(code string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[code] == nil {
		h.rooms[code] = make(map[string]*Client)
	}

	h.rooms[code][client.ID] = client

	if h.memberships[client.ID] == nil {
		h.memberships[client.ID] = make(map[string]bool)
	}

	h.memberships[client.ID][code] = true

	logger.Debug("client subscribed to session",
		"client_id", client.ID,
		"code", code,
	)
}

// removes a client from the room for a session code
func (h *Hub) Unsubscribe(code, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoom(code, clientID)

	if members, exists := h.memberships[clientID]; exists {
		delete(members, code)
	}
}

// removes a client from a room's membership map (must be called with lock held)
func (h *Hub) leaveRoom(code, clientID string) {
	room, exists := h.rooms[code]
	if !exists {
		return
	}

	delete(room, clientID)

	if len(room) == 0 {
		delete(h.rooms, code)
	}
}

// sends a message to all clients subscribed to a session code,
// skipping excludeClientID when non-empty
func (h *Hub) BroadcastToRoom(code string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoom(code, msg, excludeClientID)
}

// the internal broadcast function (must be called with lock held)
func (h *Hub) broadcastToRoom(code string, msg *Message, excludeClientID string) {
	room, exists := h.rooms[code]
	if !exists {
		return
	}

	for clientID, client := range room {
		if clientID == excludeClientID {
			continue
		}

		if err := client.Send(msg); err != nil {
			logger.ErrorErr(err, "failed to send message to client",
				"client_id", clientID,
				"code", code,
			)
		}
	}
}

// notifies a room that its session terminated and dissolves the room.
// Connections stay open: participants may create or join another session.
// Called from the leave path, the disconnect path, and the cleanup sweep;
// ending an already-dissolved room is a no-op.
func (h *Hub) EndRoom(code, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[code]
	if !exists {
		return
	}

	msg, err := NewMessage(TypeSessionEnded, SessionEndedPayload{Reason: reason})
	if err != nil {
		logger.ErrorErr(err, "failed to create session-ended message", "code", code)
		return
	}

	h.broadcastToRoom(code, msg, "")

	for clientID := range room {
		if members, ok := h.memberships[clientID]; ok {
			delete(members, code)
		}
	}

	delete(h.rooms, code)

	logger.Info("session room dissolved", "code", code, "reason", reason)
}

// returns all clients subscribed to a session code
func (h *Hub) RoomClients(code string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, exists := h.rooms[code]
	if !exists {
		return []*Client{}
	}

	clients := make([]*Client, 0, len(room))

	for _, client := range room {
		clients = append(clients, client)
	}

	return clients
}

// returns the number of clients subscribed to a session code
func (h *Hub) RoomSize(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[code])
}

// returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// signals the hub loop to notify clients and stop. Safe to call from any
// goroutine, any number of times.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown")

	shutdownMsg, err := NewMessage(TypeServerShutdown, ServerShutdownPayload{
		Reason: "server is shutting down for maintenance",
	})
	if err == nil {
		for _, client := range h.clients {
			if sendErr := client.Send(shutdownMsg); sendErr != nil {
				logger.ErrorErr(sendErr, "failed to send shutdown notification",
					"client_id", client.ID,
				)
			}
		}
	}

	h.mu.Unlock()

	// give clients time to receive the shutdown message
	time.Sleep(500 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for clientID, client := range h.clients {
		client.Close()
		logger.Debug("closed client", "client_id", clientID)
	}

	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.memberships = make(map[string]map[string]bool)
	h.ipConnections = make(map[string]int)
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.ipConnections[ipAddress]
	if count >= maxConnectionsPerIP {
		return false, "Maximum connections per IP address exceeded"
	}

	return true, ""
}

// increments the connection count for an IP address
func (h *Hub) TrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]++
}

// decrements the connection count for an IP address
func (h *Hub) UntrackIPConnection(ipAddress string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipConnections[ipAddress]--

	if h.ipConnections[ipAddress] <= 0 {
		delete(h.ipConnections, ipAddress)
	}
}
