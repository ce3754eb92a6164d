package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// message type constants for websocket communication
const (
	// is sent by a client to request a new session
	TypeCreateSession = "create-session"

	// is sent by a client to join an existing session by code
	TypeJoinSession = "join-session"

	// is sent by a participant with its latest coordinates
	TypeUpdateLocation = "update-location"

	// is sent by a participant to terminate its session
	TypeLeaveSession = "leave-session"

	// is sent to the creator with the allocated code
	TypeSessionCreated = "session-created"

	// is sent to the joiner after the second slot is filled
	TypeSessionJoined = "session-joined"

	// is sent to both participants once the session is paired
	TypeSessionReady = "session-ready"

	// is sent to the non-sending participant with fresh coordinates
	TypeLocationUpdated = "location-updated"

	// is sent to remaining participants when a session terminates
	TypeSessionEnded = "session-ended"

	// is sent only to the requester whose action failed
	TypeError = "error"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"

	// is sent by server before shutdown
	TypeServerShutdown = "server-shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 4 * 1024 // 4 KB

	// rate limiting: location updates per second, with a small burst
	maxLocationUpdatesPerSecond = 10
	locationUpdateBurst         = 20
)

// hub connection limit constants
const (
	maxConnectionsPerIP = 10
)

// errors
var (
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	ClientID  string          `json:"-"` // internal only, not sent to clients
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// identifies the session a client wants to join
type JoinSessionPayload struct {
	Code string `json:"code"`
}

// carries a participant's coordinates for relay
type UpdateLocationPayload struct {
	Code string  `json:"code"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// identifies the session a participant wants to leave
type LeaveSessionPayload struct {
	Code string `json:"code"`
}

// carries the allocated code back to the creator
type SessionCreatedPayload struct {
	Code string `json:"code"`
}

// confirms the join to the joiner
type SessionJoinedPayload struct {
	Code string `json:"code"`
}

// carries fresh coordinates to the other participant
type LocationUpdatedPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// carries the termination cause to remaining participants
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// contains information about server shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this client; doubles as the connection
	// identifier occupying a session slot
	ID string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message dispatch
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// limits update-location messages from this connection
	locationLimiter *rate.Limiter

	// mutex for thread-safe operations
	mu sync.RWMutex

	// flag indicating if client is closed
	closed bool
}

// maintains the set of active clients and the multicast groups ("rooms")
// keyed by session code. Room membership is an explicit mapping updated on
// join, leave, and disconnect; it is not tied to transport internals.
type Hub struct {
	// connected clients by client ID
	clients map[string]*Client

	// room membership: session code -> client ID -> client
	rooms map[string]map[string]*Client

	// reverse membership: client ID -> set of session codes
	memberships map[string]map[string]bool

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// inbound messages queued for dispatch
	Inbound chan *Message

	// mutex for thread-safe access to clients and rooms
	mu sync.RWMutex

	// message handlers for different message types
	handlers map[string]MessageHandler

	// channel to signal shutdown, closed exactly once
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// callback for client disconnect (e.g., tear down the client's session)
	onClientDisconnect func(client *Client)
}

// processes a specific message type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error

// builds a message with a marshaled payload
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		Timestamp: time.Now(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		msg.Payload = data
	}

	return msg, nil
}

// decodes the message payload into v
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrInvalidMessage
	}

	return json.Unmarshal(m.Payload, v)
}
