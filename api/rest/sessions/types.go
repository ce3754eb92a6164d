package sessions

import "time"

// public view of a session: slot contents and locations stay server-side
type SessionResponse struct {
	Code      string    `json:"code"`
	Paired    bool      `json:"paired"`
	CreatedAt time.Time `json:"created_at"`
}

type StatsResponse struct {
	ActiveSessions   int `json:"active_sessions"`
	ConnectedClients int `json:"connected_clients"`
}
