package sessions

import "time"

// a latitude/longitude pair reported by a participant
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Session is the pairing record for two participants sharing locations
// under one 6-digit code. The creator occupies the first slot at creation;
// the second slot is filled when another connection joins by code.
type Session struct {
	Code            string    `json:"code"`
	CreatorID       string    `json:"creator_id"`
	JoinerID        string    `json:"joiner_id,omitempty"`
	CreatorLocation *Location `json:"creator_location,omitempty"`
	JoinerLocation  *Location `json:"joiner_location,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// reports whether both slots are occupied
func (s *Session) Paired() bool {
	return s.JoinerID != ""
}

// reports whether connID occupies a slot in the session
func (s *Session) HasParticipant(connID string) bool {
	return connID != "" && (connID == s.CreatorID || connID == s.JoinerID)
}

// returns a copy of the session so callers cannot mutate store state
func (s *Session) clone() *Session {
	c := *s

	if s.CreatorLocation != nil {
		loc := *s.CreatorLocation
		c.CreatorLocation = &loc
	}

	if s.JoinerLocation != nil {
		loc := *s.JoinerLocation
		c.JoinerLocation = &loc
	}

	return &c
}
