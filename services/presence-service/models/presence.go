package models

import "time"

// PresenceRecord is the persisted view of a user's reachability.
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	IsOnline     bool      `json:"isOnline"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// InactiveFor reports how long the record has been idle at now.
func (r PresenceRecord) InactiveFor(now time.Time) time.Duration {
	if r.LastActiveAt.IsZero() {
		return 0
	}
	return now.Sub(r.LastActiveAt)
}

type OnlineUsersResponse struct {
	SocketConnectedUsers []string             `json:"socketConnectedUsers"`
	ConnectedSince       map[string]time.Time `json:"connectedSince"`
	DatabaseOnlineUsers  []PresenceRecord     `json:"databaseOnlineUsers"`
	AllOnlineUsers       []string             `json:"allOnlineUsers"`
}

type StaleUser struct {
	UserID       string    `json:"userId"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	InactiveFor  string    `json:"inactiveFor"`
}

type CleanupResponse struct {
	Message    string      `json:"message"`
	Threshold  string      `json:"threshold"`
	StaleUsers []StaleUser `json:"staleUsers"`
}
