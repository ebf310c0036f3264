package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"` // Client connection stats
	Typing      TypingStats     `json:"typing"`      // Active typing sessions
	Clients     []ClientInfo    `json:"clients"`     // List of connected clients
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"`
}

// TypingStats holds typing indicator statistics
type TypingStats struct {
	ActiveSessions int                 `json:"activeSessions"`
	Sessions       []TypingSessionInfo `json:"sessions"`
}

// TypingSessionInfo describes one armed typing session
type TypingSessionInfo struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

// ClientInfo contains information about a connected client
type ClientInfo struct {
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId"`
	ConnectedAt string `json:"connectedAt"` // ISO timestamp
}
