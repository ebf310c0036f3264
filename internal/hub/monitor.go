package hub

import (
	"sort"
	"time"

	"github.com/Md-KamranQutub/chatify/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	clients := ms.getClientList()
	sessions := ms.hub.typing.Sessions()

	// Determine overall health status
	status := "healthy"
	if len(clients) == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: model.ConnectionStats{TotalConnected: len(clients)},
		Typing: model.TypingStats{
			ActiveSessions: len(sessions),
			Sessions:       sessions,
		},
		Clients: clients,
	}
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	conns := ms.hub.ConnectedUsers()
	clients := make([]model.ClientInfo, 0, len(conns))

	for _, c := range conns {
		info := model.ClientInfo{
			ClientID: c.ID(),
			UserID:   c.UserID(),
		}
		if wc, ok := c.(interface{ ConnectedAt() time.Time }); ok {
			info.ConnectedAt = wc.ConnectedAt().Format(time.RFC3339)
		}
		clients = append(clients, info)
	}

	sort.Slice(clients, func(i, j int) bool { return clients[i].UserID < clients[j].UserID })
	return clients
}
