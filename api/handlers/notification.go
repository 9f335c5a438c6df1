package handlers

import (
	"net/http"

	"github.com/linesmerrill/commute-permit-api/config"
	"github.com/linesmerrill/commute-permit-api/notifications"
)

// Notification serves the realtime notification socket
type Notification struct {
	Hub *notifications.Hub
}

// WebSocketHandler upgrades the request and registers the employee's connection
func (n Notification) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employeeId")
	if employeeID == "" {
		config.ErrorStatus("employeeId is required", http.StatusBadRequest, w, nil)
		return
	}
	n.Hub.Serve(w, r, employeeID)
}
