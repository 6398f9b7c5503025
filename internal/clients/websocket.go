package clients

import (
	"context"
	"fmt"

	ws "debtster-kpi/internal/transport/websocket"
)

const (
	EventReportProgress = "report_progress"
	EventReportComplete = "report_complete"
	EventReportFailed   = "report_failed"
)

// WebSocketClient pushes report export events to the owning user.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) send(userID int64, event string, data map[string]any) {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.Broadcast(userID, &ws.Message{
		Type:    event,
		Channel: fmt.Sprintf("%s#%d", event, userID),
		Data:    data,
	})
}

func (c *WebSocketClient) NotifyReportProgress(_ context.Context, userID int64, exportID string, progress float64, stage string) error {
	data := map[string]any{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}
	c.send(userID, EventReportProgress, data)
	return nil
}

func (c *WebSocketClient) NotifyReportComplete(_ context.Context, userID int64, exportID, url, filename string) error {
	c.send(userID, EventReportComplete, map[string]any{
		"id":       exportID,
		"url":      url,
		"filename": filename,
		"user_id":  userID,
	})
	return nil
}

func (c *WebSocketClient) NotifyReportFailed(_ context.Context, userID int64, exportID, errMsg string) error {
	c.send(userID, EventReportFailed, map[string]any{
		"id":      exportID,
		"message": errMsg,
		"user_id": userID,
	})
	return nil
}
