package sse

import (
	"fmt"
	"log"
	"sync"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID     string
	UserID string
	Events chan Event
}

// Hub manages all SSE client connections
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// GlobalHub is the singleton SSE Hub instance
var GlobalHub = NewHub()

// NewHub creates a new SSE Hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a new client to the hub
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	log.Printf("[SSE] Client registered: id=%s user=%s (total: %d)", client.ID, client.UserID, len(h.clients))
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[clientID]; ok {
		close(client.Events)
		delete(h.clients, clientID)
		log.Printf("[SSE] Client unregistered: id=%s (total: %d)", clientID, len(h.clients))
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		default:
			log.Printf("[SSE] Client %s buffer full, skipping event", client.ID)
		}
	}
}

// SendToUser 给特定用户发送事件（而非广播）
func (h *Hub) SendToUser(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID == userID {
			select {
			case client.Events <- event:
			default:
				log.Printf("[SSE] Client %s buffer full, skipping user event", client.ID)
			}
		}
	}
}

// PublishTaskUpdate 广播任务变更（状态、数量、指派）
func PublishTaskUpdate(workOrderID, taskID, action string) {
	data := fmt.Sprintf(`{"work_order_id":"%s","task_id":"%s","action":"%s"}`, workOrderID, taskID, action)
	GlobalHub.Broadcast(Event{
		EventType: "task_update",
		Data:      data,
	})
}

// PublishWorkOrderUpdate 施工单级别更新（审核、状态变化、完成）
func PublishWorkOrderUpdate(workOrderID, action string) {
	data := fmt.Sprintf(`{"work_order_id":"%s","action":"%s"}`, workOrderID, action)
	GlobalHub.Broadcast(Event{
		EventType: "work_order_update",
		Data:      data,
	})
}

// PublishUserNotification 给特定用户推送新通知提醒（用于铃铛角标刷新）
func PublishUserNotification(userID, notificationID, notifyType string) {
	data := fmt.Sprintf(`{"notification_id":"%s","notify_type":"%s"}`, notificationID, notifyType)
	GlobalHub.SendToUser(userID, Event{
		EventType: "notification",
		Data:      data,
	})
}
