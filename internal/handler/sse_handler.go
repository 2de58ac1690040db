package handler

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fxxsj/work-order-sub001/internal/sse"
)

// SSEHandler 实时事件推送
type SSEHandler struct{}

func NewSSEHandler() *SSEHandler {
	return &SSEHandler{}
}

// Stream 建立 SSE 长连接，断开时注销客户端
func (h *SSEHandler) Stream(c *gin.Context) {
	actor := GetActor(c)

	client := &sse.Client{
		ID:     uuid.New().String(),
		UserID: actor.UserID,
		Events: make(chan sse.Event, 16),
	}
	sse.GlobalHub.Register(client)
	defer sse.GlobalHub.Unregister(client.ID)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("connected", fmt.Sprintf(`{"client_id":"%s"}`, client.ID))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
