package realtime

import (
	"io"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Stream is a channel-backed subscriber for one SSE response.
type Stream struct {
	events chan transfer.StatusEvent
	done   chan struct{}
	once   sync.Once
}

func NewStream(buffer int) *Stream {
	return &Stream{
		events: make(chan transfer.StatusEvent, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Stream) Send(event transfer.StatusEvent) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *Stream) Close() {
	s.once.Do(func() { close(s.done) })
}

// ServeSSE streams events for transactionID until the client goes away or
// the stream is dropped. initial, the current projection, is sent first.
func ServeSSE(c *gin.Context, hub *Hub, transactionID string, initial transfer.StatusEvent) {
	stream := NewStream(sendBuffer)
	hub.Subscribe(transactionID, stream)
	defer func() {
		hub.RemoveSubscriber(stream)
		stream.Close()
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(string(initial.Type), initial)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-stream.done:
			return false
		case ev := <-stream.events:
			c.SSEvent(string(ev.Type), ev)
			return true
		}
	})
}
