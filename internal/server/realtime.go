package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/invalidation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sseEventReady      = "ready"
	sseEventInvalidate = "invalidate"
	sseEventHeartbeat  = "heartbeat"

	defaultHeartbeatInterval = 25 * time.Second
	subscriberBufferSize     = 16
)

// InvalidationDispatcher fans invalidation events out to the SSE streams of this process.
// Each subscriber only sees the resources it may know about.
type InvalidationDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*invalidationSubscriber
	nextID      int64
	bufferSize  int
}

type invalidationSubscriber struct {
	id     int64
	viewer domain.UserID
	stream chan invalidation.Event
}

func NewInvalidationDispatcher() *InvalidationDispatcher {
	return &InvalidationDispatcher{
		subscribers: make(map[int64]*invalidationSubscriber),
		bufferSize:  subscriberBufferSize,
	}
}

// Subscribe registers a stream for viewer until ctx ends or the returned cleanup runs.
// Anonymous viewers receive public resources only.
func (d *InvalidationDispatcher) Subscribe(ctx context.Context, viewer domain.UserID) (<-chan invalidation.Event, func()) {
	subscriber := &invalidationSubscriber{
		viewer: viewer,
		stream: make(chan invalidation.Event, d.bufferSize),
	}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers event to every subscriber allowed to see part of it. Slow subscribers
// miss events rather than block the publisher.
func (d *InvalidationDispatcher) Publish(event invalidation.Event) {
	if len(event.Resources) == 0 {
		return
	}
	d.mu.RLock()
	copies := make([]*invalidationSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		visible, ok := event.VisibleTo(subscriber.viewer)
		if !ok {
			continue
		}
		select {
		case subscriber.stream <- visible:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *InvalidationDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.realtime == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorPayload{Error: string(domain.KindNotFound), Code: "http.events.disabled"})
		return
	}
	viewer := actorOf(c)
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, viewer)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(sseEventReady, gin.H{"origin": h.origin})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(sseEventInvalidate, event)
			return true
		case now := <-ticker.C:
			c.SSEvent(sseEventHeartbeat, gin.H{"at": now.UTC().Unix()})
			return true
		}
	})
}

// announce publishes a mutation's affected set locally and to other instances.
func (h *httpHandler) announce(c *gin.Context, affected domain.Affected) {
	if affected.Len() == 0 {
		return
	}
	event := invalidation.NewEvent(h.origin, actorOf(c), affected, h.now())
	if h.realtime != nil {
		h.realtime.Publish(event)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
			h.logger.Warn("invalidation publish failed",
				zap.Strings("resources", affected.Strings()),
				zap.Error(err),
			)
		}
	}
}
