package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	registryapp "github.com/storefleet/backend/internal/application/registry"
	"github.com/storefleet/backend/internal/infrastructure/monitor"
	"github.com/storefleet/backend/internal/infrastructure/telemetry"
)

// SSEClient represents a connected event stream client
type SSEClient struct {
	ID   string
	Done chan struct{}
}

// SSEMessage represents a message sent to event stream clients
type SSEMessage struct {
	Event string `json:"event"`
	Data  string `json:"data"`
	ID    string `json:"id,omitempty"`
}

// MonitorStreamHandler bridges the registry and monitor observer registries to
// the browser over Server-Sent Events. Each connection holds its own
// subscription to both sources; the first connection starts the sweep ticker
// and the last disconnect stops it.
type MonitorStreamHandler struct {
	BaseHandler
	stores     *registryapp.StoreService
	monitor    *monitor.HealthMonitor
	metrics    *telemetry.FleetMetrics
	logger     *zap.Logger
	clients    sync.Map // map[string]*SSEClient
	ctx        context.Context
	cancel     context.CancelFunc
	heartbeat  time.Duration
	maxClients int
}

// MonitorStreamOption is a functional option for configuring the handler
type MonitorStreamOption func(*MonitorStreamHandler)

// WithStreamLogger sets the logger for the handler
func WithStreamLogger(logger *zap.Logger) MonitorStreamOption {
	return func(h *MonitorStreamHandler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) MonitorStreamOption {
	return func(h *MonitorStreamHandler) {
		h.heartbeat = interval
	}
}

// WithStreamMaxClients sets the maximum number of concurrent stream clients
func WithStreamMaxClients(max int) MonitorStreamOption {
	return func(h *MonitorStreamHandler) {
		h.maxClients = max
	}
}

// WithStreamMetrics wires the event stream client gauge
func WithStreamMetrics(metrics *telemetry.FleetMetrics) MonitorStreamOption {
	return func(h *MonitorStreamHandler) {
		h.metrics = metrics
	}
}

// NewMonitorStreamHandler creates the SSE handler for store and health events
func NewMonitorStreamHandler(
	stores *registryapp.StoreService,
	healthMonitor *monitor.HealthMonitor,
	opts ...MonitorStreamOption,
) *MonitorStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &MonitorStreamHandler{
		stores:     stores,
		monitor:    healthMonitor,
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
		heartbeat:  30 * time.Second,
		maxClients: 100,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Stop disconnects every client. Connections unsubscribe themselves on exit,
// which stops the sweep ticker once the last one is gone.
func (h *MonitorStreamHandler) Stop() {
	h.cancel()

	h.clients.Range(func(key, value any) bool {
		if client, ok := value.(*SSEClient); ok {
			close(client.Done)
		}
		return true
	})

	h.logger.Info("Monitor stream handler stopped")
}

// Stream establishes the SSE connection. The client receives a connected
// event, the current store list, then stores, health and heartbeat events
// until it disconnects.
func (h *MonitorStreamHandler) Stream(c *gin.Context) {
	if h.maxClients > 0 && h.GetClientCount() >= h.maxClients {
		h.Error(c, http.StatusServiceUnavailable, "MAX_CONNECTIONS_REACHED",
			"Maximum number of event stream connections reached")
		return
	}

	// Set SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := &SSEClient{
		ID:   uuid.New().String(),
		Done: make(chan struct{}),
	}

	h.clients.Store(client.ID, client)
	defer h.clients.Delete(client.ID)

	if h.metrics != nil {
		h.metrics.AddEventStreamClient(c.Request.Context())
		defer h.metrics.RemoveEventStreamClient(context.Background())
	}

	// Each connection owns a subscription to both observer registries. The
	// subscription channels are the per-client buffers; broadcasts drop on
	// full rather than blocking.
	storesSubID, storesCh := h.stores.Subscribe()
	defer h.stores.Unsubscribe(storesSubID)

	healthSubID, healthCh := h.monitor.Subscribe()
	defer h.monitor.Unsubscribe(healthSubID)

	h.logger.Info("Event stream client connected",
		zap.String("client_id", client.ID))
	defer h.logger.Info("Event stream client disconnected",
		zap.String("client_id", client.ID))

	h.sendEvent(c.Writer, SSEMessage{
		Event: "connected",
		Data:  fmt.Sprintf(`{"client_id":"%s","timestamp":%d}`, client.ID, time.Now().Unix()),
	})
	c.Writer.Flush()

	// Initial snapshot so the dashboard renders without a separate fetch
	if msg, ok := h.storeListMessage(c.Request.Context()); ok {
		h.sendEvent(c.Writer, msg)
		c.Writer.Flush()
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-client.Done:
			return
		case <-h.ctx.Done():
			return
		case stores, ok := <-storesCh:
			if !ok {
				return
			}
			data, err := json.Marshal(toStoreResponses(stores))
			if err != nil {
				h.logger.Error("Failed to marshal store list event", zap.Error(err))
				continue
			}
			h.sendEvent(c.Writer, SSEMessage{Event: "stores", Data: string(data)})
			c.Writer.Flush()
		case transition, ok := <-healthCh:
			if !ok {
				return
			}
			data, err := json.Marshal(transition)
			if err != nil {
				h.logger.Error("Failed to marshal health event", zap.Error(err))
				continue
			}
			h.sendEvent(c.Writer, SSEMessage{Event: "health", Data: string(data)})
			c.Writer.Flush()
		case <-ticker.C:
			h.sendEvent(c.Writer, SSEMessage{
				Event: "heartbeat",
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
			c.Writer.Flush()
		}
	}
}

// Stats reports monitor introspection for the operations view.
func (h *MonitorStreamHandler) Stats(c *gin.Context) {
	h.Success(c, h.monitor.Stats(c.Request.Context()))
}

// storeListMessage builds the stores event carrying the full current list
func (h *MonitorStreamHandler) storeListMessage(ctx context.Context) (SSEMessage, bool) {
	stores, err := h.stores.ListStores(ctx)
	if err != nil {
		h.logger.Error("Failed to load store list for stream snapshot", zap.Error(err))
		return SSEMessage{}, false
	}

	data, err := json.Marshal(toStoreResponses(stores))
	if err != nil {
		h.logger.Error("Failed to marshal store list event", zap.Error(err))
		return SSEMessage{}, false
	}

	return SSEMessage{Event: "stores", Data: string(data)}, true
}

// sendEvent writes an SSE event to the response writer
func (h *MonitorStreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

// GetClientCount returns the number of connected stream clients
func (h *MonitorStreamHandler) GetClientCount() int {
	count := 0
	h.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
