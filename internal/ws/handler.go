package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/boundary"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/transport"
)

// Built-in message types.
const (
	TypePing    = "ping"
	TypePong    = "pong"
	TypeContext = "context"
	TypeError   = "error"
	TypeSystem  = "system"
)

// Envelope is one websocket message. Metadata carries the scope using the
// messaging key spellings.
type Envelope struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	ReplyTo  string            `json:"reply_to,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  any               `json:"payload,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// MessageFunc handles one message inside its own scope and returns the reply
// payload.
type MessageFunc func(ctx context.Context, t *operation.Tracker, msg Envelope) (any, error)

// Handler manages WebSocket connections
type Handler struct {
	runner  *boundary.Runner
	mapper  *transport.MessagingMapper
	factory *operation.ChildFactory
	metrics *monitoring.Metrics

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	handlers map[string]MessageFunc
}

// NewHandler creates a websocket handler with the ping and context
// handlers registered. metrics may be nil.
func NewHandler(runner *boundary.Runner, mapper *transport.MessagingMapper, factory *operation.ChildFactory, metrics *monitoring.Metrics) *Handler {
	h := &Handler{
		runner:   runner,
		mapper:   mapper,
		factory:  factory,
		metrics:  metrics,
		handlers: make(map[string]MessageFunc),
	}
	h.AllowOrigins([]string{"*"})
	h.Handle(TypePing, func(context.Context, *operation.Tracker, Envelope) (any, error) {
		return nil, nil
	})
	h.Handle(TypeContext, func(ctx context.Context, _ *operation.Tracker, _ Envelope) (any, error) {
		sc, err := scope.FromContext(ctx)
		if err != nil {
			return nil, err
		}
		return sc.Snapshot()
	})
	return h
}

// AllowOrigins restricts the Origin header accepted on upgrade. "*" allows
// every origin; requests without an Origin header are always accepted.
func (h *Handler) AllowOrigins(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// Handle registers fn for msgType, replacing any previous handler.
func (h *Handler) Handle(msgType string, fn MessageFunc) {
	h.mu.Lock()
	h.handlers[msgType] = fn
	h.mu.Unlock()
}

func (h *Handler) lookup(msgType string) (MessageFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[msgType]
	return fn, ok
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	log := h.runner.Logger()
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	connCtx := c.Request.Context()

	h.write(conn, Envelope{Type: TypeSystem, Payload: gin.H{"node_id": h.runner.Identity().NodeID}})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg Envelope
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.write(conn, Envelope{Type: TypeError, Error: "malformed message"})
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordMessage("in", msg.Type)
		}
		h.write(conn, h.dispatch(connCtx, msg))
	}
}

// dispatch runs msg in its own scope and builds the reply. The reply carries
// a child of the message scope so the sender sees this operation as its cause.
func (h *Handler) dispatch(ctx context.Context, msg Envelope) Envelope {
	reply := Envelope{Type: replyType(msg.Type), ReplyTo: msg.ID}

	err := h.runner.Run(ctx, boundary.KindMessage, "message:"+msg.Type,
		func(sc *scope.Context) error {
			return h.mapper.Initialize(sc, msg.Metadata, ctx)
		},
		func(ctx context.Context, t *operation.Tracker) error {
			reply.Metadata = h.replyMetadata(ctx)

			fn, ok := h.lookup(msg.Type)
			if !ok {
				return fmt.Errorf("unknown message type %q", msg.Type)
			}
			payload, err := fn(ctx, t, msg)
			if err != nil {
				return err
			}
			reply.Payload = payload
			return nil
		},
	)
	if err != nil {
		reply.Type = TypeError
		reply.Payload = nil
		reply.Error = err.Error()
	}
	return reply
}

func (h *Handler) replyMetadata(ctx context.Context) map[string]string {
	child, err := h.factory.ForContext(ctx, "")
	if err != nil {
		return nil
	}
	defer child.MarkDisposed()

	md := make(map[string]string)
	if err := h.mapper.Inject(md, child); err != nil {
		return nil
	}
	return md
}

func (h *Handler) write(conn *websocket.Conn, msg Envelope) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.runner.Logger().Error("Failed to encode websocket message", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.runner.Logger().Debug("WebSocket write failed", zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.RecordMessage("out", msg.Type)
	}
}

func replyType(msgType string) string {
	if msgType == TypePing {
		return TypePong
	}
	return msgType + ".reply"
}
