// Package hub serves the live listing channel: every websocket is one page
// view with its own listing controller and chat session.
package hub

import (
	"context"
	"sync"
	"time"

	"newstech/pkg/api"
	"newstech/pkg/chat"
	"newstech/pkg/envelope"
	"newstech/pkg/listing"
	"newstech/pkg/models"
	"newstech/pkg/render"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Socket is the part of a websocket connection the hub needs.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type ActionHandler func(c *Conn, env envelope.Envelope)

type Deps struct {
	Backend  api.Backend
	Renderer *render.Renderer
	Prober   listing.Prober
	Asker    chat.Asker
	PerPage  int
	Debounce time.Duration
}

// Start is the state a view connects with.
type Start struct {
	Query       models.Query
	Credentials string
}

type Hub struct {
	deps Deps
	log  *zap.Logger

	mu       sync.RWMutex
	conns    map[string]*Conn
	handlers map[string]ActionHandler
}

func New(deps Deps, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		deps:     deps,
		log:      log,
		conns:    make(map[string]*Conn),
		handlers: make(map[string]ActionHandler),
	}
	h.registerDefaults()
	return h
}

func (h *Hub) On(action string, fn ActionHandler) {
	h.mu.Lock()
	h.handlers[action] = fn
	h.mu.Unlock()
}

func (h *Hub) handler(action string) (ActionHandler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.handlers[action]
	return fn, ok
}

// Serve runs one view until the socket closes. It renders the starting
// query right away.
func (h *Hub) Serve(sock Socket, st Start) {
	ctx, cancel := context.WithCancel(api.WithCredentials(context.Background(), st.Credentials))
	c := &Conn{
		id:     uuid.NewString(),
		sock:   sock,
		ctx:    ctx,
		cancel: cancel,
		log:    h.log,
	}
	c.log = h.log.With(zap.String("conn", c.id))

	q := st.Query.Normalized(h.deps.PerPage)
	c.ctrl = listing.New(h.deps.Backend, listing.ViewFunc(func(res listing.Result) { h.push(c, res) }), h.deps.PerPage,
		listing.WithContext(ctx),
		listing.WithQuery(q),
		listing.WithDebounce(h.deps.Debounce),
		listing.WithProber(h.deps.Prober),
		listing.WithLogger(c.log),
	)
	if h.deps.Asker != nil {
		c.chat = chat.NewSession(h.deps.Asker)
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	c.log.Info("view connected", zap.Int("total", h.ClientCount()))

	defer func() {
		h.mu.Lock()
		delete(h.conns, c.id)
		h.mu.Unlock()
		c.close()
		c.log.Info("view disconnected", zap.Int("total", h.ClientCount()))
	}()

	c.ctrl.Refresh()

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Unmarshal(raw)
		if err != nil {
			c.sendEnvelope(envelope.NewError(envelope.Envelope{}, "error", 400, "JSON inválido"))
			continue
		}
		env.Source = c.id

		if env.Action == "ping" {
			pong := envelope.New("pong", c.id)
			pong.ReplyTo = env.ID
			c.sendEnvelope(pong)
			continue
		}

		fn, ok := h.handler(env.Action)
		if !ok {
			c.sendEnvelope(envelope.NewError(env, "error", 404, "ação não encontrada: "+env.Action))
			continue
		}
		fn(c, env)
	}
}

// push sends a finished load to the view as a rendered fragment.
func (h *Hub) push(c *Conn, res listing.Result) {
	frag := h.deps.Renderer.Fragment(res.Query, res.Page, res.Probes, res.Err)
	html, err := h.deps.Renderer.FragmentHTML(frag)
	if err != nil {
		c.log.Error("fragment render failed", zap.Error(err))
		return
	}
	c.send(ActionRender, RenderPayload{
		HTML:  html,
		Query: res.Query.PageValues(res.Query.Page).Encode(),
	})
}

// PostsChanged refreshes every connected view.
func (h *Hub) PostsChanged(ctx context.Context, postID int, action string) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.log.Debug("posts changed, refreshing views",
		zap.Int("post_id", postID), zap.String("action", action), zap.Int("views", len(conns)))
	for _, c := range conns {
		c.ctrl.Refresh()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every view.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		c.sock.Close()
	}
}

// Conn is one connected view.
type Conn struct {
	id     string
	sock   Socket
	ctx    context.Context
	cancel context.CancelFunc
	ctrl   *listing.Controller
	chat   *chat.Session
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Controller() *listing.Controller { return c.ctrl }

func (c *Conn) send(action string, payload interface{}) {
	env, err := envelope.NewEvent(action, c.id, payload)
	if err != nil {
		c.log.Error("marshal failed", zap.String("action", action), zap.Error(err))
		return
	}
	c.sendEnvelope(env)
}

func (c *Conn) sendEnvelope(env envelope.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("send failed", zap.String("action", env.Action), zap.Error(err))
	}
}

func (c *Conn) close() {
	c.cancel()
	if c.chat != nil {
		c.chat.Cancel()
	}
	c.ctrl.Close()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.sock.Close()
}
