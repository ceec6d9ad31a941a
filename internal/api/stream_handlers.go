package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/onnwee/gpfinder/internal/middleware"
	"github.com/onnwee/gpfinder/internal/search"
)

// Stream message types.
const (
	// MessageSearch starts a pass at a new location.
	MessageSearch = "search"
	// MessageIncludePrivate re-runs the last search with a new include_private value.
	MessageIncludePrivate = "include_private"

	EventSearching = "searching"
	EventResults   = "results"
	EventError     = "error"
)

// Socket timings.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// streamMessage is a client frame on /search/stream.
type streamMessage struct {
	Type           string   `json:"type"`
	Lat            *float64 `json:"lat,omitempty"`
	Lng            *float64 `json:"lng,omitempty"`
	IncludePrivate *bool    `json:"include_private,omitempty"`
}

// StreamEvent is a server frame on /search/stream.
type StreamEvent struct {
	Type       string          `json:"type"`
	Generation uint64          `json:"generation"`
	Results    *SearchResponse `json:"results,omitempty"`
	Error      *ErrorDetail    `json:"error,omitempty"`
}

// StreamHandlers serves the streaming search socket. Each connection owns a
// search.Session, so a new location or a flipped include_private supersedes
// the pass in flight and only the latest pass is ever delivered.
type StreamHandlers struct {
	searcher      search.Searcher
	upgrader      websocket.Upgrader
	validator     *validator.Validate
	logger        *slog.Logger
	metrics       *middleware.Metrics
	searchMetrics *search.Metrics
	now           func() time.Time

	limitStore middleware.RateLimitStore
	limit      middleware.RateLimitConfig
	keyFunc    middleware.KeyFunc
}

// NewStreamHandlers creates a StreamHandlers. Upgrades are accepted from
// allowedOrigins; when it is empty only same-origin upgrades succeed.
func NewStreamHandlers(searcher search.Searcher, allowedOrigins []string, logger *slog.Logger) *StreamHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandlers{
		searcher: searcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		validator: newValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics sets the connection gauge and the per-session search metrics.
func (h *StreamHandlers) SetMetrics(m *middleware.Metrics, sm *search.Metrics) {
	h.metrics = m
	h.searchMetrics = sm
}

// SetRateLimit applies cfg to every search message, keyed like the HTTP limiter.
func (h *StreamHandlers) SetRateLimit(store middleware.RateLimitStore, cfg middleware.RateLimitConfig, keyFunc middleware.KeyFunc) {
	h.limitStore = store
	h.limit = cfg
	h.keyFunc = keyFunc
}

// originChecker returns nil (gorilla's same-origin check) for an empty list.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

// streamConn serializes writes to one socket.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) send(ev StreamEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

// Stream handles GET /search/stream.
func (h *StreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	requestID := middleware.GetRequestID(ctx)
	logger := h.logger.With(slog.String("request_id", requestID))
	sc := &streamConn{conn: conn}

	session := search.NewSession(h.searcher, search.PublisherFunc(func(ctx context.Context, o search.Outcome) {
		h.publish(ctx, logger, sc, o)
	}), logger)
	if h.searchMetrics != nil {
		session.SetMetrics(h.searchMetrics)
	}

	if h.metrics != nil {
		h.metrics.StreamOpened()
	}
	logger.InfoContext(ctx, "search stream opened")

	var passes sync.WaitGroup
	done := make(chan struct{})
	go h.keepAlive(sc, done)

	defer func() {
		session.Close()
		cancel()
		passes.Wait()
		close(done)
		_ = conn.Close()
		if h.metrics != nil {
			h.metrics.StreamClosed()
		}
		logger.InfoContext(r.Context(), "search stream closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "search stream closed unexpectedly", "error", err)
			}
			return
		}

		q, kind, code, message := h.resolve(session, data)
		if code != "" {
			h.countMessage(kind, middleware.StreamRejected)
			h.sendError(ctx, logger, sc, session.Current(), code, message)
			continue
		}
		if !h.allow(r) {
			h.countMessage(kind, middleware.StreamRateLimited)
			h.sendError(ctx, logger, sc, session.Current(), ErrCodeRateLimited, "Too many searches. Please wait and try again.")
			continue
		}
		h.countMessage(kind, middleware.StreamAccepted)

		passCtx, gen := session.Begin(ctx, q)
		if err := sc.send(StreamEvent{Type: EventSearching, Generation: gen}); err != nil {
			logger.DebugContext(ctx, "failed to write stream event", "error", err)
			return
		}
		passes.Add(1)
		go func() {
			defer passes.Done()
			res, err := h.searcher.Search(passCtx, q)
			_, _ = session.Commit(ctx, gen, q, res, err)
		}()
	}
}

// resolve turns a client frame into a query. kind is the frame's metric
// label; a non-empty code reports why the frame was rejected.
func (h *StreamHandlers) resolve(session *search.Session, data []byte) (q search.Query, kind, code, message string) {
	kind = "unknown"
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return q, kind, ErrCodeBadRequest, "message must be a JSON object"
	}

	switch msg.Type {
	case MessageSearch:
		req := searchRequest{Lat: msg.Lat, Lng: msg.Lng}
		if msg.IncludePrivate != nil {
			req.IncludePrivate = *msg.IncludePrivate
		}
		if err := h.validator.Struct(req); err != nil {
			return q, msg.Type, ErrCodeValidation, validationMessage(err)
		}
		return req.query(), msg.Type, "", ""
	case MessageIncludePrivate:
		if msg.IncludePrivate == nil {
			return q, msg.Type, ErrCodeValidation, "validation error: include_private - required"
		}
		last, ok := session.LastQuery()
		if !ok {
			return q, msg.Type, ErrCodeValidation, "search a location before changing include_private"
		}
		last.IncludePrivate = *msg.IncludePrivate
		return last, msg.Type, "", ""
	default:
		return q, kind, ErrCodeBadRequest, "unknown message type"
	}
}

func (h *StreamHandlers) countMessage(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.StreamMessage(kind, outcome)
	}
}

func (h *StreamHandlers) allow(r *http.Request) bool {
	if h.limitStore == nil {
		return true
	}
	allowed, _, _ := h.limitStore.Allow(r.Context(), h.keyFunc(r), h.limit)
	return allowed
}

// publish writes the outcome of a current pass. Cancelled passes are dropped.
func (h *StreamHandlers) publish(ctx context.Context, logger *slog.Logger, sc *streamConn, o search.Outcome) {
	if o.Err != nil {
		if errors.Is(o.Err, context.Canceled) {
			return
		}
		h.sendError(ctx, logger, sc, o.Generation, SearchErrorCode(o.Err), search.UserMessage(o.Err))
		return
	}
	resp := NewSearchResponse(o.Result, h.now())
	if err := sc.send(StreamEvent{Type: EventResults, Generation: o.Generation, Results: &resp}); err != nil {
		logger.DebugContext(ctx, "failed to write stream event", "error", err)
	}
}

func (h *StreamHandlers) sendError(ctx context.Context, logger *slog.Logger, sc *streamConn, gen uint64, code, message string) {
	ev := StreamEvent{
		Type:       EventError,
		Generation: gen,
		Error:      &ErrorDetail{Code: code, Message: message},
	}
	if err := sc.send(ev); err != nil {
		logger.DebugContext(ctx, "failed to write stream event", "error", err)
	}
}

// keepAlive pings the client until done is closed.
func (h *StreamHandlers) keepAlive(sc *streamConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
