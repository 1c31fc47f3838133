package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/auth"
	redisutil "sticker-studio-server/modules/common/redis"
)

const (
	sendBuffer     = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// 기본 CheckOrigin(동일 origin만 허용) 사용
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// 연결된 클라이언트 정보
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Stats - 허브 메트릭
type Stats struct {
	Users            int       `json:"users"`
	Connections      int       `json:"connections"`
	TotalConnections int       `json:"totalConnections"`
	Delivered        int       `json:"delivered"`
	Dropped          int       `json:"dropped"`
	StartTime        time.Time `json:"startTime"`
	Uptime           string    `json:"uptime"`
}

// Hub groups websocket clients per user and fans events out to them.
type Hub struct {
	mu        sync.Mutex
	clients   map[string]map[*client]struct{}
	total     int
	delivered int
	dropped   int
	startTime time.Time
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]map[*client]struct{}),
		startTime: time.Now(),
	}
}

// RegisterRoutes - /ws, /metrics 모두 인증 미들웨어 뒤에 등록
func (h *Hub) RegisterRoutes(r *mux.Router, requireUser mux.MiddlewareFunc) {
	r.Handle("/ws", requireUser(http.HandlerFunc(h.ServeWS))).Methods(http.MethodGet)
	r.Handle("/metrics", requireUser(http.HandlerFunc(h.ServeStats))).Methods(http.MethodGet)
	log.Info().Msg("✅ Notify routes registered: /ws, /metrics")
}

// ServeWS - WebSocket 연결 업그레이드
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  WebSocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, userID: user.UserID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.total++
	count := len(set)
	h.mu.Unlock()

	log.Info().Str("user_id", c.userID).Int("user_connections", count).Msg("👤 WebSocket client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the client's send channel at most once. Caller holds h.mu.
func (h *Hub) removeLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	log.Info().Str("user_id", c.userID).Msg("👋 WebSocket client disconnected")
}

// Deliver sends ev to every socket of ev.UserID and returns how many received it.
// Clients whose buffer is full are dropped.
func (h *Hub) Deliver(ev Event) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to marshal event")
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for c := range h.clients[ev.UserID] {
		select {
		case c.send <- payload:
			sent++
		default:
			h.dropped++
			h.removeLocked(c)
		}
	}
	h.delivered += sent
	return sent
}

// Run - Redis 이벤트 채널 구독, ctx 종료까지 Deliver
func (h *Hub) Run(ctx context.Context, rdb *redis.Client) error {
	pubsub := rdb.Subscribe(ctx, redisutil.EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info().Str("channel", redisutil.EventsChannel).Msg("👀 Subscribed to generation events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("⚠️  Ignoring malformed event")
				continue
			}
			n := h.Deliver(ev)
			log.Debug().Str("type", ev.Type).Str("generation_id", ev.GenerationID).Int("sockets", n).Msg("📢 Event delivered")
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := 0
	for _, set := range h.clients {
		conns += len(set)
	}
	return Stats{
		Users:            len(h.clients),
		Connections:      conns,
		TotalConnections: h.total,
		Delivered:        h.delivered,
		Dropped:          h.dropped,
		StartTime:        h.startTime,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
	}
}

// ServeStats - GET /metrics
func (h *Hub) ServeStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Stats())
}

// 클라이언트 메시지는 무시하고 연결 종료만 감지
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("⚠️  WebSocket error")
			}
			return
		}
	}
}

// 클라이언트로 메시지 쓰기
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("⚠️  WebSocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
