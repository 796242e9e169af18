package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"studysync-backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub pushes leaderboard refresh events to clients watching a group.
// Each group with at least one connection holds one Redis pub/sub
// subscription; events fan out to every connection on that group.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	auth        *middleware.JWTAuth
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, auth *middleware.JWTAuth) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := h.auth.ParseUserID(tokenStr); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	groupID, err := uuid.Parse(r.URL.Query().Get("group_id"))
	if err != nil {
		http.Error(w, "Invalid group_id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(groupID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(groupID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(groupID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[groupID] = append(h.connections[groupID], conn)

	// First connection for this group starts its pub/sub subscription
	if len(h.connections[groupID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[groupID] = cancel
		go h.subscribe(ctx, groupID)
	}
}

func (h *Hub) unregisterConnection(groupID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[groupID]
	for i, c := range conns {
		if c == conn {
			h.connections[groupID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	conn.Close()

	if len(h.connections[groupID]) == 0 {
		delete(h.connections, groupID)
		if cancel, ok := h.cancelFuncs[groupID]; ok {
			cancel()
			delete(h.cancelFuncs, groupID)
		}
	}
}

func (h *Hub) subscribe(ctx context.Context, groupID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, groupChannel(groupID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(groupID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(groupID uuid.UUID, payload []byte) {
	h.mu.RLock()
	conns := append([]*websocket.Conn(nil), h.connections[groupID]...)
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("WebSocket write failed for group %s: %v", groupID, err)
		}
	}
}

func groupChannel(groupID uuid.UUID) string {
	return "group:" + groupID.String() + ":leaderboard"
}
