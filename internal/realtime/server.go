package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	// Origin is enforced at the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	hub *Hub
	rdb *redis.Client
	log *log.Logger
}

func NewServer(hub *Hub, rdb *redis.Client, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{hub: hub, rdb: rdb, log: logger}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/ws", s.handleWS)

	return r
}

// RunSubscriber consumes the broadcast channel and routes each event to
// its room. Returns when ctx is cancelled.
func (s *Server) RunSubscriber(ctx context.Context, channel string) {
	if channel == "" {
		channel = "broadcast"
	}
	sub := s.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.hub.broadcast <- Message{
				RoomID: roomOf([]byte(msg.Payload)),
				Data:   []byte(msg.Payload),
			}
		}
	}
}

// roomOf extracts payload.roomId from an event envelope so the hub can
// route it. Events without one are broadcast to every room.
func roomOf(data []byte) string {
	var envelope struct {
		Payload struct {
			RoomID string `json:"roomId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ""
	}
	return envelope.Payload.RoomID
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}
	userID := r.Header.Get("X-User-Id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("ws upgrade", "err", err)
		return
	}

	client := &Client{
		hub:       s.hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: uuid.NewString(),
		roomID:    roomID,
		userID:    userID,
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type": "welcome",
		"payload": map[string]any{
			"sessionId": client.sessionID,
			"roomId":    roomID,
			"now":       time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}

func encodePresence(roomID string, users []string) []byte {
	b, err := json.Marshal(map[string]any{
		"type": "presence",
		"payload": map[string]any{
			"roomId": roomID,
			"users":  users,
		},
	})
	if err != nil {
		return nil
	}
	return b
}
