package realtime

// Hub owns the set of connected clients, grouped by room, and fans
// messages out to every client of the target room. A message without a
// room goes to everyone.
type Hub struct {
	rooms map[string]map[*Client]bool

	// Inbound messages from the redis subscription.
	broadcast chan Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client
}

// Message is one frame to deliver. RoomID "" means all rooms.
type Message struct {
	RoomID string
	Data   []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			clients := h.rooms[client.roomID]
			if clients == nil {
				clients = make(map[*Client]bool)
				h.rooms[client.roomID] = clients
			}
			clients[client] = true
			h.sendPresence(client.roomID)

		case client := <-h.unregister:
			if clients, ok := h.rooms[client.roomID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					_ = client.conn.Close()
					if len(clients) == 0 {
						delete(h.rooms, client.roomID)
					} else {
						h.sendPresence(client.roomID)
					}
				}
			}

		case msg := <-h.broadcast:
			if msg.RoomID == "" {
				for roomID := range h.rooms {
					h.deliver(roomID, msg.Data)
				}
				continue
			}
			h.deliver(msg.RoomID, msg.Data)
		}
	}
}

func (h *Hub) deliver(roomID string, data []byte) {
	clients := h.rooms[roomID]
	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop it rather than stall the room.
			delete(clients, client)
			close(client.send)
			_ = client.conn.Close()
		}
	}
	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
}

// sendPresence pushes the room's current user list to its members so
// "who's here" stays current without a round trip.
func (h *Hub) sendPresence(roomID string) {
	clients := h.rooms[roomID]
	users := make([]string, 0, len(clients))
	seen := make(map[string]bool, len(clients))
	for client := range clients {
		if client.userID == "" || seen[client.userID] {
			continue
		}
		seen[client.userID] = true
		users = append(users, client.userID)
	}
	data := encodePresence(roomID, users)
	if data == nil {
		return
	}
	h.deliver(roomID, data)
}
