package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 32
)

// Служебные типы конвертов подписочного протокола.
const (
	frameRoomJoined = "room_joined"
	frameRoomLeft   = "room_left"
	frameError      = "error"
)

// clientCommand — входящее сообщение клиента: подписка на комнаты.
type clientCommand struct {
	Action string `json:"action"` // join | leave
	Room   string `json:"room"`
}

type ackFrame struct {
	Room  string `json:"room"`
	Error string `json:"error,omitempty"`
}

// WSClient — адаптер websocket-соединения к хабу: одна горутина на
// чтение команд, одна на запись конвертов.
type WSClient struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan Envelope
	hub      *Hub
	auth     Authorizer
	log      *zap.Logger
}

func NewWSClient(hub *Hub, auth Authorizer, conn *websocket.Conn, identity Identity, log *zap.Logger) *WSClient {
	return &WSClient{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan Envelope, sendBuffer),
		hub:      hub,
		auth:     auth,
		log:      log,
	}
}

func (c *WSClient) ID() string         { return c.id }
func (c *WSClient) Identity() Identity { return c.identity }

// Close обрывает соединение; обе насосные горутины завершаются на ошибке
// чтения/записи.
func (c *WSClient) Close() { _ = c.conn.Close() }

// Deliver — неблокирующая постановка в буфер; false при переполнении.
func (c *WSClient) Deliver(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Start регистрирует клиента и запускает обе насосные горутины.
func (c *WSClient) Start(ctx context.Context) {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump(ctx)
}

func (c *WSClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c.id)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		switch cmd.Action {
		case "join":
			if err := c.auth.CanJoin(ctx, c.identity, cmd.Room); err != nil {
				c.ack(frameError, ackFrame{Room: cmd.Room, Error: err.Error()})
				continue
			}
			c.hub.Join(c.id, cmd.Room)
			c.ack(frameRoomJoined, ackFrame{Room: cmd.Room})
		case "leave":
			c.hub.Leave(c.id, cmd.Room)
			c.ack(frameRoomLeft, ackFrame{Room: cmd.Room})
		default:
			c.ack(frameError, ackFrame{Error: "unknown action"})
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) ack(kind string, frame ackFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.Deliver(Envelope{Type: domain.EventType(kind), Data: data, Timestamp: time.Now().UTC()})
}
