package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/shop-core/internal/domain"
	"github.com/example/shop-core/pkg/metrics"
)

// Envelope — проводной формат события: {type, data, timestamp}.
type Envelope struct {
	Type      domain.EventType `json:"type"`
	Data      json.RawMessage  `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// Encode переводит типизированное доменное событие в проводной конверт.
func Encode(ev domain.Event) (Envelope, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return Envelope{Type: ev.Type, Data: data, Timestamp: ev.At}, nil
}

// Identity — аутентифицированная личность соединения.
type Identity struct {
	CustomerID domain.CustomerID
	Admin      bool
}

// Client — подключённый получатель. Deliver не блокируется; false
// означает переполненный буфер, хаб отключает такого клиента. Close
// обрывает транспорт, чтобы клиент узнал об отключении и переподключился.
type Client interface {
	ID() string
	Identity() Identity
	Deliver(env Envelope) bool
	Close()
}

const RoomAdmin = "admin"

func CustomerRoom(id domain.CustomerID) string { return "customer:" + string(id) }
func OrderRoom(id domain.OrderID) string       { return "order:" + string(id) }
func ServiceRoom(id string) string             { return "service:" + id }

type joinReq struct {
	clientID string
	room     string
}

type emitReq struct {
	rooms []string
	all   bool
	env   Envelope
}

type countReq struct {
	adminOnly bool
	reply     chan int
}

type roomInfoReq struct {
	reply chan map[string][]string
}

// Hub владеет состоянием комнат из единственной горутины; все операции
// идут через каналы. Доставка at-most-once, без журнала и повторов.
type Hub struct {
	log *zap.Logger
	met *metrics.CoreMetrics

	backplane BackplanePublisher // nil допустим

	register   chan Client
	unregister chan string
	join       chan joinReq
	leave      chan joinReq
	emits      chan emitReq
	counts     chan countReq
	roomInfos  chan roomInfoReq
	done       chan struct{}

	clients     map[string]Client
	rooms       map[string]map[string]struct{}
	clientRooms map[string]map[string]struct{}
}

// BackplanePublisher — публикация конвертов другим экземплярам.
type BackplanePublisher interface {
	Publish(rooms []string, all bool, env Envelope)
}

func NewHub(log *zap.Logger, met *metrics.CoreMetrics) *Hub {
	return &Hub{
		log:         log,
		met:         met,
		register:    make(chan Client),
		unregister:  make(chan string),
		join:        make(chan joinReq),
		leave:       make(chan joinReq),
		emits:       make(chan emitReq, 64),
		counts:      make(chan countReq),
		roomInfos:   make(chan roomInfoReq),
		done:        make(chan struct{}),
		clients:     make(map[string]Client),
		rooms:       make(map[string]map[string]struct{}),
		clientRooms: make(map[string]map[string]struct{}),
	}
}

// AttachBackplane подключает публикацию в общий pub/sub слой. Вызывать до Run.
func (h *Hub) AttachBackplane(p BackplanePublisher) { h.backplane = p }

// Run обслуживает хаб до закрытия stop. Запускать в отдельной горутине.
func (h *Hub) Run(stop <-chan struct{}) {
	defer close(h.done)
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.clients[c.ID()] = c
			h.gaugeClients()
		case id := <-h.unregister:
			h.drop(id)
		case req := <-h.join:
			if _, ok := h.clients[req.clientID]; !ok {
				continue
			}
			members, ok := h.rooms[req.room]
			if !ok {
				members = make(map[string]struct{})
				h.rooms[req.room] = members
			}
			members[req.clientID] = struct{}{}
			joined, ok := h.clientRooms[req.clientID]
			if !ok {
				joined = make(map[string]struct{})
				h.clientRooms[req.clientID] = joined
			}
			joined[req.room] = struct{}{}
		case req := <-h.leave:
			h.leaveRoom(req.clientID, req.room)
		case req := <-h.emits:
			h.fanOut(req)
		case req := <-h.counts:
			n := 0
			for _, c := range h.clients {
				if !req.adminOnly || c.Identity().Admin {
					n++
				}
			}
			req.reply <- n
		case req := <-h.roomInfos:
			info := make(map[string][]string, len(h.rooms))
			for room, members := range h.rooms {
				ids := make([]string, 0, len(members))
				for id := range members {
					ids = append(ids, id)
				}
				info[room] = ids
			}
			req.reply <- info
		}
	}
}

func (h *Hub) fanOut(req emitReq) {
	targets := make(map[string]Client)
	if req.all {
		for id, c := range h.clients {
			targets[id] = c
		}
	} else {
		for _, room := range req.rooms {
			for id := range h.rooms[room] {
				if c, ok := h.clients[id]; ok {
					targets[id] = c
				}
			}
		}
	}
	for id, c := range targets {
		if c.Deliver(req.env) {
			if h.met != nil {
				h.met.EventsDelivered.Inc()
			}
			continue
		}
		// медленный или умерший клиент: отключаем, событие потеряно
		h.log.Warn("dropping slow client", zap.String("client_id", id), zap.String("event", string(req.env.Type)))
		if h.met != nil {
			h.met.EventsDropped.Inc()
		}
		h.drop(id)
	}
}

func (h *Hub) drop(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	for room := range h.clientRooms[id] {
		h.leaveRoom(id, room)
	}
	delete(h.clients, id)
	delete(h.clientRooms, id)
	h.gaugeClients()
	// обрываем транспорт: молча висящее соединение не узнало бы, что
	// события больше не приходят
	c.Close()
}

func (h *Hub) leaveRoom(clientID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.clientRooms[clientID]; ok {
		delete(joined, room)
	}
}

func (h *Hub) gaugeClients() {
	if h.met != nil {
		h.met.ConnectedGauge.Set(float64(len(h.clients)))
	}
}

// Register подключает клиента; комнаты он выбирает сам через Join.
func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(clientID string) {
	select {
	case h.unregister <- clientID:
	case <-h.done:
	}
}

func (h *Hub) Join(clientID, room string) {
	select {
	case h.join <- joinReq{clientID: clientID, room: room}:
	case <-h.done:
	}
}

func (h *Hub) Leave(clientID, room string) {
	select {
	case h.leave <- joinReq{clientID: clientID, room: room}:
	case <-h.done:
	}
}

func (h *Hub) emit(rooms []string, all bool, env Envelope, localOnly bool) {
	select {
	case h.emits <- emitReq{rooms: rooms, all: all, env: env}:
	case <-h.done:
		return
	}
	if !localOnly && h.backplane != nil {
		h.backplane.Publish(rooms, all, env)
	}
}

// EmitLocal доставляет конверт только локальным клиентам; используется
// backplane-подписчиком, чтобы не зациклить публикацию.
func (h *Hub) EmitLocal(rooms []string, all bool, env Envelope) {
	h.emit(rooms, all, env, true)
}

func (h *Hub) EmitToAll(ev domain.Event) {
	h.send(nil, true, ev)
}

func (h *Hub) EmitToAdmin(ev domain.Event) {
	h.send([]string{RoomAdmin}, false, ev)
}

func (h *Hub) EmitToCustomer(id domain.CustomerID, ev domain.Event) {
	h.send([]string{CustomerRoom(id)}, false, ev)
}

func (h *Hub) EmitToOrder(id domain.OrderID, ev domain.Event) {
	h.send([]string{OrderRoom(id)}, false, ev)
}

func (h *Hub) EmitToServiceRequest(id string, ev domain.Event) {
	h.send([]string{ServiceRoom(id)}, false, ev)
}

func (h *Hub) send(rooms []string, all bool, ev domain.Event) {
	env, err := Encode(ev)
	if err != nil {
		h.log.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	h.emit(rooms, all, env, false)
}

func (h *Hub) ConnectedClientsCount() int {
	req := countReq{reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) AdminClientsCount() int {
	req := countReq{adminOnly: true, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// RoomInfo — состав комнат для мониторинга.
func (h *Hub) RoomInfo() map[string][]string {
	req := roomInfoReq{reply: make(chan map[string][]string, 1)}
	select {
	case h.roomInfos <- req:
		return <-req.reply
	case <-h.done:
		return map[string][]string{}
	}
}
