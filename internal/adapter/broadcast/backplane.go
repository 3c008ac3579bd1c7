package broadcast

import (
	"context"
	"encoding/json"

	stan "github.com/nats-io/stan.go"
	"go.uber.org/zap"
)

// backplaneMsg — конверт плюс маршрутизация и метка экземпляра-источника,
// чтобы не доставлять собственные публикации повторно.
type backplaneMsg struct {
	Origin string   `json:"origin"`
	Rooms  []string `json:"rooms,omitempty"`
	All    bool     `json:"all,omitempty"`
	Event  Envelope `json:"event"`
}

// StanBackplane — общий pub/sub слой между экземплярами роутера поверх
// NATS Streaming. Доставка между экземплярами такая же fire-and-forget,
// как и клиентам: без durable-имени и без повторов.
type StanBackplane struct {
	sc      stan.Conn
	subject string
	origin  string
	log     *zap.Logger
}

func NewStanBackplane(clusterID, clientID, url, subject, origin string, log *zap.Logger) (*StanBackplane, error) {
	sc, err := stan.Connect(clusterID, clientID, stan.NatsURL(url))
	if err != nil {
		return nil, err
	}
	return &StanBackplane{sc: sc, subject: subject, origin: origin, log: log}, nil
}

// Publish — best-effort: ошибка логируется и не влияет на локальную доставку.
func (b *StanBackplane) Publish(rooms []string, all bool, env Envelope) {
	data, err := json.Marshal(backplaneMsg{Origin: b.origin, Rooms: rooms, All: all, Event: env})
	if err != nil {
		b.log.Error("marshal backplane message", zap.Error(err))
		return
	}
	if err := b.sc.Publish(b.subject, data); err != nil {
		b.log.Warn("backplane publish failed", zap.Error(err))
	}
}

// Start подписывается на поток других экземпляров и ретранслирует их
// события локальным клиентам до отмены ctx.
func (b *StanBackplane) Start(ctx context.Context, hub *Hub) error {
	sub, err := b.sc.Subscribe(b.subject, func(m *stan.Msg) {
		b.relay(hub, m.Data)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		_ = b.sc.Close()
	}()
	return nil
}

// relay доставляет чужой конверт локальным клиентам; собственные
// публикации и мусор отбрасываются.
func (b *StanBackplane) relay(hub *Hub, data []byte) {
	var msg backplaneMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Warn("invalid backplane message", zap.Error(err))
		return
	}
	if msg.Origin == b.origin {
		return
	}
	hub.EmitLocal(msg.Rooms, msg.All, msg.Event)
}
