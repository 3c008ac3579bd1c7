package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/shop-core/internal/adapter/broadcast"
	"github.com/example/shop-core/internal/domain"
	"github.com/example/shop-core/pkg/metrics"
)

// AuthFunc извлекает личность соединения из запроса. Выпуск и проверка
// сессий — забота внешнего слоя аутентификации.
type AuthFunc func(r *http.Request) (broadcast.Identity, error)

// Server — транспорт реального времени и мониторинг. Бизнесовый HTTP API
// живёт во внешнем слое и сюда не входит.
type Server struct {
	Router *mux.Router

	hub   *broadcast.Hub
	auth  broadcast.Authorizer
	ident AuthFunc
	cache domain.Cache
	log   *zap.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *broadcast.Hub, auth broadcast.Authorizer, ident AuthFunc, c domain.Cache, log *zap.Logger) *Server {
	s := &Server{
		Router: mux.NewRouter(),
		hub:    hub,
		auth:   auth,
		ident:  ident,
		cache:  c,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.Router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/realtime/rooms", s.handleRooms).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/realtime/stats", s.handleRealtimeStats).Methods(http.MethodGet)
	s.Router.HandleFunc("/api/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	s.Router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.ident(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := broadcast.NewWSClient(s.hub, s.auth, conn, identity, s.log)
	// контекст запроса умирает вместе с хендлером, соединение живёт дольше
	client.Start(context.Background())
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.RoomInfo())
}

func (s *Server) handleRealtimeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{
		"connected_clients": s.hub.ConnectedClientsCount(),
		"admin_clients":     s.hub.AdminClientsCount(),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cache.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
