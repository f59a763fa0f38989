package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/queue"
	"github.com/fleetlink/fleetlink/internal/server"
	"github.com/fleetlink/fleetlink/internal/store"
)

const shutdownTimeout = 10 * time.Second

// shipment is the message format consumed from the shipment queue. The
// payload is dispatched to the agent nearest the shipment's location.
type shipment struct {
	Location *server.LocationPayload `json:"location"`
	Event    string                  `json:"event,omitempty"`
	Data     json.RawMessage         `json:"data,omitempty"`
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	hub := server.NewHub(logger)
	go hub.Run()
	logger.Info("hub started")

	var riderStore server.RiderStore
	var roomStore server.RoomStore
	st := connectStore(cfg, logger)
	if st != nil {
		riderStore = st.Riders()
		roomStore = st.Rooms()
	}

	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	q := startShipmentConsumer(consumeCtx, cfg, hub, logger)

	mux := server.SetupRoutes(hub, riderStore, roomStore)
	httpServer := server.CreateServer(cfg.Port, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	stopConsumer()
	_ = server.ShutdownServer(httpServer, shutdownTimeout)
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("hub shutdown incomplete", "error", err)
	}
	if q != nil {
		if err := q.Close(); err != nil {
			logger.Warn("closing queue client failed", "error", err)
		}
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}
}

// connectStore opens the rider/room store when configured. A missing or
// unreachable store only logs; the hub runs fine without it.
func connectStore(cfg *server.Config, logger *slog.Logger) *store.Store {
	if cfg.Redis.Addr == "" {
		return nil
	}

	st := store.New(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		logger.Warn("rider/room store unavailable; continuing without it", "error", err)
		_ = st.Close()
		return nil
	}

	logger.Info("connected to rider/room store", "addr", cfg.Redis.Addr)
	return st
}

// startShipmentConsumer wires the shipment queue into the hub's
// nearest-agent dispatch when a broker is configured. Consumer failures only
// log; event processing on the hub is never blocked by the queue.
func startShipmentConsumer(ctx context.Context, cfg *server.Config, hub *server.Hub, logger *slog.Logger) *queue.Client {
	if cfg.Queue.URL == "" {
		return nil
	}

	q, err := queue.Dial(cfg.Queue.URL, logger)
	if err != nil {
		logger.Warn("message broker unavailable; continuing without it", "error", err)
		return nil
	}

	if err := q.DeclareQueue(cfg.Queue.ShipmentQueue); err != nil {
		logger.Warn("declaring shipment queue failed", "error", err)
		_ = q.Close()
		return nil
	}

	handler := func(body []byte) {
		var s shipment
		if err := json.Unmarshal(body, &s); err != nil {
			logger.Warn("malformed shipment message dropped", "error", err)
			return
		}
		if s.Location == nil || s.Location.Lat == nil || s.Location.Long == nil {
			logger.Warn("shipment message without location dropped")
			return
		}

		target := geo.Point{Lat: *s.Location.Lat, Long: *s.Location.Long}
		if _, ok := hub.DispatchToNearest(target, s.Event, s.Data); !ok {
			logger.Warn("no located agent for shipment", "lat", target.Lat, "long", target.Long)
		}
	}

	if err := q.Consume(ctx, cfg.Queue.ShipmentQueue, handler); err != nil {
		logger.Warn("starting shipment consumer failed", "error", err)
		_ = q.Close()
		return nil
	}

	return q
}
