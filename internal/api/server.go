package api

import (
	"os"
	"strings"

	"github.com/TechniCodeCamp2025/fleet-api/internal/logging"
	"github.com/TechniCodeCamp2025/fleet-api/internal/store"
	"github.com/TechniCodeCamp2025/fleet-api/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Runs   *RunManager
}

// NewServer creates a Server. If DATABASE_URL is unset, uses the
// in-memory store; if REDIS_URL is set, progress events go through Redis.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log := logging.With("api")
				log.Warn().Err(err).Msg("migrations skipped")
			}
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	pub := webhooks.NewPublisher(s)
	srv := &Server{
		Store:  s,
		Pub:    pub,
		Broker: broker,
	}
	srv.Runs = NewRunManager(s, pub, broker)
	return srv, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
