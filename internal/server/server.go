// Package server accepts client connections and hands each one to a
// session.
package server

import (
	"errors"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mkarev/minibank/internal/ledger"
	"github.com/mkarev/minibank/internal/observability"
	"github.com/mkarev/minibank/internal/session"
)

// Server is the composition root for the accept loop.
type Server struct {
	store  *ledger.Store
	logger zerolog.Logger
}

// New returns a server over the given store.
func New(store *ledger.Store, logger zerolog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// Serve accepts connections until the listener is closed, running one
// session goroutine per connection.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("listening")

	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		logger := s.logger.With().
			Str("session_id", uuid.NewString()).
			Str("remote", conn.RemoteAddr().String()).
			Logger()
		logger.Info().Msg("client connected")

		sess := session.New(conn, s.store, logger)

		observability.ActiveSessions.Inc()
		go func() {
			defer observability.ActiveSessions.Dec()
			sess.Serve()
		}()
	}
}
