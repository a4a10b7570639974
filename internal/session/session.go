// Package session implements the per-connection request loop.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mkarev/minibank/internal/domain"
	"github.com/mkarev/minibank/internal/observability"
	"github.com/mkarev/minibank/internal/wire"
)

type storeInterface interface {
	Register(name string, pwHash uint64) (*domain.Account, error)
	Authenticate(name string, pwHash uint64) (*domain.Account, error)
	Commit(a *domain.Account) error
	Release(a *domain.Account)
	CreditByName(name string, amount uint64) error
}

// Session is the state machine behind one client connection. It holds at
// most one checked-out account; while it does, balance and password
// mutations happen on the shared account in memory and reach disk only on
// logout, disconnect, or the transfer-credit path.
type Session struct {
	conn    net.Conn
	store   storeInterface
	logger  zerolog.Logger
	current *domain.Account
}

// New creates a session over an accepted connection.
func New(conn net.Conn, store storeInterface, logger zerolog.Logger) *Session {
	return &Session{
		conn:   conn,
		store:  store,
		logger: logger,
	}
}

// Serve reads and handles frames until the peer disconnects or a frame is
// malformed, then commits and releases any held account.
func (s *Session) Serve() {
	defer s.close()

	for {
		frame, err := wire.Read(s.conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn().Err(err).Msg("read frame")
			}
			return
		}

		observability.RequestsTotal.WithLabelValues(frame.Op.String()).Inc()

		if err := s.handle(frame); err != nil {
			s.logger.Warn().Err(err).Msg("write response")
			return
		}
	}
}

// handle dispatches one decoded frame. The returned error is transport
// failure only; business outcomes travel in the response status.
//
// Operations that require an authenticated session are silently ignored
// without one: no response frame at all, matching the protocol.
func (s *Session) handle(frame wire.Frame) error {
	tokens := frame.Tokens()

	switch frame.Op {
	case wire.OpRegister:
		s.finish()
		a, err := s.store.Register(token(tokens, 0), tokenUint(tokens, 1))
		if err != nil {
			if !errors.Is(err, domain.ErrAccountExists) && !errors.Is(err, domain.ErrInvalidName) {
				s.logger.Error().Err(err).Msg("register")
			}
			return s.respond(strconv.Itoa(wire.StatusRejected))
		}
		s.current = a
		s.logger.Info().Str("account", a.Name).Msg("account registered")
		observability.Accounts.Inc()
		return s.respond(strconv.Itoa(wire.StatusOK))

	case wire.OpLogin:
		s.finish()
		a, err := s.store.Authenticate(token(tokens, 0), tokenUint(tokens, 1))
		if err != nil {
			return s.respond(strconv.Itoa(wire.StatusRejected))
		}
		s.current = a
		s.logger.Info().Str("account", a.Name).Msg("logged in")
		return s.respond(strconv.Itoa(wire.StatusOK))

	case wire.OpLogout:
		s.finish()
		return nil

	case wire.OpGetBalance:
		if s.current == nil {
			return nil
		}
		return s.respond(strconv.FormatUint(s.current.Balance, 10))

	case wire.OpDeposit:
		if s.current == nil {
			return nil
		}
		s.current.Balance += tokenUint(tokens, 0)
		return s.respond(strconv.FormatUint(s.current.Balance, 10))

	case wire.OpWithdraw:
		if s.current == nil {
			return nil
		}
		amount := tokenUint(tokens, 0)
		status := wire.StatusOK
		if amount <= s.current.Balance {
			s.current.Balance -= amount
		} else {
			status = wire.StatusRejected
		}
		return s.respond(fmt.Sprintf("%d %d", status, s.current.Balance))

	case wire.OpTransfer:
		if s.current == nil {
			return nil
		}
		return s.transfer(token(tokens, 0), tokenUint(tokens, 1))

	case wire.OpChangePassword:
		if s.current == nil {
			return nil
		}
		status := wire.StatusRejected
		if tokenUint(tokens, 0) == s.current.PwHash {
			// In-memory only; the new hash reaches disk at commit.
			s.current.PwHash = tokenUint(tokens, 1)
			status = wire.StatusOK
		}
		return s.respond(strconv.Itoa(status))

	default:
		s.logger.Warn().Stringer("op", frame.Op).Msg("unexpected operation")
		return nil
	}
}

// transfer debits the held account and credits the destination through the
// store. The debit happens only after the credit succeeds, so a failed
// credit leaves the sender untouched.
func (s *Session) transfer(dest string, amount uint64) error {
	status := wire.StatusOK

	if amount <= s.current.Balance {
		switch err := s.store.CreditByName(dest, amount); {
		case err == nil:
			s.current.Balance -= amount
		case errors.Is(err, domain.ErrAccountNotFound):
			status = wire.StatusNotFound
		case errors.Is(err, domain.ErrAccountBusy):
			status = wire.StatusBusy
		default:
			s.logger.Error().Err(err).Str("dest", dest).Msg("transfer credit")
			status = wire.StatusWriteFailed
		}
	} else {
		status = wire.StatusRejected
	}

	return s.respond(fmt.Sprintf("%d %d", status, s.current.Balance))
}

// finish commits and releases the held account, if any. Shared by logout,
// disconnect, and re-authentication.
func (s *Session) finish() {
	if s.current == nil {
		return
	}

	if err := s.store.Commit(s.current); err != nil {
		s.logger.Error().Err(err).Str("account", s.current.Name).Msg("commit on logout")
	}
	s.store.Release(s.current)
	s.logger.Info().Str("account", s.current.Name).Msg("logged out")
	s.current = nil
}

func (s *Session) close() {
	s.finish()
	s.conn.Close()
	s.logger.Info().Msg("session closed")
}

func (s *Session) respond(payload string) error {
	return wire.Write(s.conn, wire.OpResponse, payload)
}

// token returns the i-th whitespace field, or "" when absent.
func token(tokens []string, i int) string {
	if i >= len(tokens) {
		return ""
	}
	return tokens[i]
}

// tokenUint decodes the i-th field as decimal; malformed or missing fields
// decode as zero so the request is still answered.
func tokenUint(tokens []string, i int) uint64 {
	n, _ := strconv.ParseUint(token(tokens, i), 10, 64)
	return n
}
