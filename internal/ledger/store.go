// Package ledger manages the account index and its flat-file persistence.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mkarev/minibank/internal/domain"
	"github.com/mkarev/minibank/pkg/errorspkg"
)

// Store owns the authoritative account list. Records keep their position
// for the life of the file: record i in memory is record i on disk, which
// is what makes positional rewrites possible.
//
// Every exported method runs under one store-wide mutex, so operations are
// strictly serialized with respect to each other.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts []*domain.Account
	active   map[string]int // live session checkouts per account name
	logger   zerolog.Logger
}

// Open loads the ledger file at path, creating it if absent.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		active: make(map[string]int),
		logger: logger.With().Str("component", "ledger").Logger(),
	}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for i := 0; ; i++ {
		line, err := r.ReadString('\n')
		if err == io.EOF && line == "" {
			break
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read ledger file: %w", err)
		}

		a, perr := parseRecord(line)
		if perr != nil {
			return nil, fmt.Errorf("ledger record %d: %w", i, perr)
		}
		s.accounts = append(s.accounts, a)

		if err == io.EOF {
			break
		}
	}

	s.logger.Info().Int("accounts", len(s.accounts)).Str("path", path).Msg("ledger loaded")

	return s, nil
}

// Len reports the number of accounts in the index.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Register creates a zero-balance account and appends its record to the
// file. The name must not collide with an existing record (case-sensitive,
// exact match). On success the account is checked out to the caller's
// session; pair with Release.
func (s *Store) Register(name string, pwHash uint64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := domain.NewAccount(name, pwHash)
	if a.Name == "" {
		// An all-spaces name field would be unparseable on reload.
		return nil, domain.ErrInvalidName
	}
	for _, existing := range s.accounts {
		if existing.Name == a.Name {
			return nil, domain.ErrAccountExists
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("open ledger for append")
		return nil, errorspkg.ErrInternal
	}
	defer f.Close()

	if _, err := f.WriteString(formatRecord(a)); err != nil {
		s.logger.Error().Err(err).Str("account", a.Name).Msg("append record")
		return nil, errorspkg.ErrInternal
	}

	s.accounts = append(s.accounts, a)
	s.active[a.Name]++

	return a, nil
}

// Authenticate returns the account whose name and password hash both match,
// checking it out to the caller's session; pair with Release.
//
// Authenticate deliberately does not consult the checkout registry, so two
// sessions may hold the same account at once and the last Commit wins.
func (s *Store) Authenticate(name string, pwHash uint64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = domain.TruncateName(name)
	for _, a := range s.accounts {
		if a.Name == name && a.PwHash == pwHash {
			s.active[a.Name]++
			return a, nil
		}
	}

	return nil, domain.ErrAccountNotFound
}

// Commit flushes the account's password hash and balance to its on-disk
// record. The account must be one previously returned by this store;
// lookup is by identity, not name.
func (s *Store) Commit(a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(a)
	if idx < 0 {
		return domain.ErrAccountNotFound
	}

	if err := s.rewrite(idx, a.Name, hashAndBalance(a)); err != nil {
		s.logger.Error().Err(err).Str("account", a.Name).Int("record", idx).Msg("commit failed")
		return internalize(err)
	}

	return nil
}

// Release checks the account back in. Call once per successful
// Register/Authenticate, after the final Commit.
func (s *Store) Release(a *domain.Account) {
	if a == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.active[a.Name]; n > 1 {
		s.active[a.Name] = n - 1
	} else {
		delete(s.active, a.Name)
	}
}

// CreditByName adds amount to the named account and persists just that
// record's balance field. It is the inbound leg of a transfer.
//
// The credit is refused with ErrAccountBusy while any live session has the
// destination checked out, since that session mutates the shared balance in
// memory without holding the store lock.
func (s *Store) CreditByName(name string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = domain.TruncateName(name)
	idx := -1
	for i, a := range s.accounts {
		if a.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrAccountNotFound
	}
	if s.active[name] > 0 {
		return domain.ErrAccountBusy
	}

	a := s.accounts[idx]
	a.Balance += amount

	if err := s.rewrite(idx, a.Name, balanceOnly(a)); err != nil {
		s.logger.Error().Err(err).Str("account", a.Name).Int("record", idx).Msg("credit write failed")
		return internalize(err)
	}

	return nil
}

// internalize collapses raw I/O faults to ErrInternal; the record-mismatch
// consistency error stays distinguishable.
func internalize(err error) error {
	if errors.Is(err, domain.ErrRecordMismatch) {
		return err
	}
	return errorspkg.ErrInternal
}

// indexOf locates an account by pointer identity. Caller holds s.mu.
func (s *Store) indexOf(a *domain.Account) int {
	for i, existing := range s.accounts {
		if existing == a {
			return i
		}
	}
	return -1
}

// rewrite overwrites part of record idx in place. The field writer f
// receives the record's base offset. The on-disk name is verified first: a
// mismatch means the file and the index have desynchronized, which is
// surfaced, never swallowed. Caller holds s.mu.
func (s *Store) rewrite(idx int, name string, fields fieldWriter) error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	offset := int64(idx) * recordLen

	diskName, err := readNameAt(f, offset)
	if err != nil {
		return err
	}
	if diskName != name {
		return fmt.Errorf("%w: record %d holds %q, expected %q",
			domain.ErrRecordMismatch, idx, diskName, name)
	}

	return fields(f, offset)
}
