package session

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mkarev/minibank/internal/ledger"
	"github.com/mkarev/minibank/internal/wire"
	"github.com/mkarev/minibank/pkg/passpkg"
)

func testLedger(t *testing.T) (*ledger.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "accounts.data")
	store, err := ledger.Open(path, zerolog.Nop())
	require.NoError(t, err)

	return store, path
}

// startSession wires a session to an in-memory duplex pipe and returns the
// client end plus a channel closed when the session loop exits.
func startSession(t *testing.T, store *ledger.Store) (net.Conn, chan struct{}) {
	t.Helper()

	serverEnd, clientEnd := net.Pipe()
	done := make(chan struct{})

	go func() {
		New(serverEnd, store, zerolog.Nop()).Serve()
		close(done)
	}()

	t.Cleanup(func() {
		clientEnd.Close()
		<-done
	})

	return clientEnd, done
}

func send(t *testing.T, conn net.Conn, op wire.Op, payload string) {
	t.Helper()
	require.NoError(t, wire.Write(conn, op, payload))
}

func recv(t *testing.T, conn net.Conn) string {
	t.Helper()

	frame, err := wire.Read(conn)
	require.NoError(t, err)
	require.Equal(t, wire.OpResponse, frame.Op)

	return frame.Payload
}

func login(t *testing.T, conn net.Conn, name string, pwHash uint64) {
	t.Helper()
	send(t, conn, wire.OpLogin, fmt.Sprintf("%s %d", name, pwHash))
	require.Equal(t, "0", recv(t, conn))
}

func register(t *testing.T, conn net.Conn, name string, pwHash uint64) {
	t.Helper()
	send(t, conn, wire.OpRegister, fmt.Sprintf("%s %d", name, pwHash))
	require.Equal(t, "0", recv(t, conn))
}

func TestRegisterLoginBalanceScenario(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	h1 := passpkg.Hash("hunter2")

	register(t, conn, "alice", h1)

	send(t, conn, wire.OpDeposit, "500")
	require.Equal(t, "500", recv(t, conn))

	send(t, conn, wire.OpLogout, "")

	send(t, conn, wire.OpLogin, fmt.Sprintf("alice %d", h1))
	require.Equal(t, "0", recv(t, conn))

	send(t, conn, wire.OpGetBalance, "")
	require.Equal(t, "500", recv(t, conn))
}

func TestRegisterTakenName(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpLogout, "")

	send(t, conn, wire.OpRegister, "alice 2")
	require.Equal(t, "1", recv(t, conn))
	require.Equal(t, 1, store.Len())

	// A failed registration leaves the session unauthenticated: the next
	// response must belong to the login, not to the get_balance.
	send(t, conn, wire.OpGetBalance, "")
	login(t, conn, "alice", 1)
}

func TestRegisterEmptyNameRejected(t *testing.T) {
	store, path := testLedger(t)
	conn, _ := startSession(t, store)

	// Empty and all-whitespace bodies both decode to an empty name.
	send(t, conn, wire.OpRegister, "")
	require.Equal(t, "1", recv(t, conn))
	send(t, conn, wire.OpRegister, "   ")
	require.Equal(t, "1", recv(t, conn))
	require.Zero(t, store.Len())

	// The session stays unauthenticated and the file stays loadable.
	send(t, conn, wire.OpGetBalance, "")
	register(t, conn, "alice", 1)

	_, err := ledger.Open(path, zerolog.Nop())
	require.NoError(t, err)
}

func TestLoginInvalidCredentials(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpLogout, "")

	send(t, conn, wire.OpLogin, "alice 999")
	require.Equal(t, "1", recv(t, conn))
}

func TestUnauthenticatedOperationsAreSilentlyIgnored(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	// None of these may produce a response frame.
	send(t, conn, wire.OpGetBalance, "")
	send(t, conn, wire.OpDeposit, "100")
	send(t, conn, wire.OpWithdraw, "100")
	send(t, conn, wire.OpTransfer, "bob 100")
	send(t, conn, wire.OpChangePassword, "1 2")
	send(t, conn, wire.OpLogout, "")

	register(t, conn, "alice", 1)

	send(t, conn, wire.OpGetBalance, "")
	require.Equal(t, "0", recv(t, conn), "ignored requests must not have queued responses")
}

func TestWithdraw(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpDeposit, "500")
	require.Equal(t, "500", recv(t, conn))

	send(t, conn, wire.OpWithdraw, "600")
	require.Equal(t, "1 500", recv(t, conn), "an overdraft must leave the balance unchanged")

	send(t, conn, wire.OpWithdraw, "200")
	require.Equal(t, "0 300", recv(t, conn))

	send(t, conn, wire.OpWithdraw, "300")
	require.Equal(t, "0 0", recv(t, conn), "withdrawing the full balance is allowed")
}

func TestChangePassword(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	oldHash := passpkg.Hash("old")
	newHash := passpkg.Hash("new")

	register(t, conn, "alice", oldHash)

	send(t, conn, wire.OpChangePassword, fmt.Sprintf("%d %d", oldHash+1, newHash))
	require.Equal(t, "1", recv(t, conn))

	send(t, conn, wire.OpChangePassword, fmt.Sprintf("%d %d", oldHash, newHash))
	require.Equal(t, "0", recv(t, conn))

	send(t, conn, wire.OpLogout, "")

	send(t, conn, wire.OpLogin, fmt.Sprintf("alice %d", oldHash))
	require.Equal(t, "1", recv(t, conn), "the old password must stop working after logout")

	login(t, conn, "alice", newHash)
}

func TestTransfer(t *testing.T) {
	store, _ := testLedger(t)

	bobConn, _ := startSession(t, store)
	register(t, bobConn, "bob", 2)
	send(t, bobConn, wire.OpLogout, "")

	aliceConn, _ := startSession(t, store)
	register(t, aliceConn, "alice", 1)
	send(t, aliceConn, wire.OpDeposit, "500")
	require.Equal(t, "500", recv(t, aliceConn))

	send(t, aliceConn, wire.OpTransfer, "nobody 100")
	require.Equal(t, "2 500", recv(t, aliceConn), "missing destination must not debit the sender")

	send(t, aliceConn, wire.OpTransfer, "bob 600")
	require.Equal(t, "1 500", recv(t, aliceConn), "insufficient funds must not reach the store")

	send(t, aliceConn, wire.OpTransfer, "bob 200")
	require.Equal(t, "0 300", recv(t, aliceConn))

	login(t, bobConn, "bob", 2)
	send(t, bobConn, wire.OpGetBalance, "")
	require.Equal(t, "200", recv(t, bobConn))
}

func TestTransferToActiveAccountIsBusy(t *testing.T) {
	store, _ := testLedger(t)

	bobConn, _ := startSession(t, store)
	register(t, bobConn, "bob", 2)

	aliceConn, _ := startSession(t, store)
	register(t, aliceConn, "alice", 1)
	send(t, aliceConn, wire.OpDeposit, "500")
	require.Equal(t, "500", recv(t, aliceConn))

	// bob is still logged in on his own session.
	send(t, aliceConn, wire.OpTransfer, "bob 200")
	require.Equal(t, "3 500", recv(t, aliceConn))

	send(t, bobConn, wire.OpGetBalance, "")
	require.Equal(t, "0", recv(t, bobConn), "a busy transfer must leave both balances unchanged")
}

func TestTransferToSelfIsBusy(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpDeposit, "100")
	require.Equal(t, "100", recv(t, conn))

	// The sender's own checkout makes the destination busy.
	send(t, conn, wire.OpTransfer, "alice 50")
	require.Equal(t, "3 100", recv(t, conn))
}

func TestDisconnectCommitsHeldAccount(t *testing.T) {
	store, path := testLedger(t)
	conn, done := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpDeposit, "700")
	require.Equal(t, "700", recv(t, conn))

	require.NoError(t, conn.Close())
	<-done

	reopened, err := ledger.Open(path, zerolog.Nop())
	require.NoError(t, err)

	a, err := reopened.Authenticate("alice", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(700), a.Balance)
}

func TestLogoutReleasesCheckout(t *testing.T) {
	store, _ := testLedger(t)
	conn, _ := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpLogout, "")

	other, _ := startSession(t, store)
	register(t, other, "bob", 2)
	send(t, other, wire.OpDeposit, "100")
	require.Equal(t, "100", recv(t, other))

	send(t, other, wire.OpTransfer, "alice 100")
	require.Equal(t, "0 0", recv(t, other), "a logged-out account must accept transfers")
}

func TestMalformedFrameTerminatesSession(t *testing.T) {
	store, path := testLedger(t)
	conn, done := startSession(t, store)

	register(t, conn, "alice", 1)
	send(t, conn, wire.OpDeposit, "300")
	require.Equal(t, "300", recv(t, conn))

	// Header declaring an impossible body length.
	_, err := conn.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	<-done

	// The teardown path still commits the held account.
	reopened, err := ledger.Open(path, zerolog.Nop())
	require.NoError(t, err)

	a, err := reopened.Authenticate("alice", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(300), a.Balance)
}
