// Command client is the interactive terminal client of the banking
// service. It is a pure presentation loop: every action becomes one framed
// request, and server responses drive what is printed.
package main

import (
	"bufio"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mkarev/minibank/internal/wire"
	"github.com/mkarev/minibank/pkg/passpkg"
)

const hostFile = "host.ini"

type client struct {
	conn net.Conn
	in   *bufio.Scanner

	// local mirror of the logged-in account
	name    string
	pwHash  uint64
	balance uint64
}

func main() {
	in := bufio.NewScanner(os.Stdin)

	host, port := savedHost()
	conn, err := net.Dial("tcp", net.JoinHostPort(host, port))
	for err != nil {
		if menu(in, "Connection to server failed. Try another host?", "Yes", "No") != 1 {
			return
		}
		host = prompt(in, "Host: ")
		port = prompt(in, "Port: ")
		conn, err = net.Dial("tcp", net.JoinHostPort(host, port))
		if err == nil {
			saveHost(host, port)
		}
	}
	defer conn.Close()

	c := &client{conn: conn, in: in}
	c.run()
}

func (c *client) run() {
	for {
		switch menu(c.in, "Welcome to minibank", "Log in", "Register", "Quit") {
		case 1:
			c.authenticate(wire.OpLogin, "Invalid account name or password.")
		case 2:
			c.authenticate(wire.OpRegister, "The account name has already been taken.")
		case 3:
			return
		}

		for c.name != "" {
			fmt.Printf("Hello %s.\nYour balance is currently %s\n", c.name, dollars(c.balance))
			switch menu(c.in, "What would you like to do?", "Deposit", "Withdraw", "Transfer", "Change password", "Logout") {
			case 1:
				c.deposit()
			case 2:
				c.withdraw()
			case 3:
				c.transfer()
			case 4:
				c.changePassword()
			case 5:
				c.request(wire.OpLogout, "") // no response frame
				c.name, c.pwHash, c.balance = "", 0, 0
			}
		}
	}
}

func (c *client) authenticate(op wire.Op, failure string) {
	name := prompt(c.in, "Account name: ")
	pwHash := passpkg.Hash(prompt(c.in, "Password: "))

	reply := c.exchange(op, fmt.Sprintf("%s %d", name, pwHash))
	if reply != "0" {
		fmt.Println(failure)
		return
	}

	c.name = name
	c.pwHash = pwHash
	c.balance, _ = strconv.ParseUint(c.exchange(wire.OpGetBalance, ""), 10, 64)
}

func (c *client) deposit() {
	amount, ok := promptAmount(c.in, "Deposit amount: $")
	if !ok || amount == 0 {
		fmt.Println("Please enter a positive number.")
		return
	}

	reply := c.exchange(wire.OpDeposit, strconv.FormatUint(amount, 10))
	c.balance, _ = strconv.ParseUint(reply, 10, 64)
}

func (c *client) withdraw() {
	amount, ok := promptAmount(c.in, "Withdraw amount: $")
	if !ok {
		fmt.Println("Please enter a number.")
		return
	}
	if amount == 0 || amount > c.balance {
		fmt.Println("You can't withdraw that much!")
		return
	}

	_, balance := statusAndBalance(c.exchange(wire.OpWithdraw, strconv.FormatUint(amount, 10)))
	c.balance = balance
}

func (c *client) transfer() {
	dest := prompt(c.in, "Destination account name: ")
	amount, ok := promptAmount(c.in, "Transfer amount: $")
	if !ok {
		fmt.Println("Please enter a number.")
		return
	}
	if amount == 0 || amount > c.balance {
		fmt.Println("You can't transfer that much!")
		return
	}

	status, balance := statusAndBalance(c.exchange(wire.OpTransfer, fmt.Sprintf("%s %d", dest, amount)))
	switch status {
	case wire.StatusOK:
		c.balance = balance
	case wire.StatusNotFound:
		fmt.Println("No account goes by that name.")
	case wire.StatusBusy:
		fmt.Println("The account you are trying to transfer to is currently being used. You can't transfer money to them right now.")
	default:
		fmt.Println("The transfer failed. Try again later.")
	}
}

func (c *client) changePassword() {
	oldHash := passpkg.Hash(prompt(c.in, "Current password: "))
	if oldHash != c.pwHash {
		fmt.Println("Old password incorrect.")
		return
	}
	newHash := passpkg.Hash(prompt(c.in, "New password: "))

	if c.exchange(wire.OpChangePassword, fmt.Sprintf("%d %d", oldHash, newHash)) == "0" {
		c.pwHash = newHash
	} else {
		fmt.Println("Failed to change password. Try again later.")
	}
}

func (c *client) request(op wire.Op, payload string) {
	if err := wire.Write(c.conn, op, payload); err != nil {
		fmt.Println("Connection with server failed.")
		os.Exit(1)
	}
}

// exchange sends one request and waits for its response payload.
func (c *client) exchange(op wire.Op, payload string) string {
	c.request(op, payload)

	frame, err := wire.Read(c.conn)
	if err != nil {
		fmt.Println("Connection with server failed.")
		os.Exit(1)
	}
	return frame.Payload
}

func statusAndBalance(payload string) (int, uint64) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return wire.StatusWriteFailed, 0
	}
	status, _ := strconv.Atoi(fields[0])
	balance, _ := strconv.ParseUint(fields[1], 10, 64)
	return status, balance
}

func menu(in *bufio.Scanner, header string, options ...string) int {
	fmt.Println(header)
	for i, opt := range options {
		fmt.Printf("[%d] %s\n", i+1, opt)
	}
	for {
		n, err := strconv.Atoi(prompt(in, "> "))
		if err == nil && n >= 1 && n <= len(options) {
			return n
		}
		fmt.Println("Please enter a valid option number.")
	}
}

func prompt(in *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !in.Scan() {
		os.Exit(0)
	}
	return strings.TrimSpace(in.Text())
}

// dollars renders minor currency units as "$<dollars>.<cents>" with
// zero-padded cents.
func dollars(minor uint64) string {
	return fmt.Sprintf("$%d.%02d", minor/100, minor%100)
}

// promptAmount reads a dollars-and-cents amount and converts it to minor
// units.
func promptAmount(in *bufio.Scanner, label string) (uint64, bool) {
	return parseAmount(prompt(in, label))
}

// parseAmount converts "<dollars>[.<cents>]" to minor units. The parts are
// parsed as integers so amounts stay exact over the full uint64 range the
// protocol carries.
func parseAmount(text string) (uint64, bool) {
	dollarPart, centPart, _ := strings.Cut(text, ".")

	dollars, err := strconv.ParseUint(dollarPart, 10, 64)
	if err != nil || dollars > math.MaxUint64/100 {
		return 0, false
	}

	var cents uint64
	if centPart != "" {
		if len(centPart) > 2 {
			return 0, false
		}
		cents, err = strconv.ParseUint(centPart, 10, 64)
		if err != nil {
			return 0, false
		}
		if len(centPart) == 1 {
			cents *= 10
		}
	}

	if cents > math.MaxUint64-dollars*100 {
		return 0, false
	}
	return dollars*100 + cents, true
}

func savedHost() (host, port string) {
	host, port = "127.0.0.1", "4567"
	data, err := os.ReadFile(hostFile)
	if err != nil {
		return host, port
	}
	if fields := strings.Fields(string(data)); len(fields) == 2 {
		host, port = fields[0], fields[1]
	}
	return host, port
}

func saveHost(host, port string) {
	_ = os.WriteFile(hostFile, []byte(host+" "+port), 0o644)
}
