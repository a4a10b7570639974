package ledger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mkarev/minibank/internal/domain"
)

// On-disk layout: one newline-terminated record per account, three
// right-justified fixed-width fields. The fixed width is what keeps every
// record at a computable offset (index * recordLen) and lets a rewrite
// touch one record without disturbing its neighbors.
const (
	nameWidth     = domain.MaxNameLen
	numberWidth   = 21 // fits any uint64 plus at least one space
	hashOffset    = nameWidth
	balanceOffset = nameWidth + numberWidth
	recordLen     = nameWidth + 2*numberWidth + 1
)

func formatRecord(a *domain.Account) string {
	return fmt.Sprintf("%*s%*d%*d\n", nameWidth, a.Name, numberWidth, a.PwHash, numberWidth, a.Balance)
}

// parseRecord decodes one record line, newline included or not. Anything
// that is not exactly one record wide is corruption: positional math on the
// rest of the file would be wrong.
func parseRecord(line string) (*domain.Account, error) {
	line = strings.TrimSuffix(line, "\n")
	if len(line) != recordLen-1 {
		return nil, fmt.Errorf("record is %d bytes, want %d", len(line), recordLen-1)
	}

	name := strings.TrimLeft(line[:nameWidth], " ")
	if name == "" {
		return nil, fmt.Errorf("record has empty name field")
	}

	pwHash, err := strconv.ParseUint(strings.TrimSpace(line[hashOffset:balanceOffset]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("password hash field: %w", err)
	}
	balance, err := strconv.ParseUint(strings.TrimSpace(line[balanceOffset:]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("balance field: %w", err)
	}

	return &domain.Account{Name: name, PwHash: pwHash, Balance: balance}, nil
}

// readNameAt reads and trims the name field of the record at offset.
func readNameAt(f *os.File, offset int64) (string, error) {
	field := make([]byte, nameWidth)
	if _, err := f.ReadAt(field, offset); err != nil {
		return "", err
	}
	return strings.TrimLeft(string(field), " "), nil
}

// fieldWriter overwrites some fields of the record at base offset.
type fieldWriter func(f *os.File, offset int64) error

// hashAndBalance rewrites both mutable fields, as Commit does.
func hashAndBalance(a *domain.Account) fieldWriter {
	return func(f *os.File, offset int64) error {
		s := fmt.Sprintf("%*d%*d", numberWidth, a.PwHash, numberWidth, a.Balance)
		_, err := f.WriteAt([]byte(s), offset+hashOffset)
		return err
	}
}

// balanceOnly rewrites just the balance field, as CreditByName does.
func balanceOnly(a *domain.Account) fieldWriter {
	return func(f *os.File, offset int64) error {
		s := fmt.Sprintf("%*d", numberWidth, a.Balance)
		_, err := f.WriteAt([]byte(s), offset+balanceOffset)
		return err
	}
}
