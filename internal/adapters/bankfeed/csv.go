package bankfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Columns recognized in a feed file header. Only id, date and amount are required.
const (
	colID           = "id"
	colAccountID    = "account_id"
	colDate         = "date"
	colAmount       = "amount"
	colDescription  = "description"
	colMerchantName = "merchant_name"
	colCategory     = "category"
	colPending      = "pending"
	colDirection    = "direction"
	colReference    = "reference"
	colCheckNumber  = "check_number"
)

var requiredColumns = []string{colID, colDate, colAmount}

// dateLayouts are tried in order
var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// CSVSource reads bank transactions from a CSV export.
// When the file has an account_id column, rows are filtered by bank account.
type CSVSource struct {
	path string
	open func() (io.ReadCloser, error)
}

// NewCSVSource creates a source reading the file at path on every fetch
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{
		path: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewCSVSourceFromReader creates a source over an in-memory export
func NewCSVSourceFromReader(name string, data []byte) *CSVSource {
	return &CSVSource{
		path: name,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(string(data))), nil
		},
	}
}

// Name implements Source
func (s *CSVSource) Name() string {
	return "csv"
}

// FetchTransactions implements Source
func (s *CSVSource) FetchTransactions(ctx context.Context, bankAccountID string, since time.Time) ([]FeedTransaction, error) {
	file, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open bank feed %s: %w", s.path, err)
	}
	defer file.Close()

	all, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("bank feed %s: %w", s.path, err)
	}

	var out []FeedTransaction
	for _, tx := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tx.AccountID != "" && bankAccountID != "" && tx.AccountID != bankAccountID {
			continue
		}
		if !since.IsZero() && ledger.Day(tx.Date).Before(ledger.Day(since)) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// Parse reads a header row followed by transaction rows
func Parse(r io.Reader) ([]FeedTransaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var transactions []FeedTransaction
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", line, err)
		}

		tx, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func parseRecord(record []string, index map[string]int) (FeedTransaction, error) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	tx := FeedTransaction{
		ID:           field(colID),
		AccountID:    field(colAccountID),
		Description:  field(colDescription),
		MerchantName: field(colMerchantName),
		Category:     field(colCategory),
		Reference:    field(colReference),
		CheckNumber:  field(colCheckNumber),
	}
	if tx.ID == "" {
		return tx, errors.New("empty id")
	}

	date, err := parseDate(field(colDate))
	if err != nil {
		return tx, err
	}
	tx.Date = date

	amount, err := money.Parse(field(colAmount))
	if err != nil {
		return tx, fmt.Errorf("could not parse amount %q: %w", field(colAmount), err)
	}
	tx.Amount = amount

	if raw := field(colPending); raw != "" {
		pending, err := strconv.ParseBool(raw)
		if err != nil {
			return tx, fmt.Errorf("could not parse pending %q: %w", raw, err)
		}
		tx.Pending = pending
	}

	switch d := ledger.Direction(strings.ToLower(field(colDirection))); d {
	case "":
	case ledger.Credit, ledger.Debit:
		tx.Direction = d
	default:
		return tx, fmt.Errorf("unknown direction %q", d)
	}

	return tx, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", s)
}
