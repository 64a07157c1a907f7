// Package reporting keeps a bounded history of settled calls and summarises
// it into a retrospective report.
package reporting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/reader-bridge/internal/call"
	"github.com/yourorg/reader-bridge/internal/decoder"
)

// Entry statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// DefaultCapacity bounds a Ledger created with capacity <= 0.
const DefaultCapacity = 1000

// Entry is the record of one settled call.
type Entry struct {
	Timestamp    time.Time
	CallID       string
	Operation    string
	Status       string
	ErrorCode    string
	ErrorMessage string
	// Amount and Currency are set for successful checkouts that carried a
	// transaction record.
	Amount   decimal.Decimal
	Currency string
	Latency  time.Duration
}

// EntryFromCall builds the entry of a settled call. ok is false if c has not
// been settled yet.
func EntryFromCall(c *call.Call, now time.Time) (e Entry, ok bool) {
	out, settled := c.Outcome()
	if !settled {
		return Entry{}, false
	}
	e = Entry{
		Timestamp: now,
		CallID:    c.ID,
		Operation: c.Method,
		Status:    StatusSuccess,
		Latency:   now.Sub(c.CreatedAt),
	}
	if out.Err != nil {
		e.Status = StatusFailure
		e.ErrorCode = out.Err.Code
		e.ErrorMessage = out.Err.Message
		return e, true
	}
	if res, isCheckout := out.Payload.(decoder.CheckoutResult); isCheckout && res.TransactionRecord != nil {
		e.Amount = res.Amount
		e.Currency = res.Currency
	}
	return e, true
}

// RetrospectiveReport summarises a set of entries.
type RetrospectiveReport struct {
	TotalCalls       int                        `json:"total_calls"`
	Succeeded        int                        `json:"succeeded"`
	Failed           int                        `json:"failed"`
	ByOperation      map[string]int             `json:"by_operation"`
	ErrorBreakdown   map[string]int             `json:"error_breakdown"`
	AmountByCurrency map[string]decimal.Decimal `json:"amount_by_currency"`
	DateFrom         time.Time                  `json:"date_from"`
	DateTo           time.Time                  `json:"date_to"`
	Duration         time.Duration              `json:"duration"`
	// MaxLatency is the longest time between a call's creation and its
	// settlement.
	MaxLatency time.Duration `json:"max_latency"`
}

// RetrospectiveReporter generates retrospective reports from entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// GenerateRetrospective aggregates entries. Amounts are summed per currency
// for successful checkouts only; the merchant default currency is reported
// under "".
func (rr *RetrospectiveReporter) GenerateRetrospective(entries []Entry) *RetrospectiveReport {
	report := &RetrospectiveReport{
		ByOperation:      make(map[string]int),
		ErrorBreakdown:   make(map[string]int),
		AmountByCurrency: make(map[string]decimal.Decimal),
	}
	for i, e := range entries {
		report.TotalCalls++
		report.ByOperation[e.Operation]++

		if i == 0 || e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}
		if e.Latency > report.MaxLatency {
			report.MaxLatency = e.Latency
		}

		switch e.Status {
		case StatusSuccess:
			report.Succeeded++
			if !e.Amount.IsZero() {
				report.AmountByCurrency[e.Currency] = report.AmountByCurrency[e.Currency].Add(e.Amount)
			}
		case StatusFailure:
			report.Failed++
			if e.ErrorCode != "" {
				report.ErrorBreakdown[e.ErrorCode]++
			}
		}
	}
	report.Duration = report.DateTo.Sub(report.DateFrom)
	return report
}

// Ledger records settled calls, keeping the most recent capacity entries.
type Ledger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	now      func() time.Time
	reporter *RetrospectiveReporter
}

// NewLedger creates an empty ledger.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		now:      time.Now,
		reporter: NewRetrospectiveReporter(),
	}
}

// Record appends the entry of c. Unsettled calls are ignored. Record has the
// shape of a call.OnSettle observer.
func (l *Ledger) Record(c *call.Call) {
	e, ok := EntryFromCall(c, l.now())
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded entries, oldest first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Report summarises the recorded entries.
func (l *Ledger) Report() *RetrospectiveReport {
	return l.reporter.GenerateRetrospective(l.Entries())
}
