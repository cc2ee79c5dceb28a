package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

type fakeAppender struct {
	spreadsheetID string
	rng           string
	rows          [][]any
}

func (f *fakeAppender) Append(ctx context.Context, spreadsheetID, rng string, row []any) error {
	f.spreadsheetID = spreadsheetID
	f.rng = rng
	f.rows = append(f.rows, row)
	return nil
}

func TestRecordDepositPaid(t *testing.T) {
	appender := &fakeAppender{}
	m := newSheetsMirror(appender, "sheet-1", nil, logging.New("error"))

	amount := int64(15000)
	paidAt := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	city, country, category := "London", "United Kingdom", "MEDIUM"
	lead := &leads.Lead{
		ID:                 uuid.New(),
		Phone:              "+447700900000",
		Status:             leads.StatusBookingPending,
		DepositAmountPence: &amount,
		DepositPaidAt:      &paidAt,
		LocationCity:       &city,
		LocationCountry:    &country,
		EstimatedCategory:  &category,
	}

	if err := m.RecordDepositPaid(context.Background(), lead, "evt_1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if appender.spreadsheetID != "sheet-1" || appender.rng != appendRange {
		t.Fatalf("append target = %s %s", appender.spreadsheetID, appender.rng)
	}
	if len(appender.rows) != 1 {
		t.Fatalf("rows = %d", len(appender.rows))
	}
	row := appender.rows[0]
	if row[0] != "evt_1" || row[1] != lead.ID.String() {
		t.Fatalf("row head = %v", row[:2])
	}
	if row[5] != amount || row[6] != "2026-04-01 12:00:00" {
		t.Fatalf("amount/paid = %v %v", row[5], row[6])
	}
	if row[7] != "MEDIUM" || row[8] != "London" || row[9] != "United Kingdom" {
		t.Fatalf("tail = %v", row[7:])
	}
}

func TestDepositPaidRowHandlesSparseLead(t *testing.T) {
	lead := &leads.Lead{ID: uuid.New(), Phone: "+4477", Status: leads.StatusDepositPaid}
	row := depositPaidRow(lead, "evt_2")
	if row[5] != int64(0) || row[6] != "" || row[7] != "" {
		t.Fatalf("sparse lead row = %v", row)
	}
}
