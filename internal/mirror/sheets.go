// Package mirror appends lead milestones to an external spreadsheet. The
// mirror is an observability copy, not a source of truth: failures are
// logged by callers and never block the transactional path.
package mirror

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/internal/leads"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// appendRange targets the running log sheet; Sheets resolves the next free
// row on append.
const appendRange = "Leads!A:J"

// valuesAppender is the slice of the Sheets API the mirror exercises.
type valuesAppender interface {
	Append(ctx context.Context, spreadsheetID, rng string, row []any) error
}

// SheetsMirror mirrors lead milestones into one spreadsheet.
type SheetsMirror struct {
	appender      valuesAppender
	spreadsheetID string
	clock         clock.Clock
	logger        *logging.Logger
}

// NewSheetsMirror builds the production mirror against the Sheets API using
// service-account credentials.
func NewSheetsMirror(ctx context.Context, credentialsJSON []byte, spreadsheetID string, clk clock.Clock, logger *logging.Logger) (*SheetsMirror, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("mirror: sheets client: %w", err)
	}
	return newSheetsMirror(&sheetsAppender{svc: svc}, spreadsheetID, clk, logger), nil
}

func newSheetsMirror(appender valuesAppender, spreadsheetID string, clk clock.Clock, logger *logging.Logger) *SheetsMirror {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SheetsMirror{
		appender:      appender,
		spreadsheetID: spreadsheetID,
		clock:         clk,
		logger:        logger,
	}
}

// RecordDepositPaid appends one deposit-paid row keyed by the provider's
// event id so replayed webhooks are traceable in the sheet.
func (m *SheetsMirror) RecordDepositPaid(ctx context.Context, lead *leads.Lead, correlationID string) error {
	row := depositPaidRow(lead, correlationID)
	if err := m.appender.Append(ctx, m.spreadsheetID, appendRange, row); err != nil {
		return fmt.Errorf("mirror: append deposit row: %w", err)
	}
	m.logger.Info("deposit mirrored", "lead_id", lead.ID, "correlation_id", correlationID)
	return nil
}

// depositPaidRow flattens the lead snapshot into sheet columns.
func depositPaidRow(lead *leads.Lead, correlationID string) []any {
	var amount int64
	if lead.DepositAmountPence != nil {
		amount = *lead.DepositAmountPence
	}
	paidAt := ""
	if lead.DepositPaidAt != nil {
		paidAt = lead.DepositPaidAt.UTC().Format("2006-01-02 15:04:05")
	}
	city, country := "", ""
	if lead.LocationCity != nil {
		city = *lead.LocationCity
	}
	if lead.LocationCountry != nil {
		country = *lead.LocationCountry
	}
	category := ""
	if lead.EstimatedCategory != nil {
		category = *lead.EstimatedCategory
	}
	return []any{
		correlationID,
		lead.ID.String(),
		lead.Phone,
		string(lead.Status),
		"deposit_paid",
		amount,
		paidAt,
		category,
		city,
		country,
	}
}

// sheetsAppender adapts the generated Sheets client to valuesAppender.
type sheetsAppender struct {
	svc *sheets.Service
}

func (a *sheetsAppender) Append(ctx context.Context, spreadsheetID, rng string, row []any) error {
	vr := &sheets.ValueRange{Values: [][]any{row}}
	_, err := a.svc.Spreadsheets.Values.Append(spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
