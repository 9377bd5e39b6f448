// Package sheets appends dispatch rows to Google Sheets with a service account.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"lead_dispatch_backend/platform/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrNotConfigured is returned by New when no credentials are configured.
var ErrNotConfigured = errors.New("google sheets credentials not configured")

// Appender implements dispatch.SheetAppender.
type Appender struct {
	service *sheets.Service
}

// New builds an Appender from service-account credentials.
func New(ctx context.Context, cfg config.GoogleSheetsConfig) (*Appender, error) {
	if !cfg.IsGoogleSheetsEnabled() {
		return nil, ErrNotConfigured
	}

	credentials := []byte(cfg.GetGoogleSheetsCredentialsJSON())
	if len(credentials) == 0 {
		data, err := os.ReadFile(cfg.GetGoogleSheetsCredentialsFile())
		if err != nil {
			return nil, fmt.Errorf("read google sheets credentials: %w", err)
		}
		credentials = data
	}

	jwtConfig, err := google.JWTConfigFromJSON(credentials, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google sheets credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, jwtConfig.TokenSource(ctx))

	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewWithService(service), nil
}

// NewWithService wraps an existing client.
func NewWithService(service *sheets.Service) *Appender {
	return &Appender{service: service}
}

// AppendRow appends row after the last non-empty row of sheetName.
func (a *Appender) AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []any) error {
	if a == nil || a.service == nil {
		return ErrNotConfigured
	}

	_, err := a.service.Spreadsheets.Values.
		Append(spreadsheetID, appendRange(sheetName), &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to spreadsheet %s: %w", spreadsheetID, err)
	}
	return nil
}

func appendRange(sheetName string) string {
	name := strings.TrimSpace(sheetName)
	if name == "" {
		return "A1"
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'!A1"
}
