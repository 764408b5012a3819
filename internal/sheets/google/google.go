// Package google mirrors the ledger into a Google spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"harvester/internal/core"
	"harvester/internal/export"
	"harvester/internal/log"
	ports "harvester/internal/sheets"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ports.LedgerWriter = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	farmersSheet  string
	expensesSheet string
	logger        *log.Logger
}

// Config names the spreadsheet and its two sheets.
type Config struct {
	SpreadsheetID string
	FarmersSheet  string
	ExpensesSheet string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.FarmersSheet) == "" {
		c.FarmersSheet = "Farmers"
	}
	if strings.TrimSpace(c.ExpensesSheet) == "" {
		c.ExpensesSheet = "Expenses"
	}
	return c
}

// New creates a Sheets client. A user OAuth token written by
// harvester-oauth-init (GOOGLE_OAUTH_CLIENT_* plus GOOGLE_OAUTH_TOKEN_*) is
// preferred; otherwise a service account from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS is used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	httpClient, err := authenticatedClient(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test server.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		farmersSheet:  cfg.FarmersSheet,
		expensesSheet: cfg.ExpensesSheet,
		logger:        log.WithComponent(log.ComponentSheets),
	}
}

// authenticatedClient layers the token source over the pooled transport.
// option.WithHTTPClient disables every other auth option, so the token has
// to live in the client itself.
func authenticatedClient(ctx context.Context) (*http.Client, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())

	if clientJSON, ok, err := envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE"); err != nil {
		return nil, err
	} else if ok {
		oauthCfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("oauth config: %w", err)
		}
		tokenJSON, ok, err := envOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
		}
		var tok oauth2.Token
		if err := json.Unmarshal(tokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		return oauthCfg.Client(base, &tok), nil
	}

	credentials, err := readCredentials()
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, credentials, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return oauth2.NewClient(base, creds.TokenSource), nil
}

// envOrFile reads inline JSON from jsonKey, or the file named by fileKey.
func envOrFile(jsonKey, fileKey string) ([]byte, bool, error) {
	if inline := strings.TrimSpace(os.Getenv(jsonKey)); inline != "" {
		return []byte(inline), true, nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return data, true, nil
}

func readCredentials() ([]byte, error) {
	data, ok, err := envOrFile("GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE")
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}
	if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and timeouts suited to the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) ReplaceFarmers(ctx context.Context, records []core.FarmerRecord) error {
	return c.replace(ctx, c.farmersSheet, export.FarmerHeader, export.FarmerRows(records))
}

func (c *Client) ReplaceExpenses(ctx context.Context, records []core.ExpenseRecord) error {
	return c.replace(ctx, c.expensesSheet, export.ExpenseHeader, export.ExpenseRows(records))
}

// replace clears the sheet and writes header and rows starting at A1.
func (c *Client) replace(ctx context.Context, sheet string, header []string, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	values := make([][]any, 0, len(rows)+1)
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	values = append(values, head)
	values = append(values, rows...)

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, sheet, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	rng := fmt.Sprintf("%s!A1", sheet)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update sheet %s: %w", sheet, err)
	}

	c.logger.InfoContext(ctx, "Sheet rewritten",
		"sheet", sheet,
		"rows", len(rows))
	return nil
}
