// Package sheets reads and writes spreadsheet cells through the Google
// Sheets values REST API.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/oauth2/google"

	"github.com/voxlift/sheetvox/internal/retry"
)

// spreadsheetsScope grants read/write access to spreadsheet values.
const spreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"

var (
	// ErrInvalidColumn indicates a column reference outside A-Z.
	ErrInvalidColumn = errors.New("invalid column reference")

	// ErrMissingCredentials indicates no usable service-account file.
	ErrMissingCredentials = errors.New("missing service account credentials")
)

// Cell is one populated row position in a column.
type Cell struct {
	Index int // 1-based row index
	Text  string
}

// Reader reads one column of a sheet.
type Reader interface {
	ReadColumn(ctx context.Context, column string) ([]Cell, error)
}

// Writer writes a single cell.
type Writer interface {
	WriteCell(ctx context.Context, column string, rowIndex int, value string) error
}

// Config configures the sheets client.
type Config struct {
	BaseURL         string // default https://sheets.googleapis.com
	SheetID         string
	SheetName       string
	CredentialsFile string // service account JSON; unused when HTTPClient is set
	Timeout         time.Duration

	// HTTPClient overrides the authenticated client, for tests.
	HTTPClient *http.Client
}

// Client talks to the Sheets values API for a single worksheet.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates an authenticated sheets client. Auth is a two-legged
// OAuth2 token from the service-account key, the same credentials file the
// storage backends use for GCS.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sheets.googleapis.com"
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var httpClient *http.Client
	if cfg.HTTPClient != nil {
		// Work on a copy so the caller's client is left untouched.
		clone := *cfg.HTTPClient
		if clone.Timeout == 0 {
			clone.Timeout = cfg.Timeout
		}
		httpClient = &clone
	} else {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMissingCredentials, cfg.CredentialsFile, err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, spreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account credentials: %w", err)
		}
		httpClient = jwtCfg.Client(ctx)
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{cfg: cfg, client: httpClient}, nil
}

// ValidateColumn checks a single-letter column reference.
func ValidateColumn(column string) error {
	if len(column) != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	c := column[0]
	if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
		return fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	return nil
}

// valueRange is the values API payload in both directions.
type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// ReadColumn fetches the whole column in one request. Large sheets are the
// normal case, so the response is requested gzip-compressed.
func (c *Client) ReadColumn(ctx context.Context, column string) ([]Cell, error) {
	if err := ValidateColumn(column); err != nil {
		return nil, retry.Permanent(err)
	}

	rangeRef := fmt.Sprintf("%s!%s:%s", c.cfg.SheetName, column, column)
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=COLUMNS",
		c.cfg.BaseURL, url.PathEscape(c.cfg.SheetID), url.PathEscape(rangeRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Set explicitly so the transport does not transparently decode; the
	// body is decompressed below with the faster gzip implementation.
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	body := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	var vr valueRange
	if err := json.NewDecoder(body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode values response: %w", err)
	}

	if len(vr.Values) == 0 {
		return nil, nil
	}

	cells := make([]Cell, 0, len(vr.Values[0]))
	for i, text := range vr.Values[0] {
		cells = append(cells, Cell{Index: i + 1, Text: text})
	}
	return cells, nil
}

// WriteCell sets one cell to the given value.
func (c *Client) WriteCell(ctx context.Context, column string, rowIndex int, value string) error {
	if err := ValidateColumn(column); err != nil {
		return retry.Permanent(err)
	}

	cellRef := fmt.Sprintf("%s!%s%d", c.cfg.SheetName, column, rowIndex)
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.cfg.BaseURL, url.PathEscape(c.cfg.SheetID), url.PathEscape(cellRef))

	body, err := json.Marshal(valueRange{Range: cellRef, Values: [][]string{{value}}})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.StatusError{StatusCode: resp.StatusCode, Message: string(detail)}
	}

	return nil
}
