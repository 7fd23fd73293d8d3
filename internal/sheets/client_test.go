package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/voxlift/sheetvox/internal/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		SheetID:    "sheet-1",
		SheetName:  "Sheet1",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestReadColumn(t *testing.T) {
	var gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(valueRange{
			Range:          "Sheet1!A1:A3",
			MajorDimension: "COLUMNS",
			Values:         [][]string{{"Hello", "World", "Test"}},
		})
	}))

	cells, err := c.ReadColumn(context.Background(), "A")
	if err != nil {
		t.Fatalf("ReadColumn failed: %v", err)
	}

	if gotPath != "/v4/spreadsheets/sheet-1/values/Sheet1!A:A" {
		t.Errorf("request path = %q", gotPath)
	}
	if len(cells) != 3 {
		t.Fatalf("got %d cells, want 3", len(cells))
	}
	if cells[0] != (Cell{Index: 1, Text: "Hello"}) {
		t.Errorf("cells[0] = %+v", cells[0])
	}
	if cells[2] != (Cell{Index: 3, Text: "Test"}) {
		t.Errorf("cells[2] = %+v", cells[2])
	}
}

func TestReadColumnGzipResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip" {
			t.Errorf("Accept-Encoding = %q, want gzip", r.Header.Get("Accept-Encoding"))
		}

		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		json.NewEncoder(gz).Encode(valueRange{Values: [][]string{{"a", "b"}}})
		gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))

	cells, err := c.ReadColumn(context.Background(), "A")
	if err != nil {
		t.Fatalf("ReadColumn failed: %v", err)
	}
	if len(cells) != 2 || cells[1].Text != "b" {
		t.Errorf("cells = %+v", cells)
	}
}

func TestReadColumnEmptySheet(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"range":"Sheet1!A:A","majorDimension":"COLUMNS"}`))
	}))

	cells, err := c.ReadColumn(context.Background(), "A")
	if err != nil {
		t.Fatalf("ReadColumn failed: %v", err)
	}
	if len(cells) != 0 {
		t.Errorf("got %d cells, want 0", len(cells))
	}
}

func TestWriteCell(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody valueRange
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))

	err := c.WriteCell(context.Background(), "B", 7, "https://example.com/7.mp3")
	if err != nil {
		t.Fatalf("WriteCell failed: %v", err)
	}

	if gotPath != "/v4/spreadsheets/sheet-1/values/Sheet1!B7" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotQuery != "valueInputOption=RAW" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(gotBody.Values) != 1 || gotBody.Values[0][0] != "https://example.com/7.mp3" {
		t.Errorf("body values = %+v", gotBody.Values)
	}
}

func TestWriteCellServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend error", http.StatusInternalServerError)
	}))

	err := c.WriteCell(context.Background(), "B", 1, "x")
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want StatusError 500", err)
	}
	if retry.IsPermanent(retry.Classify(err)) {
		t.Error("500 should classify transient")
	}
}

func TestNewClientDoesNotMutateInjectedClient(t *testing.T) {
	hc := &http.Client{Timeout: 5 * time.Second}
	c, err := NewClient(context.Background(), Config{
		SheetID:    "sheet-1",
		HTTPClient: hc,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if hc.Timeout != 5*time.Second {
		t.Errorf("caller client timeout = %v, want untouched 5s", hc.Timeout)
	}
	if c.client == hc {
		t.Error("client should operate on a copy, not the caller's instance")
	}

	// A zero-timeout injected client still gets the bounded default copy.
	bare := &http.Client{}
	c, err = NewClient(context.Background(), Config{SheetID: "sheet-1", HTTPClient: bare})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if bare.Timeout != 0 {
		t.Errorf("caller client timeout = %v, want untouched 0", bare.Timeout)
	}
	if c.client.Timeout == 0 {
		t.Error("internal copy should carry the default timeout")
	}
}

func TestInvalidColumnIsPermanent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an invalid column")
	}))

	_, err := c.ReadColumn(context.Background(), "A1")
	if !errors.Is(err, ErrInvalidColumn) {
		t.Fatalf("error = %v, want ErrInvalidColumn", err)
	}
	if !retry.IsPermanent(err) {
		t.Error("invalid column should be permanent")
	}
}
