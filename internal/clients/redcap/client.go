// Package redcap provides a client for the REDCap data-capture API.
package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinops/stratrand/internal/modules/codebook"
)

// ErrNoEligibleRecords is returned when the report export contains no
// pending subjects. A run with nothing to randomize is not an API failure,
// but there is also nothing for it to do.
var ErrNoEligibleRecords = errors.New("no eligible records in report")

// Report is the pending-subject export. Fields preserves the report's field
// order (the first field is the record identifier); Records hold raw values,
// which REDCap exports as strings.
type Report struct {
	Fields  []string
	Records []map[string]string
}

// Client for the REDCap API
type Client struct {
	endpoint string
	token    string
	client   *http.Client
	log      zerolog.Logger
}

// NewClient creates a new REDCap API client
func NewClient(endpoint, token string, log zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.With().Str("client", "redcap").Logger(),
	}
}

// ExportReport fetches the pending-subject report as raw-coded records.
func (c *Client) ExportReport(ctx context.Context, reportID string) (*Report, error) {
	form := url.Values{
		"token":               {c.token},
		"content":             {"report"},
		"format":              {"json"},
		"report_id":           {reportID},
		"csvDelimiter":        {""},
		"rawOrLabel":          {"raw"},
		"rawOrLabelHeaders":   {"raw"},
		"exportCheckboxLabel": {"false"},
		"returnFormat":        {"json"},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("report export failed: %w", err)
	}

	var records []map[string]string
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse report export: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrNoEligibleRecords
	}

	fields, err := fieldOrder(body)
	if err != nil {
		return nil, fmt.Errorf("failed to recover report field order: %w", err)
	}

	c.log.Info().
		Str("report_id", reportID).
		Int("records", len(records)).
		Msg("Report export successful")

	return &Report{Fields: fields, Records: records}, nil
}

// ExportMetadata fetches the project codebook (field metadata).
func (c *Client) ExportMetadata(ctx context.Context) ([]codebook.Field, error) {
	form := url.Values{
		"token":        {c.token},
		"content":      {"metadata"},
		"format":       {"json"},
		"returnFormat": {"json"},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("metadata export failed: %w", err)
	}

	var fields []codebook.Field
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse metadata export: %w", err)
	}

	c.log.Info().Int("fields", len(fields)).Msg("Metadata export successful")
	return fields, nil
}

// ImportRecords writes updated records back, returning the imported count.
// Values may be nil to clear a field (REDCap expects null, not "-1").
func (c *Client) ImportRecords(ctx context.Context, records []map[string]interface{}) (int, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize records: %w", err)
	}

	form := url.Values{
		"token":             {c.token},
		"content":           {"record"},
		"format":            {"json"},
		"type":              {"flat"},
		"overwriteBehavior": {"normal"},
		"forceAutoNumber":   {"false"},
		"data":              {string(data)},
		"returnContent":     {"count"},
		"returnFormat":      {"json"},
	}

	body, err := c.post(ctx, form)
	if err != nil {
		return 0, fmt.Errorf("record import failed: %w", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse import response: %w", err)
	}

	c.log.Info().Int("count", result.Count).Msg("Record import successful")
	return result.Count, nil
}

// post sends one form-encoded API request and returns the response body.
func (c *Client) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

// fieldOrder walks the first object of a JSON array and returns its keys in
// document order. Go maps drop key order on unmarshal, but the criteria list
// is derived from the report's field order, so it is recovered here.
func fieldOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("expected array, got %v", tok)
	}

	tok, err = dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var fields []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", keyTok)
		}
		fields = append(fields, key)

		// Skip the value
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
	}

	return fields, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
