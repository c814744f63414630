// Package sheets is a minimal client for the Google Sheets v4 values API.
// It exposes the handful of row/column operations the rest of the system
// needs: header discovery, full reads, appends and single-cell updates.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a spreadsheet API client bound to a single spreadsheet
type Client struct {
	baseURL       string
	token         string
	spreadsheetID string
	httpClient    *http.Client
}

// NewClient creates a new spreadsheet client
func NewClient(baseURL, token, spreadsheetID string) *Client {
	return &Client{
		baseURL:       baseURL,
		token:         token,
		spreadsheetID: spreadsheetID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Worksheet returns a handle for a named worksheet within the spreadsheet
func (c *Client) Worksheet(name string) *Worksheet {
	return &Worksheet{client: c, name: name}
}

// valueRange mirrors the values API wire format
type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// request performs an HTTP request against the values API
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + "/spreadsheets/" + c.spreadsheetID + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("sheets API error: %s", errResp.Error.Message)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// getValues reads a range of cells
func (c *Client) getValues(ctx context.Context, rangeA1 string) ([][]string, error) {
	var resp valueRange
	path := "/values/" + url.PathEscape(rangeA1)
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// appendValues appends one row after the last row of the range
func (c *Client) appendValues(ctx context.Context, rangeA1 string, row []string) error {
	query := url.Values{"valueInputOption": {"USER_ENTERED"}}
	path := "/values/" + url.PathEscape(rangeA1) + ":append"
	body := valueRange{Values: [][]string{row}}
	return c.request(ctx, http.MethodPost, path, query, body, nil)
}

// updateValues overwrites a range with the given values
func (c *Client) updateValues(ctx context.Context, rangeA1 string, values [][]string) error {
	query := url.Values{"valueInputOption": {"USER_ENTERED"}}
	path := "/values/" + url.PathEscape(rangeA1)
	body := valueRange{Values: values}
	return c.request(ctx, http.MethodPut, path, query, body, nil)
}
