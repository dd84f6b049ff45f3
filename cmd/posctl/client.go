package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warp/cashdrawer/api"
)

// client calls the till API with basic auth.
type client struct {
	base     string
	user     string
	password string
	http     *http.Client
}

func newClient() *client {
	return &client{
		base:     strings.TrimRight(*serverURL, "/"),
		user:     *userID,
		password: *password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx reply.
type apiError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *apiError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Details != "" {
		msg += ": " + e.Body.Details
	}
	return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
}

// call sends in as JSON (nil for no body) and decodes the reply into out
// (nil to discard it).
func (c *client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and turns error replies into *apiError. The
// caller closes the body of a successful response.
func (c *client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		e := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&e.Body)
		return nil, e
	}
	return resp, nil
}
