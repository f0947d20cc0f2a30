// Package api is the client for the chat server's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/umar/roomsync/internal/auth"
	"github.com/umar/roomsync/internal/models"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second

	// InstanceHeader identifies this client process in server logs.
	InstanceHeader = "X-Client-Instance"
)

func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHTTPTimeout,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Retryable reports whether err is worth retrying: transport failures and
// temporary status errors are, everything else (bad input, auth, decoding)
// is not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return false
	}
	return true
}

// DecodeError wraps a response body that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "failed to decode response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

type Client struct {
	baseURL    string
	token      string
	instanceID uuid.UUID
	http       *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithInstanceID(id uuid.UUID) Option {
	return func(c *Client) { c.instanceID = id }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		instanceID: uuid.New(),
		http:       defaultHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) InstanceID() uuid.UUID {
	return c.instanceID
}

// JoinedRooms fetches every room the user has joined.
func (c *Client) JoinedRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	if err := c.do(ctx, http.MethodGet, "/room/joined", nil, &rooms); err != nil {
		return nil, fmt.Errorf("failed to fetch joined rooms: %w", err)
	}
	return rooms, nil
}

func (c *Client) Room(ctx context.Context, roomID string) (*models.RoomDetails, error) {
	var details models.RoomDetails
	if err := c.do(ctx, http.MethodGet, "/room/"+url.PathEscape(roomID), nil, &details); err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	return &details, nil
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, update models.RoomUpdate) error {
	if err := c.do(ctx, http.MethodPut, "/room/"+url.PathEscape(roomID)+"/update", update, nil); err != nil {
		return fmt.Errorf("failed to update room %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	if err := c.do(ctx, http.MethodPost, "/room/"+url.PathEscape(roomID)+"/leave", struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to leave room %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", auth.BearerHeader(c.token))
	}
	req.Header.Set(InstanceHeader, c.instanceID.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// errorMessage pulls a message out of an error body. The server answers with
// {"message": ...} or {"error": ...}; anything else is returned as text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
