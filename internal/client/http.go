package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/iliyamo/student-hostel-booking/internal/model"
)

const maxResponseBytes = 1 << 20

// APIError is a non-2xx answer from the server.  It unwraps to the model
// sentinel named by the body's "code".
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.Status)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return model.ErrorFromCode(e.Code) }

// HTTPBackend talks to the hostel API over HTTP.
type HTTPBackend struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPBackend returns a backend for the API rooted at baseURL.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for a Session.
func (b *HTTPBackend) Login(ctx context.Context, email, password string) (*Session, error) {
	body, err := b.do(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	return &Session{
		UserID:       res.Get("user.id").Uint(),
		Role:         res.Get("user.role").String(),
		AccessToken:  res.Get("access.token").String(),
		RefreshToken: res.Get("refresh.token").String(),
	}, nil
}

func (b *HTTPBackend) Hold(ctx context.Context, token string, roomID uint64) (model.Booking, error) {
	var out model.Booking
	body, err := b.do(ctx, http.MethodPost, fmt.Sprintf("/v1/rooms/%d/hold", roomID), token, nil)
	if err != nil {
		return out, err
	}
	return out, decode(body, &out)
}

func (b *HTTPBackend) Book(ctx context.Context, token string, req BookRequest) (model.Booking, error) {
	var out model.Booking
	body, err := b.do(ctx, http.MethodPost, "/v1/bookings", token, map[string]any{
		"hostel_id":    req.HostelID,
		"room_id":      req.RoomID,
		"amount_cents": req.AmountCents,
		"term":         req.Term,
	})
	if err != nil {
		return out, err
	}
	res := gjson.ParseBytes(body)
	if !res.Get("success").Bool() {
		return out, apiError(http.StatusOK, body)
	}
	if raw := res.Get("booking"); raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &out); err != nil {
			return out, fmt.Errorf("%w: decode booking: %v", model.ErrBackend, err)
		}
	}
	out.ID = res.Get("booking_id").Uint()
	return out, nil
}

func (b *HTTPBackend) Room(ctx context.Context, roomID uint64) (model.Room, error) {
	var out model.Room
	body, err := b.do(ctx, http.MethodGet, fmt.Sprintf("/v1/rooms/%d", roomID), "", nil)
	if err != nil {
		return out, err
	}
	return out, decode(body, &out)
}

func (b *HTTPBackend) Rooms(ctx context.Context, hostelID uint64) ([]model.Room, error) {
	body, err := b.do(ctx, http.MethodGet, fmt.Sprintf("/v1/hostels/%d/rooms", hostelID), "", nil)
	if err != nil {
		return nil, err
	}
	out := []model.Room{}
	items := gjson.GetBytes(body, "items")
	if !items.Exists() {
		return out, nil
	}
	return out, decode([]byte(items.Raw), &out)
}

func (b *HTTPBackend) Checkout(ctx context.Context, token string, bookingID uint64) (CheckoutSession, error) {
	body, err := b.do(ctx, http.MethodPost, fmt.Sprintf("/v1/bookings/%d/checkout", bookingID), token, nil)
	if err != nil {
		return CheckoutSession{}, err
	}
	res := gjson.ParseBytes(body)
	return CheckoutSession{ID: res.Get("session_id").String(), URL: res.Get("url").String()}, nil
}

func (b *HTTPBackend) Verify(ctx context.Context, token, sessionID string, bookingID uint64) (bool, error) {
	body, err := b.do(ctx, http.MethodPost, "/v1/payments/verify", token, map[string]any{
		"session_id": sessionID,
		"booking_id": bookingID,
	})
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(body, "status").String() == "paid", nil
}

// do sends one request.  Transport failures and undecodable answers wrap
// ErrBackend; error bodies become *APIError.
func (b *HTTPBackend) do(ctx context.Context, method, path, token string, in any) ([]byte, error) {
	var rdr io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrBackend, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", model.ErrBackend, err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func apiError(status int, body []byte) *APIError {
	res := gjson.ParseBytes(body)
	e := &APIError{
		Status:  status,
		Code:    res.Get("code").String(),
		Message: res.Get("error").String(),
	}
	if e.Code == "" {
		switch status {
		case http.StatusUnauthorized:
			e.Code = model.CodeAuthenticationRequired
		case http.StatusForbidden:
			e.Code = model.CodeForbidden
		case http.StatusNotFound:
			e.Code = model.CodeNotFound
		default:
			e.Code = model.CodeBackend
		}
	}
	return e
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", model.ErrBackend, err)
	}
	return nil
}
