package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// Client talks to the barter HTTP API on behalf of one signed-in user.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	session auth.Session
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string      `json:"error"`
	Code  apperr.Code `json:"code"`
}

// Login exchanges a user id for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, userID string) (auth.Session, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/login", map[string]string{"user_id": userID}, &resp); err != nil {
		return auth.Session{}, err
	}
	s := auth.Session{UserID: userID, Token: resp.Token}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s, nil
}

func (c *Client) Session() auth.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) ResolveOrCreateRoom(ctx context.Context, participantIDs []string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	body := map[string][]string{"participant_ids": participantIDs}
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) Rooms(ctx context.Context) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) Send(ctx context.Context, req model.SendRequest) (*model.Message, error) {
	var msg model.Message
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(req.RoomID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) List(ctx context.Context, roomID string) ([]model.Message, error) {
	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead marks the room read for the signed-in user. userID must match the
// session; the server derives the reader from the token.
func (c *Client) MarkRead(ctx context.Context, roomID, userID string) error {
	if s := c.Session(); userID != s.UserID {
		return apperr.Forbidden("cannot mark read for another user")
	}
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/read", nil, nil)
}

func (c *Client) SoftDelete(ctx context.Context, messageID snowflake.ID, actorID string) (*model.Message, error) {
	if s := c.Session(); actorID != s.UserID {
		return nil, apperr.Forbidden("cannot delete as another user")
	}
	var msg model.Message
	if err := c.do(ctx, http.MethodDelete, "/messages/"+messageID.String(), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) Heartbeat(ctx context.Context, userID string) error {
	if s := c.Session(); userID != s.UserID {
		return apperr.Forbidden("cannot heartbeat for another user")
	}
	return c.do(ctx, http.MethodPost, "/presence/heartbeat", nil, nil)
}

func (c *Client) SetOffline(ctx context.Context, userID string) error {
	if s := c.Session(); userID != s.UserID {
		return apperr.Forbidden("cannot set another user offline")
	}
	return c.do(ctx, http.MethodPost, "/presence/offline", nil, nil)
}

func (c *Client) Get(ctx context.Context, userID string) (model.Presence, error) {
	var p model.Presence
	if err := c.do(ctx, http.MethodGet, "/presence/"+url.PathEscape(userID), nil, &p); err != nil {
		return model.Presence{}, err
	}
	return p, nil
}

func (c *Client) IsOnline(ctx context.Context, userID string) (bool, error) {
	p, err := c.Get(ctx, userID)
	return p.IsOnline, err
}

// Upload sends r as the multipart "file" field of POST /media/{category}.
func (c *Client) Upload(ctx context.Context, category media.Category, filename, contentType string, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreatePart(fileHeader(filename, contentType))
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/media/"+url.PathEscape(string(category)), pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := c.roundTrip(req, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func fileHeader(filename, contentType string) textproto.MIMEHeader {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)},
		"Content-Type":        {contentType},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if tok := c.Session().Token; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Unavailable("api unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		if e.Code == "" {
			e.Code = codeForStatus(resp.StatusCode)
		}
		return apperr.New(e.Code, e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func codeForStatus(status int) apperr.Code {
	switch status {
	case http.StatusBadRequest:
		return apperr.CodeInvalidArgument
	case http.StatusUnauthorized:
		return apperr.CodeUnauthenticated
	case http.StatusForbidden:
		return apperr.CodePermissionDenied
	case http.StatusNotFound:
		return apperr.CodeNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return apperr.CodeUnavailable
	}
	return apperr.CodeInternal
}
