// Package rest talks to the store through PostgREST and its auth service, the
// way a Supabase project exposes them.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	"github.com/gofrs/uuid"

	"github.com/medkit/medinventory/internal/codec"
	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
	"github.com/medkit/medinventory/pkg/logger"
	"github.com/medkit/medinventory/pkg/models"
	"github.com/medkit/medinventory/pkg/query"
)

const accessTokenKey = "access_token"

type Connection struct {
	connection.BaseConnection

	BaseURL  string
	RESTPath string
	AuthPath string
	APIKey   string

	logger     logger.Logger
	httpClient *http.Client
	variables  sync.Map
}

var (
	_ connection.Connection    = (*Connection)(nil)
	_ connection.Authenticator = (*Connection)(nil)
)

func New(p *connection.Config) *Connection {
	con := Connection{
		BaseConnection: connection.BaseConnection{
			Marshaler:   p.Marshaler,
			Unmarshaler: p.Unmarshaler,
		},
		BaseURL:  p.BaseURL,
		RESTPath: constants.DefaultRESTPath,
		AuthPath: constants.DefaultAuthPath,
		APIKey:   p.APIKey,
		logger:   p.Logger,
	}

	if con.logger == nil {
		con.logger = logger.Nop()
	}

	timeout := p.HTTPTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	con.httpClient = &http.Client{
		Timeout: timeout, // Set a default timeout to avoid hanging requests
	}

	if p.AccessToken != "" {
		con.SetAccessToken(p.AccessToken)
	}

	return &con
}

// Connect checks that the REST endpoint answers with the configured key.
func (c *Connection) Connect(ctx context.Context) error {
	if c.BaseURL == "" {
		return constants.ErrNoBaseURL
	}
	if err := c.PreConnectionChecks(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.RESTPath+"/", nil, nil)
	if err != nil {
		return err
	}
	_, err = c.MakeRequest(req)
	return err
}

func (c *Connection) Close(ctx context.Context) error {
	return nil
}

func (c *Connection) SetTimeout(timeout time.Duration) *Connection {
	c.httpClient.Timeout = timeout
	return c
}

func (c *Connection) SetHTTPClient(client *http.Client) *Connection {
	c.httpClient = client
	return c
}

// SetAccessToken makes later requests act as the user the token belongs to.
func (c *Connection) SetAccessToken(token string) {
	c.variables.Store(accessTokenKey, token)
}

func (c *Connection) AccessToken() (string, bool) {
	token, ok := c.variables.Load(accessTokenKey)
	if !ok {
		return "", false
	}
	return token.(string), true
}

func (c *Connection) GetUnmarshaler() codec.Unmarshaler {
	return c.Unmarshaler
}

// Select runs q as GET /rest/v1/{table}, asking for the exact count.
func (c *Connection) Select(ctx context.Context, q *query.SelectQuery) (*connection.SelectResult, error) {
	values, err := q.Values()
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.RESTPath+"/"+q.Table(), values, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", constants.CountExact)
	if r := q.RangeHeader(); r != "" {
		req.Header.Set("Range-Unit", constants.RangeUnitItems)
		req.Header.Set("Range", r)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	// A window past the last row is answered with 416 and the total.
	if resp.status == http.StatusRequestedRangeNotSatisfiable {
		total, perr := query.ParseContentRange(resp.header.Get("Content-Range"))
		if perr != nil {
			return nil, resp.remoteError()
		}
		return &connection.SelectResult{Rows: []byte("[]"), Count: total}, nil
	}
	if !resp.ok() {
		return nil, resp.remoteError()
	}

	count, err := query.ParseContentRange(resp.header.Get("Content-Range"))
	if err != nil {
		count, err = countRows(resp.body)
		if err != nil {
			return nil, err
		}
	}

	return &connection.SelectResult{Rows: resp.body, Count: count}, nil
}

// Insert posts one record and returns the inserted row.
func (c *Connection) Insert(ctx context.Context, table string, record any) ([]byte, error) {
	return c.write(ctx, http.MethodPost, table, nil, record, constants.ReturnRepresent)
}

// Update patches the row with the given id.
func (c *Connection) Update(ctx context.Context, table string, id int64, patch any) ([]byte, error) {
	values := url.Values{}
	values.Set(constants.IDColumn, fmt.Sprintf("eq.%d", id))
	return c.write(ctx, http.MethodPatch, table, values, patch, constants.ReturnRepresent)
}

// Upsert posts one record, merging it into the row with the same id.
func (c *Connection) Upsert(ctx context.Context, table string, record any) ([]byte, error) {
	return c.write(ctx, http.MethodPost, table, nil, record, constants.MergeDuplicates+","+constants.ReturnRepresent)
}

func (c *Connection) write(ctx context.Context, method, table string, values url.Values, body any, prefer string) ([]byte, error) {
	if !query.ValidIdent(table) {
		return nil, fmt.Errorf("%w: table %q", constants.ErrInvalidIdentifier, table)
	}

	reqBody, err := c.Marshaler.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, c.RESTPath+"/"+table, values, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Prefer", prefer)

	return c.MakeRequest(req)
}

// Call posts args to /rest/v1/rpc/{fn}.
func (c *Connection) Call(ctx context.Context, fn string, args map[string]any) ([]byte, error) {
	if !query.ValidIdent(fn) {
		return nil, fmt.Errorf("%w: function %q", constants.ErrInvalidIdentifier, fn)
	}

	reqBody, err := c.Marshaler.Marshal(args)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.RESTPath+"/rpc/"+fn, nil, reqBody)
	if err != nil {
		return nil, err
	}

	return c.MakeRequest(req)
}

// Session asks the auth service who the access token belongs to. Without a
// token, or when the service rejects it, there is no session.
func (c *Connection) Session(ctx context.Context) (*connection.Session, error) {
	if _, ok := c.AccessToken(); !ok {
		return nil, nil
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.AuthPath+"/user", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden {
		return nil, nil
	}
	if !resp.ok() {
		return nil, resp.remoteError()
	}

	return parseUser(resp.body)
}

// SignInWithPassword exchanges credentials for an access token and keeps it
// for later requests.
func (c *Connection) SignInWithPassword(ctx context.Context, email, password string) (*connection.Session, error) {
	reqBody, err := c.Marshaler.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	values.Set("grant_type", "password")
	req, err := c.newRequest(ctx, http.MethodPost, c.AuthPath+"/token", values, reqBody)
	if err != nil {
		return nil, err
	}

	respData, err := c.MakeRequest(req)
	if err != nil {
		return nil, err
	}

	token, err := jsonparser.GetString(respData, "access_token")
	if err != nil {
		return nil, fmt.Errorf("%w: no access token: %w", constants.ErrInvalidResponse, err)
	}
	user, _, _, err := jsonparser.Get(respData, "user")
	if err != nil {
		return nil, fmt.Errorf("%w: no user: %w", constants.ErrInvalidResponse, err)
	}
	sess, err := parseUser(user)
	if err != nil {
		return nil, err
	}

	c.SetAccessToken(token)
	return sess, nil
}

// SignOut revokes the access token and forgets it.
func (c *Connection) SignOut(ctx context.Context) error {
	if _, ok := c.AccessToken(); !ok {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.AuthPath+"/logout", nil, nil)
	if err != nil {
		return err
	}

	_, err = c.MakeRequest(req)
	c.variables.Delete(accessTokenKey)
	return err
}

func (c *Connection) newRequest(ctx context.Context, method, path string, values url.Values, body []byte) (*http.Request, error) {
	if c.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	u := strings.TrimRight(c.BaseURL, "/") + path
	if len(values) > 0 {
		u += "?" + values.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.Must(uuid.NewV4()).String())
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}
	if token, ok := c.AccessToken(); ok {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	} else if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}

	return req, nil
}

// MakeRequest sends req and returns the body of a 2xx answer. Any other
// status becomes a *connection.RemoteError.
func (c *Connection) MakeRequest(req *http.Request) ([]byte, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.remoteError()
	}
	return resp.body, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Connection) do(req *http.Request) (*response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", constants.ErrTimeout, err)
		}
		return nil, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("rest request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-Id"))

	return &response{status: resp.StatusCode, header: resp.Header, body: respBytes}, nil
}

// remoteError decodes a PostgREST or auth service error body. Bodies that are
// not JSON are reported as they are.
func (r *response) remoteError() *connection.RemoteError {
	e := &connection.RemoteError{Status: r.status}

	for _, key := range []string{"message", "msg", "error_description", "error"} {
		if v, err := jsonparser.GetString(r.body, key); err == nil && v != "" {
			e.Message = v
			break
		}
	}
	if v, _, _, err := jsonparser.Get(r.body, "code"); err == nil {
		e.Code = string(v)
	}
	e.Details, _ = jsonparser.GetString(r.body, "details")
	e.Hint, _ = jsonparser.GetString(r.body, "hint")

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(r.body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(r.status)
	}
	return e
}

func parseUser(data []byte) (*connection.Session, error) {
	id, err := jsonparser.GetString(data, "id")
	if err != nil {
		return nil, fmt.Errorf("%w: user has no id: %w", constants.ErrInvalidResponse, err)
	}
	identity, err := models.ParseIdentity(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidResponse, err)
	}
	email, _ := jsonparser.GetString(data, "email")
	return &connection.Session{Identity: identity, Email: email}, nil
}

func countRows(data []byte) (int64, error) {
	var n int64
	_, err := jsonparser.ArrayEach(data, func([]byte, jsonparser.ValueType, int, error) {
		n++
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", constants.ErrInvalidResponse, err)
	}
	return n, nil
}
