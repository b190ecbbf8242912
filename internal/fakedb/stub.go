package fakedb

import (
	"context"
	"time"

	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/query"
)

// Method names a Connection operation for matching.
type Method string

const (
	MethodSelect  Method = "select"
	MethodInsert  Method = "insert"
	MethodUpdate  Method = "update"
	MethodUpsert  Method = "upsert"
	MethodCall    Method = "call"
	MethodSession Method = "session"
)

// Request is what the fake recorded for one Connection call.
type Request struct {
	Method Method
	// Table is the table name, or the function name for calls.
	Table string
	Query *query.SelectQuery
	ID    int64
	Args  map[string]any
}

// RequestMatcher defines criteria for matching incoming requests.
type RequestMatcher struct {
	Method Method
	// Table restricts the match to one table or function. Empty matches all.
	Table string
	// Matcher is an optional predicate over the full request.
	Matcher func(req Request) bool
}

func (m RequestMatcher) matches(req Request) bool {
	if m.Method != "" && m.Method != req.Method {
		return false
	}
	if m.Table != "" && m.Table != req.Table {
		return false
	}
	return m.Matcher == nil || m.Matcher(req)
}

// FailureType represents the type of failure to inject before a request runs.
type FailureType string

const (
	// FailureRequestDelay delays before processing the request
	FailureRequestDelay FailureType = "request_delay"
	// FailureHang blocks until the caller's context is done
	FailureHang FailureType = "hang"
)

type FailureConfig struct {
	Type  FailureType
	Delay time.Duration
}

// StubResponse intercepts matching requests. With an Error the request fails
// with it; without one it proceeds normally after the failures are applied.
type StubResponse struct {
	Matcher  RequestMatcher
	Error    *connection.RemoteError
	Failures []FailureConfig
	// Times limits how many requests the stub handles. Zero means no limit.
	Times int
}

type stubState struct {
	StubResponse
	used int
}

// MatchMethod matches every request of one method.
func MatchMethod(method Method) RequestMatcher {
	return RequestMatcher{Method: method}
}

// MatchTable matches requests of one method on one table.
func MatchTable(method Method, table string) RequestMatcher {
	return RequestMatcher{Method: method, Table: table}
}

// ErrorStubResponse makes matching requests fail with message.
func ErrorStubResponse(m RequestMatcher, code, message string) StubResponse {
	return StubResponse{
		Matcher: m,
		Error:   &connection.RemoteError{Code: code, Message: message},
	}
}

// DelayStubResponse delays matching requests.
func DelayStubResponse(m RequestMatcher, d time.Duration) StubResponse {
	return StubResponse{
		Matcher:  m,
		Failures: []FailureConfig{{Type: FailureRequestDelay, Delay: d}},
	}
}

func (d *DB) AddStubResponse(stub StubResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stubs = append(d.stubs, &stubState{StubResponse: stub})
}

// intercept records req and applies the first stub matching it.
func (d *DB) intercept(ctx context.Context, req Request) error {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	var stub *StubResponse
	for _, s := range d.stubs {
		if s.Times > 0 && s.used >= s.Times {
			continue
		}
		if s.Matcher.matches(req) {
			s.used++
			copied := s.StubResponse
			stub = &copied
			break
		}
	}
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if stub == nil {
		return nil
	}

	for _, f := range stub.Failures {
		if err := applyFailure(ctx, f); err != nil {
			return err
		}
	}
	if stub.Error != nil {
		copied := *stub.Error
		return &copied
	}
	return nil
}

func applyFailure(ctx context.Context, f FailureConfig) error {
	switch f.Type {
	case FailureRequestDelay:
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case FailureHang:
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
