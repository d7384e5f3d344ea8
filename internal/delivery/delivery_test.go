package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/GabrielNunesIT/azmon-shipper/internal/auth"
	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
	"github.com/GabrielNunesIT/azmon-shipper/internal/testutil"
)

// mockHTTPClient implements HTTPDoer for testing.
type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.DoFunc(req)
}

func testAzureConfig() config.AzureConfig {
	return config.AzureConfig{
		EndpointHost: "x.ingest.monitor.azure.com",
		ImmutableID:  "dcr-1",
		StreamName:   "Custom-A",
	}
}

func newTestService(t *testing.T, token string, mock HTTPDoer) *Service {
	t.Helper()

	authn, err := auth.NewAuthenticator(context.Background(), testutil.StaticCredential(token), time.Hour, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("failed to build authenticator: %v", err)
	}

	return NewService(testAzureConfig(), authn, testutil.NewTestLogger(), WithHTTPClient(mock))
}

func okResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestEndpointURL(t *testing.T) {
	got := EndpointURL("x.ingest.monitor.azure.com", "dcr-1", "Custom-A")
	want := "https://x.ingest.monitor.azure.com/dataCollectionRules/dcr-1/streams/Custom-A?api-version=2021-11-01-preview"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSend_HeaderConstruction(t *testing.T) {
	var capturedReq *http.Request
	var capturedBody []byte

	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			capturedReq = req
			body, _ := io.ReadAll(req.Body)
			capturedBody = body
			return okResponse(http.StatusNoContent), nil
		},
	}

	svc := newTestService(t, "T1", mock)

	body := []byte(`[{"a":1}]`)
	_, err := svc.Send(context.Background(), &Request{Body: body, Events: 1, EventsByteSize: 7})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if capturedReq == nil {
		t.Fatal("expected HTTP request to be made")
	}

	if capturedReq.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", capturedReq.Method)
	}
	if got := capturedReq.URL.String(); got != svc.Endpoint() {
		t.Errorf("unexpected URL: %s", got)
	}
	if got := capturedReq.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected content-type: %s", got)
	}
	if capturedReq.ContentLength != 9 {
		t.Errorf("expected content-length 9, got %d", capturedReq.ContentLength)
	}
	if got := capturedReq.Header.Get("Authorization"); got != "Bearer T1" {
		t.Errorf("expected 'Bearer T1', got %q", got)
	}
	if string(capturedBody) != `[{"a":1}]` {
		t.Errorf("body was modified: %q", string(capturedBody))
	}
}

func TestSend_Success(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return okResponse(http.StatusNoContent), nil
		},
	}

	svc := newTestService(t, "T1", mock)

	body := []byte(`[{"a":1},{"b":2}]`)
	res, err := svc.Send(context.Background(), &Request{Body: body, Events: 2, EventsByteSize: 14})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if res.StatusCode != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", res.StatusCode)
	}
	if res.Events != 2 {
		t.Errorf("expected 2 events, got %d", res.Events)
	}
	if res.RawByteSize != len(body) {
		t.Errorf("expected raw byte size %d, got %d", len(body), res.RawByteSize)
	}
	if res.EventsByteSize != 14 {
		t.Errorf("expected events byte size 14, got %d", res.EventsByteSize)
	}
}

func TestSend_ServerError(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(strings.NewReader("try later")),
			}, nil
		},
	}

	svc := newTestService(t, "T1", mock)

	res, err := svc.Send(context.Background(), &Request{Body: []byte(`[]`)})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if res != nil {
		t.Error("expected nil response on server error")
	}

	var srvErr *ServerError
	if !errors.As(err, &srvErr) {
		t.Fatalf("expected *ServerError, got %T: %v", err, err)
	}
	if srvErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 in error, got %d", srvErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error should contain status code: %v", err)
	}
}

func TestSend_TransportError(t *testing.T) {
	cause := errors.New("connection refused")
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return nil, cause
		},
	}

	svc := newTestService(t, "T1", mock)

	res, err := svc.Send(context.Background(), &Request{Body: []byte(`[]`)})
	if err == nil {
		t.Fatal("expected error for transport failure")
	}
	if res != nil {
		t.Error("expected nil response on transport failure")
	}

	var trErr *TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

// sequenceCredential returns successive tokens on each fetch.
type sequenceCredential struct {
	mu     sync.Mutex
	tokens []string
	calls  int
}

func (s *sequenceCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	if idx >= len(s.tokens) {
		idx = len(s.tokens) - 1
	}
	s.calls++
	return azcore.AccessToken{Token: s.tokens[idx], ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestSend_TokenReadPerCall(t *testing.T) {
	var seen []string
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			seen = append(seen, req.Header.Get("Authorization"))
			return okResponse(http.StatusOK), nil
		},
	}

	cred := &sequenceCredential{tokens: []string{"T1", "T2"}}
	authn, err := auth.NewAuthenticator(context.Background(), cred, 10*time.Millisecond, testutil.NewTestLogger())
	if err != nil {
		t.Fatalf("failed to build authenticator: %v", err)
	}
	svc := NewService(testAzureConfig(), authn, testutil.NewTestLogger(), WithHTTPClient(mock))

	if _, err := svc.Send(context.Background(), &Request{Body: []byte(`[]`)}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go authn.Run(ctx)

	select {
	case <-authn.Refreshed():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for token refresh")
	}

	// The swapped token is picked up by the next call without rebuilding
	// the service.
	if _, err := svc.Send(context.Background(), &Request{Body: []byte(`[]`)}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(seen) != 2 || seen[0] != "Bearer T1" || seen[1] != "Bearer T2" {
		t.Errorf("unexpected authorization headers: %v", seen)
	}
}

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		name        string
		res         *Response
		err         error
		wantVerdict Verdict
		wantReason  string
	}{
		{
			name:        "transport failure",
			err:         &TransportError{Err: errors.New("connection reset")},
			wantVerdict: Retry,
			wantReason:  "transport error: connection reset",
		},
		{
			name:        "429 too many requests",
			err:         &ServerError{StatusCode: 429},
			wantVerdict: Retry,
			wantReason:  "too many requests",
		},
		{
			name:        "501 not implemented",
			err:         &ServerError{StatusCode: 501},
			wantVerdict: DontRetry,
			wantReason:  "endpoint not implemented",
		},
		{
			name:        "503 service unavailable",
			err:         &ServerError{StatusCode: 503},
			wantVerdict: Retry,
			wantReason:  "503 Service Unavailable",
		},
		{
			name:        "500 internal server error",
			err:         &ServerError{StatusCode: 500},
			wantVerdict: Retry,
			wantReason:  "500 Internal Server Error",
		},
		{
			name:        "200 ok",
			res:         &Response{StatusCode: 200},
			wantVerdict: Successful,
		},
		{
			name:        "204 no content",
			res:         &Response{StatusCode: 204},
			wantVerdict: Successful,
		},
		{
			name:        "404 not found",
			err:         &ServerError{StatusCode: 404},
			wantVerdict: DontRetry,
			wantReason:  "response status: 404 Not Found",
		},
		{
			name:        "400 bad request",
			err:         &ServerError{StatusCode: 400},
			wantVerdict: DontRetry,
			wantReason:  "response status: 400 Bad Request",
		},
		{
			name:        "302 redirect",
			err:         &ServerError{StatusCode: 302},
			wantVerdict: DontRetry,
			wantReason:  "response status: 302 Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := Classify(tt.res, tt.err)
			if action.Verdict != tt.wantVerdict {
				t.Errorf("expected verdict %s, got %s", tt.wantVerdict, action.Verdict)
			}
			if tt.wantReason != "" && action.Reason != tt.wantReason {
				t.Errorf("expected reason %q, got %q", tt.wantReason, action.Reason)
			}
		})
	}
}

func TestClassify_TotalOverAllStatusCodes(t *testing.T) {
	for code := 100; code <= 599; code++ {
		action := Classify(nil, &ServerError{StatusCode: code})

		var want Verdict
		switch {
		case code >= 200 && code <= 299:
			want = Successful
		case code == 429:
			want = Retry
		case code == 501:
			want = DontRetry
		case code >= 500 && code <= 599:
			want = Retry
		default:
			want = DontRetry
		}

		if action.Verdict != want {
			t.Errorf("status %d: expected %s, got %s", code, want, action.Verdict)
		}

		if action.Verdict != Successful && action.Reason == "" {
			t.Errorf("status %d: expected a reason for %s", code, action.Verdict)
		}
	}
}

func TestClassify_UnknownStatusText(t *testing.T) {
	// 599 has no registered status text; the reason degrades to the bare code.
	action := Classify(nil, &ServerError{StatusCode: 599})
	if action.Verdict != Retry {
		t.Errorf("expected Retry for 599, got %s", action.Verdict)
	}
	if action.Reason != "599" {
		t.Errorf("expected reason '599', got %q", action.Reason)
	}
}

func TestVerdictString(t *testing.T) {
	if fmt.Sprint(Successful) != "successful" || fmt.Sprint(Retry) != "retry" || fmt.Sprint(DontRetry) != "dont_retry" {
		t.Errorf("unexpected verdict strings: %v %v %v", Successful, Retry, DontRetry)
	}
}
