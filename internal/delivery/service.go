// Package delivery sends encoded batches to the Data Collection Rule
// ingestion endpoint and classifies delivery outcomes.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/azmon-shipper/internal/auth"
	"github.com/GabrielNunesIT/azmon-shipper/internal/config"
)

// apiVersion is the Logs Ingestion API version the endpoint is called with.
const apiVersion = "2021-11-01-preview"

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Ensure http.Client implements HTTPDoer.
var _ HTTPDoer = (*http.Client)(nil)

// EndpointURL builds the ingestion URL for a stream of a Data Collection
// Rule. The URL is fixed for the lifetime of the service.
func EndpointURL(endpointHost, immutableID, streamName string) string {
	return fmt.Sprintf("https://%s/dataCollectionRules/%s/streams/%s?api-version=%s",
		endpointHost, immutableID, streamName, apiVersion)
}

// Request is one encoded batch ready to send. Body is the final JSON array;
// Events and EventsByteSize carry the encoder's accounting through to the
// response.
type Request struct {
	Body           []byte
	Events         int
	EventsByteSize int
}

// Response reports an accepted batch.
type Response struct {
	StatusCode     int
	Events         int
	RawByteSize    int
	EventsByteSize int
}

// TransportError wraps a network-level failure of a delivery call.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response from the endpoint.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server responded with an error: %s", statusLine(e.StatusCode))
}

// Service posts batches to the fixed endpoint. A single Service is shared
// by all delivery workers: it holds no per-call state, reads the token once
// per request and imposes no deadline of its own, so concurrent Sends are
// fully independent. Retries belong to the caller.
type Service struct {
	client   HTTPDoer
	endpoint string
	authn    *auth.Authenticator
	logger   logger.ILogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHTTPClient sets a custom HTTP client for testing.
func WithHTTPClient(client HTTPDoer) ServiceOption {
	return func(s *Service) {
		s.client = client
	}
}

// NewService creates a delivery service for the configured endpoint.
func NewService(cfg config.AzureConfig, authn *auth.Authenticator, log logger.ILogger, opts ...ServiceOption) *Service {
	s := &Service{
		client:   &http.Client{},
		endpoint: EndpointURL(cfg.EndpointHost, cfg.ImmutableID, cfg.StreamName),
		authn:    authn,
		logger:   log.SubLogger("DeliveryService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Endpoint returns the URL batches are sent to.
func (s *Service) Endpoint() string {
	return s.endpoint
}

// Send posts one batch. The body is sent unmodified; only the envelope
// headers (content-type, content-length, Authorization) are added.
// Outcomes: a *TransportError on network failure, a *ServerError on any
// non-2xx status, otherwise a Response carrying the batch accounting.
func (s *Service) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.ContentLength = int64(len(req.Body))
	s.authn.Apply(httpReq)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	// Drain so the transport can reuse the connection.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}

	s.logger.Debugf("batch accepted: status=%d events=%d bytes=%d", resp.StatusCode, req.Events, len(req.Body))

	return &Response{
		StatusCode:     resp.StatusCode,
		Events:         req.Events,
		RawByteSize:    len(req.Body),
		EventsByteSize: req.EventsByteSize,
	}, nil
}
