// Package rpc implements the JSON-RPC 2.0 HTTP transport used for every
// ledger endpoint call. Public endpoints of unknown quality are the norm
// here, so each call runs on its own connection with keep-alives disabled
// and independent connect/header/body timeouts.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maxibitcat/aisignals/internal/metrics"
)

const maxParamSummary = 120

// Config controls the transport. All timeouts are per call.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
	CallTimeout    time.Duration
	Trace          bool
}

// Client executes single JSON-RPC calls. Safe for concurrent use.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
	trace  bool
	nextID atomic.Uint64
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient validates the endpoint URL and builds the transport. Only http
// and https schemes are accepted; anything else is a configuration error.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint url %q: scheme %q not supported, use http or https", cfg.URL, u.Scheme)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 20 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		DisableKeepAlives:     true,
		MaxIdleConns:          1,
	}
	return &Client{
		url: cfg.URL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.CallTimeout,
		},
		logger: logger,
		trace:  cfg.Trace,
	}, nil
}

// URL returns the configured endpoint URL.
func (c *Client) URL() string { return c.url }

// Call performs one JSON-RPC request and unmarshals the result into result
// (which may be nil to discard it). params may be empty: some endpoints
// reject requests whose params array carries arguments they do not expect,
// and callers exploit this by retrying with fewer arguments.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	err := c.call(ctx, result, method, params...)
	switch err.(type) {
	case nil:
		metrics.RPCCalls.WithLabelValues(method, "ok").Inc()
	case *RPCError:
		metrics.RPCCalls.WithLabelValues(method, "rpc_error").Inc()
	case *TransportError:
		metrics.RPCCalls.WithLabelValues(method, "transport_error").Inc()
	default:
		metrics.RPCCalls.WithLabelValues(method, "error").Inc()
	}
	return err
}

func (c *Client) call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	req := request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	if c.trace {
		c.logger.Debug("rpc call", "method", method, "id", req.ID, "params", traceParams(method, params))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return c.transportErr(KindConnectionFailed, method, params, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Close = true

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportErr(classifyNetErr(err), method, params, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return c.transportErr(classifyNetErr(err), method, params, err)
	}
	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return c.transportErr(KindMalformedResponse, method, params,
			fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if decoded.Error != nil {
		if c.trace {
			c.logger.Debug("rpc error response", "method", method, "id", req.ID,
				"code", decoded.Error.Code, "message", decoded.Error.Message)
		}
		return &RPCError{Code: decoded.Error.Code, Message: decoded.Error.Message, Method: method}
	}
	if decoded.Result == nil {
		// Some endpoints answer HTTP 200 with neither result nor error.
		if resp.StatusCode != http.StatusOK {
			return c.transportErr(KindMalformedResponse, method, params,
				fmt.Errorf("status %d with empty body", resp.StatusCode))
		}
		decoded.Result = json.RawMessage("null")
	}
	if c.trace {
		c.logger.Debug("rpc result", "method", method, "id", req.ID, "result", summarizeRaw(decoded.Result))
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return c.transportErr(KindMalformedResponse, method, params, err)
	}
	return nil
}

func (c *Client) transportErr(kind TransportKind, method string, params []interface{}, err error) error {
	return &TransportError{
		Kind:   kind,
		Method: method,
		Params: traceParams(method, params),
		URL:    c.url,
		Err:    err,
	}
}

func classifyNetErr(err error) TransportKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnectionFailed
}

// traceParams elides raw signed payloads from trace output. The transaction
// hash is logged by the broadcast layer instead.
func traceParams(method string, params []interface{}) string {
	if method == "eth_sendRawTransaction" {
		return "[signed payload elided]"
	}
	return summarizeParams(params)
}

func summarizeParams(params []interface{}) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "?"
	}
	return summarizeRaw(b)
}

func summarizeRaw(b []byte) string {
	s := string(b)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxParamSummary {
		return s[:maxParamSummary] + "..."
	}
	return s
}
