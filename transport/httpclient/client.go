// Package httpclient is the reference binding of transport.Transport
// over plain HTTP, using exponential backoff for retryable failures and
// structured logging with a per-request correlation id.
//
// Retries wrap net/http with exponential backoff; each request carries a
// generated correlation id and is logged with zap at the network edge
// only, never deeper in the call stack.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xet-data/xetcas/internal/xerr"
	"github.com/xet-data/xetcas/transport"
	"github.com/xet-data/xetcas/xhash"
)

// Client is the reference transport.Transport binding over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
	backoff    func() backoff.BackOff
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (timeouts, proxy,
// custom transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the zap logger used at request boundaries.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithBackoff overrides the retry backoff constructor. Each call site
// gets a fresh BackOff instance so retries across concurrent requests
// never share mutable state.
func WithBackoff(newBackoff func() backoff.BackOff) Option {
	return func(c *Client) { c.backoff = newBackoff }
}

// New builds a Client against baseURL, authenticating with a bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        zap.NewNop(),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ transport.Transport = (*Client)(nil)

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, []byte, error) {
	requestID := uuid.NewString()
	log := c.log.With(zap.String("request_id", requestID), zap.String("method", method), zap.String("path", path))

	var respBody []byte
	var status int
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Request-Id", requestID)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Warn("transport request failed, retrying", zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		respBody = data

		if status == 401 || status == 403 {
			return backoff.Permanent(xerr.NewAuthorization(path, status))
		}
		if status >= 500 || status == 429 {
			log.Warn("retryable transport status", zap.Int("status", status))
			return xerr.NewTransport(path, status, nil)
		}
		if status >= 400 {
			return backoff.Permanent(xerr.NewTransport(path, status, nil))
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, nil, perm.Err
		}
		return nil, nil, xerr.NewTransport(path, status, err)
	}
	return &http.Response{StatusCode: status}, respBody, nil
}

type reconstructionWire struct {
	OffsetIntoFirstRange uint64 `json:"offset_into_first_range"`
	Terms                []struct {
		XorbHash         string `json:"xorb_hash"`
		ChunkStart       uint32 `json:"chunk_start"`
		ChunkEnd         uint32 `json:"chunk_end"`
		UnpackedLength   uint32 `json:"unpacked_length"`
		VerificationHash string `json:"verification_hash"`
	} `json:"terms"`
	FetchInfo []struct {
		URL            string `json:"url"`
		StartInclusive uint64 `json:"start_inclusive"`
		EndInclusive   uint64 `json:"end_inclusive"`
	} `json:"fetch_info"`
}

// GetReconstruction implements transport.Transport.
func (c *Client) GetReconstruction(ctx context.Context, fileHash xhash.Hash, byteRange *transport.ByteRange) (transport.ReconstructionResponse, error) {
	path := fmt.Sprintf("/api/v1/reconstructions/%s", fileHash.String())
	headers := map[string]string{}
	if byteRange != nil {
		headers["Range"] = fmt.Sprintf("bytes=%d-%d", byteRange.Start, byteRange.End-1)
	}
	_, body, err := c.do(ctx, http.MethodGet, path, nil, headers)
	if err != nil {
		return transport.ReconstructionResponse{}, err
	}

	var wire reconstructionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return transport.ReconstructionResponse{}, xerr.WrapFormat("reconstruction", "malformed JSON response", err)
	}

	out := transport.ReconstructionResponse{BytesToSkip: wire.OffsetIntoFirstRange}
	for _, t := range wire.Terms {
		xh, ok := xhash.MaybeParse(t.XorbHash)
		if !ok {
			return transport.ReconstructionResponse{}, xerr.NewFormat("reconstruction", "malformed xorb_hash")
		}
		vh, ok := xhash.MaybeParse(t.VerificationHash)
		if !ok {
			return transport.ReconstructionResponse{}, xerr.NewFormat("reconstruction", "malformed verification_hash")
		}
		out.Terms = append(out.Terms, transport.Term{
			XorbHash:         xh,
			ChunkStart:       t.ChunkStart,
			ChunkEnd:         t.ChunkEnd,
			UnpackedLength:   t.UnpackedLength,
			VerificationHash: vh,
		})
	}
	for _, f := range wire.FetchInfo {
		out.FetchInfo = append(out.FetchInfo, transport.FetchRange{
			URL: f.URL, StartInclusive: f.StartInclusive, EndInclusive: f.EndInclusive,
		})
	}
	return out, nil
}

// QueryDedup implements transport.Transport.
func (c *Client) QueryDedup(ctx context.Context, namespace string, chunkHash xhash.Hash) ([]byte, bool, error) {
	path := fmt.Sprintf("/api/v1/chunks/%s/%s", namespace, chunkHash.String())
	resp, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		if te, ok := asTransportError(err); ok && te.Status == 404 {
			return nil, false, nil
		}
		return nil, false, err
	}
	if resp.StatusCode == 404 {
		return nil, false, nil
	}
	return body, true, nil
}

// PutXorb implements transport.Transport.
func (c *Client) PutXorb(ctx context.Context, namespace string, xorbHash xhash.Hash, data []byte) (transport.PutXorbResult, error) {
	path := fmt.Sprintf("/api/v1/xorbs/%s/%s", namespace, xorbHash.String())
	_, body, err := c.do(ctx, http.MethodPost, path, data, map[string]string{"Content-Type": "application/octet-stream"})
	if err != nil {
		return transport.PutXorbResult{}, err
	}
	var wire struct {
		WasInserted bool `json:"was_inserted"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return transport.PutXorbResult{}, xerr.WrapFormat("put_xorb", "malformed JSON response", err)
	}
	return transport.PutXorbResult{WasInserted: wire.WasInserted}, nil
}

// PutShard implements transport.Transport.
func (c *Client) PutShard(ctx context.Context, data []byte) (transport.PutShardResult, error) {
	_, body, err := c.do(ctx, http.MethodPost, "/api/v1/shards", data, map[string]string{"Content-Type": "application/octet-stream"})
	if err != nil {
		return transport.PutShardResult{}, err
	}
	var wire struct {
		AlreadyExisted bool `json:"already_existed"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return transport.PutShardResult{}, xerr.WrapFormat("put_shard", "malformed JSON response", err)
	}
	return transport.PutShardResult{AlreadyExisted: wire.AlreadyExisted}, nil
}

// FetchBytes implements transport.Transport.
func (c *Client) FetchBytes(ctx context.Context, url string, startInclusive, endInclusive uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startInclusive, endInclusive))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerr.NewTransport("fetch_bytes", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == 416 {
		return nil, xerr.NewConstraint("fetch_bytes.range", "range not satisfiable")
	}
	if resp.StatusCode >= 400 {
		return nil, xerr.NewTransport("fetch_bytes", resp.StatusCode, nil)
	}
	return io.ReadAll(resp.Body)
}

func asTransportError(err error) (*xerr.TransportError, bool) {
	var te *xerr.TransportError
	ok := errors.As(err, &te)
	return te, ok
}
