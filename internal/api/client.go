package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/fpledger/internal/crypto"
	"github.com/roach88/fpledger/internal/ir"
)

// RemoteError is a non-2xx response from a ledger server.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	TxID    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to a ledger server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Register binds publicKey to fingerprint and returns the fingerprint hash.
func (c *Client) Register(ctx context.Context, publicKey string, curve crypto.Curve, fingerprint string) (string, error) {
	var out registerResponse
	req := registerRequest{PublicKey: publicKey, Fingerprint: fingerprint, Curve: string(curve)}
	if err := c.do(ctx, http.MethodPost, "/keys/register", req, &out); err != nil {
		return "", err
	}
	return out.FingerprintHash, nil
}

// Submit sends one signed transaction and returns the block it landed in.
func (c *Client) Submit(ctx context.Context, tx ir.Transaction) (ir.Block, error) {
	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "/tx/submit", NewSubmitRequest(tx), &out); err != nil {
		return ir.Block{}, err
	}
	return out.Block, nil
}

// Verify asks the server to verify its chain.
func (c *Client) Verify(ctx context.Context) (VerifyResponse, error) {
	var out VerifyResponse
	err := c.do(ctx, http.MethodGet, "/chain/verify", nil, &out)
	return out, err
}

// Meta returns the server's chain tip and height.
func (c *Client) Meta(ctx context.Context) (ir.ChainMeta, error) {
	var out ir.ChainMeta
	err := c.do(ctx, http.MethodGet, "/chain/meta", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
			return &RemoteError{Status: resp.StatusCode, Message: resp.Status}
		}
		return &RemoteError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Error, TxID: eb.TxID}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
