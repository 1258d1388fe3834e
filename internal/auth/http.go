package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	finoraerr "github.com/mrz1836/finora/pkg/errors"
)

// maxBodyBytes bounds backend response bodies.
const maxBodyBytes = 1 << 20

// HTTPBackend is a plain JSON client for the authentication backend.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend client rooted at baseURL.
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nonceResponse struct {
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

type loginRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Data struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	} `json:"data"`
}

type apyResponse struct {
	APY *float64 `json:"apy"`
}

// GetNonce implements Backend.
func (b *HTTPBackend) GetNonce(ctx context.Context, address string) (string, error) {
	var resp nonceResponse
	if err := b.do(ctx, http.MethodGet, "/auth/nonce/"+url.PathEscape(address), "", nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.Message == "" {
		return "", finoraerr.WithDetails(finoraerr.ErrAuthenticationFailed, map[string]string{"reason": "empty nonce"})
	}
	return resp.Data.Message, nil
}

// Login implements Backend. An empty token with a successful status is not
// an error; the caller decides what a missing token means.
func (b *HTTPBackend) Login(ctx context.Context, address, message, signature string) (string, error) {
	var resp loginResponse
	req := loginRequest{Address: address, Message: message, Signature: signature}
	if err := b.do(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return "", err
	}
	return resp.Data.Token.Token, nil
}

// GetMe implements Backend.
func (b *HTTPBackend) GetMe(ctx context.Context, token string) (Profile, error) {
	var profile Profile
	if err := b.do(ctx, http.MethodGet, "/auth/me", token, nil, &profile); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = Profile{}
	}
	return profile, nil
}

// VaultAPY implements Backend. A response without an apy field yields 0.
func (b *HTTPBackend) VaultAPY(ctx context.Context, token, vault string) (float64, error) {
	var resp apyResponse
	if err := b.do(ctx, http.MethodGet, "/api/vaults/"+url.PathEscape(vault)+"/apy", token, nil, &resp); err != nil {
		return 0, err
	}
	if resp.APY == nil {
		return 0, nil
	}
	return *resp.APY, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		sentinel := finoraerr.ErrNetworkUnavailable
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			sentinel = finoraerr.ErrAuthenticationFailed
		}
		return finoraerr.WithDetails(sentinel, map[string]string{
			"status": resp.Status,
			"path":   path,
		})
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return finoraerr.WithCause(finoraerr.ErrNetworkUnavailable, fmt.Errorf("decoding %s response: %w", path, err))
	}
	return nil
}
