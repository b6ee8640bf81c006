package identikit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/oshub-dev/go-accounts"
)

// Client is the thin REST client for the identity service endpoints
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client for the configured service
func NewClient(cfg Config) *Client {
	return &Client{
		config:     cfg,
		httpClient: cfg.httpClient(),
	}
}

type sessionResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	Registered   bool   `json:"registered"`
}

type accountInfo struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignUp registers a new email/password account
func (c *Client) SignUp(ctx context.Context, email, password string) (*sessionResponse, error) {
	out := new(sessionResponse)
	err := c.post(ctx, "/v1/accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	return out, err
}

// SignInWithPassword exchanges credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*sessionResponse, error) {
	out := new(sessionResponse)
	err := c.post(ctx, "/v1/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, out)
	return out, err
}

// SendVerificationEmail triggers the verification email for the session
func (c *Client) SendVerificationEmail(ctx context.Context, idToken string) error {
	return c.post(ctx, "/v1/accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     idToken,
	}, nil)
}

// Lookup fetches the account record behind the session token
func (c *Client) Lookup(ctx context.Context, idToken string) (*accountInfo, error) {
	out := struct {
		Users []accountInfo `json:"users"`
	}{}

	if err := c.post(ctx, "/v1/accounts:lookup", map[string]any{
		"idToken": idToken,
	}, &out); err != nil {
		return nil, err
	}

	if len(out.Users) == 0 {
		return nil, accounts.ErrAccountNotFound
	}

	return &out.Users[0], nil
}

// GetProfile fetches the profile document for the principal
func (c *Client) GetProfile(ctx context.Context, idToken, id string) (*accounts.ProfileDocument, error) {
	doc := new(accounts.ProfileDocument)
	err := c.do(ctx, http.MethodGet, "/v1/profiles/"+url.PathEscape(id), idToken, nil, doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// PatchProfile merges the document fields into the stored profile
func (c *Client) PatchProfile(ctx context.Context, idToken, id string, doc *accounts.ProfileDocument) error {
	return c.do(ctx, http.MethodPatch, "/v1/profiles/"+url.PathEscape(id), idToken, doc, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	return c.do(ctx, http.MethodPost, path, "", payload, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, payload, out any) error {
	endpoint := c.config.baseURL() + path
	if c.config.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.config.APIKey)
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request payload")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		richErr := accounts.ErrNetworkFailure.Clone()
		richErr.Source = err
		return richErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response body")
	}

	if resp.StatusCode >= 400 {
		envelope := errorEnvelope{}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
			return mapServiceError(envelope.Error.Message)
		}
		if resp.StatusCode == http.StatusNotFound {
			return goerrors.New("resource not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return goerrors.New(
			fmt.Sprintf("identity service returned status %d", resp.StatusCode),
			goerrors.CategoryOperation,
		).WithCode(goerrors.CodeInternal)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response body")
	}

	return nil
}
