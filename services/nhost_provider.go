package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"chatclient/models"
)

type nhostSession struct {
	AccessToken string      `json:"accessToken"`
	User        models.User `json:"user"`
}

type nhostResponse struct {
	Session *nhostSession `json:"session"`
}

type nhostError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NhostProvider signs in against an Nhost-compatible auth service.
type NhostProvider struct {
	client  *resty.Client
	baseURL string
}

func NewNhostProvider(baseURL string) *NhostProvider {
	return &NhostProvider{
		client:  resty.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *NhostProvider) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	return p.post(ctx, "/signin/email-password", email, password)
}

func (p *NhostProvider) SignUp(ctx context.Context, email, password string) (AuthResult, error) {
	return p.post(ctx, "/signup/email-password", email, password)
}

func (p *NhostProvider) post(ctx context.Context, path, email, password string) (AuthResult, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"email": email, "password": password}).
		Post(p.baseURL + path)
	if err != nil {
		return AuthResult{}, err
	}

	if resp.StatusCode() != http.StatusOK {
		var e nhostError
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			return AuthResult{}, fmt.Errorf("%s: %s", e.Error, e.Message)
		}
		return AuthResult{}, fmt.Errorf("auth request failed, status: %d", resp.StatusCode())
	}

	var result nhostResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return AuthResult{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Session == nil {
		return AuthResult{}, nil
	}
	return AuthResult{AccessToken: result.Session.AccessToken, User: result.Session.User}, nil
}
