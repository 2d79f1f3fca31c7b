package services

import (
	"context"
	"errors"
	"time"

	"chatclient/backend"
	"chatclient/models"
)

const MockAccessToken = "mock-jwt-token"

// MockProvider accepts any non-empty credentials after Delay.
type MockProvider struct {
	Delay time.Duration
}

func (p MockProvider) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	return p.authenticate(ctx, email, password)
}

func (p MockProvider) SignUp(ctx context.Context, email, password string) (AuthResult, error) {
	return p.authenticate(ctx, email, password)
}

func (p MockProvider) authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return AuthResult{}, ctx.Err()
		case <-t.C:
		}
	}
	if email == "" || password == "" {
		return AuthResult{}, errors.New("email and password are required")
	}
	return AuthResult{
		AccessToken: MockAccessToken,
		User:        models.User{ID: backend.MockUserID, Email: email},
	}, nil
}
