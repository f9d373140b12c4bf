/**
 * @description
 * This package provides a client for the identity provider's admin API
 * (GoTrue). It encapsulates the service-role authenticated HTTP calls the
 * provisioning workflow needs: paging through the user list, inviting new
 * users, generating verification links, patching email/phone onto accounts,
 * and deleting accounts on rollback.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 * - github.com/VineMe-App/vineme-backend/internal/domain: For the admin API request/response structs.
 *
 * @notes
 * - The admin API authenticates with the service-role key in both the
 *   apikey header and the Authorization bearer. That key bypasses row-level
 *   security; this client must only ever run server-side.
 * - The list endpoint offers no lookup-by-email or lookup-by-phone, so
 *   callers page through it. Page bounding is the caller's job.
 */
package authadmin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VineMe-App/vineme-backend/internal/domain"
)

var (
	// ErrUserNotFound is returned when the admin API reports no such user.
	ErrUserNotFound = errors.New("authadmin: user not found")

	// ErrEmailExists is returned when an invite or update collides with an
	// address already registered to another account.
	ErrEmailExists = errors.New("authadmin: email already registered")
)

// Client is a client for the identity provider's admin API.
type Client struct {
	BaseURL    string
	ServiceKey string
	httpClient *http.Client
}

// NewClient creates a new admin API client.
func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		ServiceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ListUsers fetches one page of the auth user listing. Pages start at 1.
func (c *Client) ListUsers(ctx context.Context, page, perPage int) (*domain.AuthUserPage, error) {
	url := fmt.Sprintf("%s/auth/v1/admin/users?page=%d&per_page=%d", c.BaseURL, page, perPage)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var pageResp domain.AuthUserPage
	if err := json.NewDecoder(resp.Body).Decode(&pageResp); err != nil {
		return nil, fmt.Errorf("failed to decode user page: %w", err)
	}
	return &pageResp, nil
}

// GetUser fetches a single auth user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*domain.AuthUser, error) {
	url := fmt.Sprintf("%s/auth/v1/admin/users/%s", c.BaseURL, userID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch auth user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var user domain.AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode auth user: %w", err)
	}
	return &user, nil
}

// InviteUserByEmail creates a new auth user and has the provider send its
// invitation mail.
func (c *Client) InviteUserByEmail(ctx context.Context, req domain.InviteUserRequest) (*domain.AuthUser, error) {
	url := fmt.Sprintf("%s/auth/v1/invite", c.BaseURL)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invite request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create invite request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send invite: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.handleErrorResponse(resp)
	}

	var user domain.AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode invited user: %w", err)
	}
	return &user, nil
}

// GenerateLink asks the provider to generate and mail an action link
// (signup confirmation, magic link, recovery).
func (c *Client) GenerateLink(ctx context.Context, req domain.GenerateLinkRequest) (*domain.GenerateLinkResponse, error) {
	url := fmt.Sprintf("%s/auth/v1/admin/generate_link", c.BaseURL)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate_link request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create generate_link request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to request action link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var linkResp domain.GenerateLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&linkResp); err != nil {
		return nil, fmt.Errorf("failed to decode action link: %w", err)
	}
	return &linkResp, nil
}

// UpdateUser patches an existing auth user (link an email, attach a phone).
func (c *Client) UpdateUser(ctx context.Context, userID string, req domain.UpdateAuthUserRequest) (*domain.AuthUser, error) {
	url := fmt.Sprintf("%s/auth/v1/admin/users/%s", c.BaseURL, userID)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create update request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to update auth user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var user domain.AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode updated user: %w", err)
	}
	return &user, nil
}

// DeleteUser removes an auth user. Used only to roll back accounts this
// service itself created.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	url := fmt.Sprintf("%s/auth/v1/admin/users/%s", c.BaseURL, userID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to delete auth user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleErrorResponse(resp)
	}
	return nil
}

// setHeaders adds the service-role authentication and content-type headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
}

// handleErrorResponse reads the body of a failed API call and returns a
// formatted error, mapping well-known failures onto sentinel errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("admin API error with status %d, but failed to read response body", resp.StatusCode)
	}

	lower := strings.ToLower(string(bodyBytes))
	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(lower, "already") && strings.Contains(lower, "registered") {
		return fmt.Errorf("%w: %s", ErrEmailExists, string(bodyBytes))
	}

	return fmt.Errorf("admin API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
}
