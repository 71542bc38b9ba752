package identity

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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AdminConfig configures the admin API client
type AdminConfig struct {
	// BaseURL is the auth service root, e.g. https://project.example.com/auth/v1
	BaseURL string
	// ServiceKey is sent as bearer token and apikey header when set
	ServiceKey string
	// OAuth2 client credentials, used instead of ServiceKey when TokenURL is set
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	Timeout time.Duration
}

// AdminClient talks to a GoTrue-compatible admin API.
// It implements Provider and Inviter.
type AdminClient struct {
	baseURL    *url.URL
	serviceKey string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// adminUser is the wire representation of a user
type adminUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
}

func (u adminUser) toUser() *User {
	return &User{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       metadataString(u.UserMetadata, "full_name"),
		AvatarURL:      metadataString(u.UserMetadata, "avatar_url"),
		EmailConfirmed: u.EmailConfirmedAt != nil,
		CreatedAt:      u.CreatedAt,
		Metadata:       u.UserMetadata,
	}
}

type createUserRequest struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password,omitempty"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

type inviteRequest struct {
	Email string                 `json:"email"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

type listUsersResponse struct {
	Users []adminUser `json:"users"`
}

// NewAdminClient creates an admin API client
func NewAdminClient(ctx context.Context, cfg AdminConfig, logger logrus.FieldLogger) (*AdminClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid identity base URL: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := otelhttp.NewTransport(http.DefaultTransport)
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}

	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// Token requests go through the instrumented client as well
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = cc.Client(tokenCtx)
		httpClient.Timeout = cfg.Timeout
	} else if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("identity service key or OAuth2 token URL is required")
	}

	return &AdminClient{
		baseURL:    base,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
		logger:     logger.WithField("component", "identity_admin_client"),
	}, nil
}

// GetIdentity fetches a user by id
func (c *AdminClient) GetIdentity(ctx context.Context, id string) (*User, error) {
	var u adminUser
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(id), nil, nil, &u); err != nil {
		return nil, err
	}
	return u.toUser(), nil
}

// LookupByEmail searches users by email and returns the exact match
func (c *AdminClient) LookupByEmail(ctx context.Context, email string) (*User, error) {
	normalized := NormalizeEmail(email)
	query := url.Values{}
	query.Set("filter", normalized)

	var resp listUsersResponse
	if err := c.do(ctx, http.MethodGet, "/admin/users", query, nil, &resp); err != nil {
		return nil, err
	}

	for _, u := range resp.Users {
		if NormalizeEmail(u.Email) == normalized {
			return u.toUser(), nil
		}
	}
	return nil, ErrNotFound
}

// CreateIdentity creates a user through the admin API
func (c *AdminClient) CreateIdentity(ctx context.Context, req CreateRequest) (*User, error) {
	body := createUserRequest{
		Email:        NormalizeEmail(req.Email),
		Password:     req.Password,
		EmailConfirm: req.EmailConfirm,
		UserMetadata: req.Metadata,
	}

	var u adminUser
	if err := c.do(ctx, http.MethodPost, "/admin/users", nil, body, &u); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"user_id": u.ID,
		"email":   u.Email,
	}).Debug("created identity")
	return u.toUser(), nil
}

// DeleteIdentity deletes a user through the admin API
func (c *AdminClient) DeleteIdentity(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.logger.WithField("user_id", id).Debug("deleted identity")
	return nil
}

// SendInvitation asks the provider to e-mail an invite link
func (c *AdminClient) SendInvitation(ctx context.Context, email, redirectURL string, metadata map[string]interface{}) error {
	query := url.Values{}
	if redirectURL != "" {
		query.Set("redirect_to", redirectURL)
	}
	body := inviteRequest{Email: NormalizeEmail(email), Data: metadata}
	return c.do(ctx, http.MethodPost, "/invite", query, body, nil)
}

// do performs a JSON request and decodes the response into out when non-nil
func (c *AdminClient) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call identity provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		msg := readErrorMessage(resp.Body)
		if strings.Contains(strings.ToLower(msg), "already") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		return fmt.Errorf("identity provider rejected request (%d): %s", resp.StatusCode, msg)
	case resp.StatusCode >= 300:
		msg := readErrorMessage(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("identity provider request failed")
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}

// readErrorMessage extracts msg/message/error_description from an error body
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(data, &body) == nil {
		for _, s := range []string{body.Msg, body.Message, body.ErrorDescription} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}
