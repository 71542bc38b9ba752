package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdminClient(t *testing.T, handler http.HandlerFunc) *AdminClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client, err := NewAdminClient(context.Background(), AdminConfig{
		BaseURL:    server.URL + "/auth/v1",
		ServiceKey: "service-key",
	}, logger)
	require.NoError(t, err)
	return client
}

func TestNewAdminClient_Validation(t *testing.T) {
	_, err := NewAdminClient(context.Background(), AdminConfig{}, nil)
	assert.Error(t, err)

	_, err = NewAdminClient(context.Background(), AdminConfig{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err, "expected error without credentials")
}

func TestAdminClient_LookupByEmail(t *testing.T) {
	client := newTestAdminClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("filter"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{
				{"id": "u-2", "email": "malice@example.com"},
				{"id": "u-1", "email": "Alice@Example.com", "user_metadata": map[string]interface{}{"full_name": "Alice"}},
			},
		})
	})

	u, err := client.LookupByEmail(context.Background(), " ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "Alice", u.FullName)

	t.Run("no exact match", func(t *testing.T) {
		_, err := client.LookupByEmail(context.Background(), "bob@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAdminClient_CreateIdentity(t *testing.T) {
	var received createUserRequest
	client := newTestAdminClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "new-id",
			"email":         received.Email,
			"user_metadata": received.UserMetadata,
		})
	})

	u, err := client.CreateIdentity(context.Background(), CreateRequest{
		Email:        "New@Example.com",
		Password:     "temp-password",
		EmailConfirm: false,
		Metadata:     map[string]interface{}{"full_name": "New User"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", u.ID)
	assert.Equal(t, "New User", u.FullName)
	assert.False(t, u.EmailConfirmed)
	assert.Equal(t, "new@example.com", received.Email)
	assert.Equal(t, "temp-password", received.Password)
}

func TestAdminClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIs  error
		wantMsg string
	}{
		{"not found", http.StatusNotFound, `{}`, ErrNotFound, ""},
		{"already registered", http.StatusUnprocessableEntity, `{"msg":"A user with this email address has already been registered"}`, ErrAlreadyExists, "already been registered"},
		{"server error", http.StatusInternalServerError, `{"message":"database unavailable"}`, nil, "database unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestAdminClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetIdentity(context.Background(), "some-id")
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAdminClient_DeleteAndInvite(t *testing.T) {
	var calls []string
	client := newTestAdminClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/auth/v1/invite" {
			assert.Equal(t, "https://app.example.com/auth/callback", r.URL.Query().Get("redirect_to"))
			var body inviteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "invitee@example.com", body.Email)
			assert.Equal(t, "tenant-1", body.Data["tenant_id"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	require.NoError(t, client.DeleteIdentity(context.Background(), "u-1"))
	require.NoError(t, client.SendInvitation(context.Background(), "invitee@example.com",
		"https://app.example.com/auth/callback", map[string]interface{}{"tenant_id": "tenant-1"}))

	assert.Equal(t, []string{"DELETE /auth/v1/admin/users/u-1", "POST /auth/v1/invite"}, calls)
}

func TestAdminClient_ClientCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/admin/users/u-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cc-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"u-1","email":"a@example.com"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewAdminClient(context.Background(), AdminConfig{
		BaseURL:      server.URL,
		ClientID:     "tenantd",
		ClientSecret: "secret",
		TokenURL:     server.URL + "/token",
	}, logrus.New())
	require.NoError(t, err)

	u, err := client.GetIdentity(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
}
