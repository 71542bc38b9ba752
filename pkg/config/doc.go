// Package config loads tenantd configuration.
//
// Sources, lowest precedence first:
//
//  1. built-in defaults (Default)
//  2. a YAML file named by TENANTD_CONFIG_FILE
//  3. TENANTD_* environment variables, after a .env file is loaded if present
//
// Example:
//
//	TENANTD_DATABASE_URL=postgres://tenantd@localhost/tenantd?sslmode=disable
//	TENANTD_IDENTITY_ADMIN_URL=https://auth.example.com/auth/v1
//	TENANTD_IDENTITY_SERVICE_KEY=...
//	TENANTD_JWT_SECRET=...
//	TENANTD_SYSTEM_ADMINS=ops@example.com,7d1f3c52-0c1e-4b8e-9a57-3f1b2a9c0d11
package config
