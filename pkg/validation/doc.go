// Package validation checks tenant attributes and request payloads.
//
// Tenant rules:
//
//   - name: 2 to 100 characters after trimming
//   - subdomain: 3 to 63 characters of [a-z0-9-], no leading, trailing or
//     doubled hyphen, not in the reserved list
//   - emoji: 1 to 10 characters containing at least one emoji
//
// Request DTOs are validated through Validator, a go-playground/validator
// instance with the tenant rules registered as the "tenant_name",
// "subdomain" and "emoji" tags.
package validation
