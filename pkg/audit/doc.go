// Package audit records membership lifecycle and authorization events.
//
// Every mutation the tenants manager performs (tenant creation, invitations,
// role changes, removals, permission grants) and every denied request is
// written as an AuditEvent. Sinks:
//
//   - DBLogger: audit_logs table in PostgreSQL, searchable per tenant
//   - LogLogger: structured application log lines
//   - MultiLogger: fan-out to several sinks, optionally asynchronous
//
// Audit failures never fail the operation being audited; callers log and move on.
package audit
