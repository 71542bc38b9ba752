// Package provisioning adds batches of users to a tenant.
//
// Each record goes through the tenant lifecycle manager's invite path, so a
// record whose membership write fails after its identity was created has that
// identity deleted again. Records for different emails run in parallel up to
// the configured concurrency; records sharing an email run in input order.
// A batch never fails as a whole because of a single record: the result
// carries one entry per input record, in input order.
package provisioning
