// Package domain contains the core entities and value objects for docship.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (HTTP, TLS, logging) and contains only the
// types that flow through the write path and the rules that govern them.
//
// # Entities
//
//   - [WriteOperation]: a single index, upsert or delete request for one document
//   - [Item]: an operation in flight through the pipeline, with its attempt count
//   - [Batch]: an ordered group of items submitted in one bulk request
//   - [Outcome] and [BulkResult]: per-item results, positionally aligned with a batch
//
// # Errors
//
// The error taxonomy ([ConfigurationError], [CertificateTrustError],
// [HostnameVerificationError], [TransportError], [PoolExhaustedError],
// [ProtocolError]) lives here so every layer can classify failures with
// errors.As without importing adapters.
package domain
