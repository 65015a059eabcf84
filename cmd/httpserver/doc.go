// Package main (cmd/httpserver) implements the signature service server.
//
// The server provides HTTP endpoints for RSA key generation, detached
// document signing and verification against a directory of registered
// public keys, self-signed certificate issuance into password-protected
// containers, and embedded PDF signing with incremental updates.
//
// The signer directory persists through a pluggable storage backend
// selected with --storage-uri:
//
//   - memory://            keeps entries in process memory only
//   - file://<path>        stores one JSON file per entry under <path>
//   - s3://<bucket>/<pfx>  stores entries in an S3 bucket
//
// Private keys and certificate containers are never stored server-side;
// they are returned to the caller once and uploaded back per request.
//
// Configuration is handled through command-line flags, with separate
// settings for the HTTP endpoint, storage, upload limits, PDF signature
// metadata, logging, and performance tuning.
//
// The server implements graceful shutdown on receiving termination signals
// (SIGINT/SIGTERM) and supports health checks, drain/undrain for load
// balancer rotation, and optional profiling endpoints.
//
// Example usage:
//
//	signature-server --listen-addr=0.0.0.0:8080 \
//	    --storage-uri=file:///var/lib/signature-service/keydir \
//	    --sign-reason="Document approval" \
//	    --log-json
package main
