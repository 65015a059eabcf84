/*
Package api defines the wire types of the signature service HTTP API.

The package is organized as follows:

1. types.go - Request and response bodies shared by the server and clients
2. signhandler - Request processing logic and an HTTP client

The service exposes two signing modes. Detached mode produces a signature
file next to the original document and verifies it against public keys
registered in the signer directory. Embedded mode signs PDF documents in
place using password-protected certificate containers; every signing pass
appends an incremental revision, so earlier signatures stay intact.

Binary payloads (private keys, signatures, certificate containers, signed
PDFs) are returned as raw response bodies with Content-Disposition
attachment headers; everything else is JSON. Errors are always JSON with a
single "detail" field.
*/
package api
