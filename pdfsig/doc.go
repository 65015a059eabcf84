// Package pdfsig embeds certificate-based signatures into PDF documents
// and verifies them.
//
// Signing appends an incremental revision: a signature dictionary with a
// reserved /Contents placeholder, a signature form field, and an updated
// document catalog. The signature's /ByteRange covers every byte of the
// output except the placeholder itself, so bytes covered by previously
// embedded signatures are never rewritten and those signatures keep their
// validity. The signature value is a detached CMS SignedData (SHA-256)
// carrying the signer's certificate.
//
// Verification scans all revisions for signature dictionaries, recomputes
// each digest over the byte ranges of the current document, and checks the
// CMS signature against the embedded certificate. Trust chains and
// revocation are out of scope: certificates are only checked for
// self-consistency.
package pdfsig
