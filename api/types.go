package api

import (
	"time"

	"github.com/docsig/signature-service/pdfsig"
)

// StatusResponse is returned by the service root endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// MessageResponse wraps endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RegisterResponse confirms a directory registration and carries the
// assigned key id.
type RegisterResponse struct {
	Message string `json:"message"`
	KeyID   string `json:"key_id"`
}

// DirectoryEntryResponse is one public directory listing. The public key
// itself is not included; it can be retrieved by registering verification
// requests against the key id.
type DirectoryEntryResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// DirectoryResponse lists all registered signers in creation order.
type DirectoryResponse struct {
	Entries []DirectoryEntryResponse `json:"entries"`
}

// VerifyResponse reports the outcome of a detached verification. Signer is
// present whenever the key used for checking is known, regardless of
// whether the signature matched.
type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Signer  string `json:"signer,omitempty"`
}

// PdfVerifyResponse reports the outcome of embedded signature checking.
type PdfVerifyResponse struct {
	HasSignatures bool                     `json:"has_signatures"`
	AllValid      bool                     `json:"all_valid"`
	Message       string                   `json:"message"`
	Signatures    []pdfsig.SignatureRecord `json:"signatures"`
}
