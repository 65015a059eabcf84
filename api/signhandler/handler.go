// Package signhandler implements the HTTP boundary of the signature
// service: key generation, detached signing and verification, the signer
// directory, and embedded PDF signing.
package signhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docsig/signature-service/api"
	"github.com/docsig/signature-service/common"
	"github.com/docsig/signature-service/cryptoutils"
	"github.com/docsig/signature-service/interfaces"
	"github.com/docsig/signature-service/pdfsig"
	"github.com/docsig/signature-service/signing"
)

const (
	// defaultMaxUploadBytes caps request bodies when no limit is configured.
	defaultMaxUploadBytes = 32 << 20

	// multipartMemory is how much of a parsed form is kept in memory
	// before spilling to disk.
	multipartMemory = 10 << 20
)

// Config carries the boundary policy knobs.
type Config struct {
	// MaxUploadBytes limits the total request body size. Zero selects
	// the default of 32 MiB.
	MaxUploadBytes int64

	// MinContainerPasswordLen is the minimum accepted password length
	// for new certificate containers. Values below 1 are treated as 1.
	MinContainerPasswordLen int

	// SignReason and SignLocation are embedded into PDF signature
	// dictionaries.
	SignReason   string
	SignLocation string
}

// Handler processes HTTP requests for the signature service.
type Handler struct {
	svc *signing.Service
	dir interfaces.Directory
	cfg Config
	log *slog.Logger
}

// NewHandler creates a handler around the signing service and directory.
func NewHandler(svc *signing.Service, dir interfaces.Directory, cfg Config, log *slog.Logger) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MinContainerPasswordLen < 1 {
		cfg.MinContainerPasswordLen = 1
	}
	return &Handler{
		svc: svc,
		dir: dir,
		cfg: cfg,
		log: log,
	}
}

// RegisterRoutes configures the router with all service endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleStatus)
	r.Post("/generate-keys", h.HandleGenerateKeys)
	r.Post("/sign", h.HandleSign)
	r.Post("/verify", h.HandleVerify)
	r.Get("/directory", h.HandleDirectory)
	r.Post("/register", h.HandleRegister)
	r.Delete("/directory/{key_id}", h.HandleDelete)
	r.Post("/generate-certificate", h.HandleGenerateCertificate)
	r.Post("/sign-pdf", h.HandleSignPDF)
	r.Post("/verify-pdf", h.HandleVerifyPDF)
}

// HandleStatus reports service health and version.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.StatusResponse{
		Status:  "ok",
		Message: "signature service is running",
		Version: common.Version,
	})
}

// HandleGenerateKeys creates a keypair, registers the public half in the
// directory and returns the private key PEM as a download. The private key
// is never stored.
func (h *Handler) HandleGenerateKeys(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	name := r.FormValue("name")
	department := r.FormValue("department")
	bits := 2048
	if v := r.FormValue("key_size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, interfaces.Errorf(interfaces.KindInvalidInput, "key_size %q is not a number", v))
			return
		}
		bits = parsed
	}

	pair, entry, err := h.svc.GenerateAndRegister(name, department, bits)
	if err != nil {
		h.log.Error("Key generation failed", "err", err, "name", name)
		h.writeError(w, err)
		return
	}

	h.log.Info("Generated and registered keypair", "keyId", entry.ID, "bits", bits)
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", attachment(safeFilename(name)+"_private_key.pem"))
	w.Header().Set("X-Key-ID", entry.ID)
	w.WriteHeader(http.StatusOK)
	w.Write(pair.PrivateKey)
}

// HandleSign produces a detached signature over an uploaded file using an
// uploaded private key.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	data, filename, err := h.formFile(r, "file")
	if err != nil {
		h.writeError(w, err)
		return
	}
	privateKey, _, err := h.formFile(r, "private_key")
	if err != nil {
		h.writeError(w, err)
		return
	}

	signature, err := h.svc.Sign(data, interfaces.PrivateKeyPEM(privateKey))
	if err != nil {
		h.log.Error("Detached signing failed", "err", err)
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", attachment(safeFilename(filename)+".sig"))
	w.WriteHeader(http.StatusOK)
	w.Write(signature)
}

// HandleVerify checks a detached signature. The key comes either from the
// directory (key_id field) or from an uploaded public key file. A signature
// mismatch is a normal response with valid=false, not an error.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	data, _, err := h.formFile(r, "file")
	if err != nil {
		h.writeError(w, err)
		return
	}
	signature, _, err := h.formFile(r, "signature")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var result *signing.VerifyResult
	if keyID := r.FormValue("key_id"); keyID != "" {
		result, err = h.svc.Verify(data, signature, keyID)
	} else if publicKey, _, ferr := h.formFile(r, "public_key"); ferr == nil {
		result, err = h.svc.VerifyWithKey(data, signature, interfaces.PublicKeyPEM(publicKey))
	} else {
		err = interfaces.E(interfaces.KindInvalidInput, "either key_id or public_key must be provided")
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.VerifyResponse{
		Valid:   result.Valid,
		Message: result.Msg,
		Signer:  result.Signer,
	})
}

// HandleDirectory lists all registered signers.
func (h *Handler) HandleDirectory(w http.ResponseWriter, r *http.Request) {
	entries := h.dir.List()
	resp := api.DirectoryResponse{Entries: make([]api.DirectoryEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.DirectoryEntryResponse{
			ID:         e.ID,
			Name:       e.Name,
			Department: e.Department,
			CreatedAt:  e.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleRegister adds an externally generated public key to the directory.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	publicKey, _, err := h.formFile(r, "public_key")
	if err != nil {
		h.writeError(w, err)
		return
	}

	entry, err := h.dir.Register(r.FormValue("name"), r.FormValue("department"), interfaces.PublicKeyPEM(publicKey))
	if err != nil {
		h.log.Error("Directory registration failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.log.Info("Registered public key", "keyId", entry.ID, "name", entry.Name)
	h.writeJSON(w, http.StatusOK, api.RegisterResponse{
		Message: fmt.Sprintf("public key registered for %s", entry.Name),
		KeyID:   entry.ID,
	})
}

// HandleDelete removes a signer from the directory. The key id is never
// reissued afterwards.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if err := h.dir.Delete(keyID); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("Removed directory entry", "keyId", keyID)
	h.writeJSON(w, http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("key %s removed from directory", keyID),
	})
}

// HandleGenerateCertificate issues a self-signed certificate and returns
// it together with its private key in a password-protected container.
func (h *Handler) HandleGenerateCertificate(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	name := r.FormValue("name")
	organization := r.FormValue("organization")
	password := r.FormValue("password")
	if len(password) < h.cfg.MinContainerPasswordLen {
		h.writeError(w, interfaces.Errorf(interfaces.KindInvalidInput,
			"password must be at least %d characters", h.cfg.MinContainerPasswordLen))
		return
	}

	container, err := cryptoutils.IssueCertificate(name, organization, password)
	if err != nil {
		h.log.Error("Certificate issuance failed", "err", err, "name", name)
		h.writeError(w, err)
		return
	}

	h.log.Info("Issued certificate container", "name", name)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", attachment(safeFilename(name)+"_certificate.bin"))
	w.WriteHeader(http.StatusOK)
	w.Write(container)
}

// HandleSignPDF embeds a signature into an uploaded PDF using an uploaded
// certificate container. Signing never mutates already-signed revisions,
// so repeated calls accumulate independent signatures.
func (h *Handler) HandleSignPDF(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	pdfData, filename, err := h.formFile(r, "pdf_file")
	if err != nil {
		h.writeError(w, err)
		return
	}
	container, _, err := h.formFile(r, "certificate")
	if err != nil {
		h.writeError(w, err)
		return
	}

	signed, signer, err := pdfsig.Sign(pdfData, container, r.FormValue("password"), pdfsig.SignOptions{
		Reason:   h.cfg.SignReason,
		Location: h.cfg.SignLocation,
	})
	if err != nil {
		h.log.Error("PDF signing failed", "err", err)
		h.writeError(w, err)
		return
	}

	h.log.Info("Signed PDF document", "signer", signer, "sizeBytes", len(signed))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment("signed_"+safeFilename(filename)))
	w.Header().Set("X-Signer-Name", sanitizeHeader(signer))
	w.WriteHeader(http.StatusOK)
	w.Write(signed)
}

// HandleVerifyPDF checks every signature embedded in an uploaded PDF.
func (h *Handler) HandleVerifyPDF(w http.ResponseWriter, r *http.Request) {
	if err := h.parseForm(w, r); err != nil {
		h.writeError(w, err)
		return
	}

	pdfData, _, err := h.formFile(r, "pdf_file")
	if err != nil {
		h.writeError(w, err)
		return
	}

	report, err := pdfsig.Verify(pdfData)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.PdfVerifyResponse{
		HasSignatures: report.HasSignatures,
		AllValid:      report.AllValid,
		Message:       report.Message,
		Signatures:    report.Signatures,
	})
}

// parseForm bounds the body size and parses the multipart form. A body
// over the limit surfaces as a payload-too-large error.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return interfaces.Errorf(interfaces.KindPayloadTooLarge, "request body exceeds %d bytes", maxErr.Limit)
		}
		return interfaces.Wrap(interfaces.KindInvalidInput, "cannot parse multipart form", err)
	}
	return nil
}

// formFile reads one uploaded file fully. The upload filename is returned
// for use in response headers.
func (h *Handler) formFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", interfaces.Errorf(interfaces.KindInvalidInput, "missing form file %q", field)
		}
		return nil, "", interfaces.Wrap(interfaces.KindInvalidInput, fmt.Sprintf("cannot read form file %q", field), err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", interfaces.Errorf(interfaces.KindPayloadTooLarge, "request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, "", interfaces.Wrap(interfaces.KindInternal, "reading uploaded file", err)
	}
	return data, header.Filename, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, statusForKind(interfaces.KindOf(err)), api.ErrorResponse{Detail: err.Error()})
}

// statusForKind maps error kinds onto HTTP status codes.
func statusForKind(kind interfaces.ErrorKind) int {
	switch kind {
	case interfaces.KindInvalidInput, interfaces.KindInvalidKey, interfaces.KindInvalidPassword, interfaces.KindInvalidDocument:
		return http.StatusBadRequest
	case interfaces.KindUnknownSigner, interfaces.KindNotFound:
		return http.StatusNotFound
	case interfaces.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// safeFilename keeps only characters that are safe inside a
// Content-Disposition filename.
func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

func attachment(filename string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, filename)
}

// sanitizeHeader strips characters that are not valid in header values.
func sanitizeHeader(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
}
