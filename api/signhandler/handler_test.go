package signhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsig/signature-service/api"
	"github.com/docsig/signature-service/cryptoutils"
	"github.com/docsig/signature-service/directory"
	"github.com/docsig/signature-service/signing"
	"github.com/docsig/signature-service/storage"
)

func newTestRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir, err := directory.New(storage.NewMemoryBackend(), log)
	require.NoError(t, err)
	svc := signing.New(dir, log)

	r := chi.NewRouter()
	NewHandler(svc, dir, cfg, log).RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for k, v := range files {
		fw, err := mw.CreateFormFile(k, k+".bin")
		require.NoError(t, err)
		_, err = fw.Write(v)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doMultipart(t *testing.T, router http.Handler, method, path string, fields map[string]string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, fields, files)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// testPDF builds a minimal one-page document accepted by the PDF signer.
func testPDF(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, 4)
	offsets[1] = buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n")
	xref := buf.Len()
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[api.StatusResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Version)
}

func TestGenerateKeysRegistersSigner(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/generate-keys",
		map[string]string{"name": "Alice Example", "department": "Legal", "key_size": "2048"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	keyID := rec.Header().Get("X-Key-ID")
	assert.Len(t, keyID, 8)
	assert.Contains(t, rec.Body.String(), "PRIVATE KEY")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Alice_Example_private_key.pem")

	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, "/directory", nil))
	require.Equal(t, http.StatusOK, listRec.Code)
	dirResp := decodeJSON[api.DirectoryResponse](t, listRec)
	require.Len(t, dirResp.Entries, 1)
	assert.Equal(t, keyID, dirResp.Entries[0].ID)
	assert.Equal(t, "Alice Example", dirResp.Entries[0].Name)
	assert.Equal(t, "Legal", dirResp.Entries[0].Department)
}

func TestGenerateKeysRejectsBadKeySize(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/generate-keys",
		map[string]string{"name": "Alice", "department": "Legal", "key_size": "1234"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Detail, "key size")
}

func TestSignAndVerifyWithKeyID(t *testing.T) {
	router := newTestRouter(t, Config{})

	genRec := doMultipart(t, router, http.MethodPost, "/generate-keys",
		map[string]string{"name": "Alice", "department": "Legal"}, nil)
	require.Equal(t, http.StatusOK, genRec.Code)
	keyID := genRec.Header().Get("X-Key-ID")
	privateKey := genRec.Body.Bytes()

	document := []byte("quarterly report, final draft")
	signRec := doMultipart(t, router, http.MethodPost, "/sign", nil,
		map[string][]byte{"file": document, "private_key": privateKey})
	require.Equal(t, http.StatusOK, signRec.Code, signRec.Body.String())
	signature := signRec.Body.Bytes()
	assert.Contains(t, signRec.Header().Get("Content-Disposition"), ".sig")

	verifyRec := doMultipart(t, router, http.MethodPost, "/verify",
		map[string]string{"key_id": keyID},
		map[string][]byte{"file": document, "signature": signature})
	require.Equal(t, http.StatusOK, verifyRec.Code)
	resp := decodeJSON[api.VerifyResponse](t, verifyRec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "Alice (Legal)", resp.Signer)

	tamperedRec := doMultipart(t, router, http.MethodPost, "/verify",
		map[string]string{"key_id": keyID},
		map[string][]byte{"file": []byte("quarterly report, FINAL draft"), "signature": signature})
	require.Equal(t, http.StatusOK, tamperedRec.Code)
	tamperedResp := decodeJSON[api.VerifyResponse](t, tamperedRec)
	assert.False(t, tamperedResp.Valid)
	assert.Equal(t, "Alice (Legal)", tamperedResp.Signer)
}

func TestVerifyWithUploadedPublicKey(t *testing.T) {
	router := newTestRouter(t, Config{})

	pair, err := cryptoutils.GenerateRSAKeypair(2048)
	require.NoError(t, err)

	document := []byte("contract v2")
	signRec := doMultipart(t, router, http.MethodPost, "/sign", nil,
		map[string][]byte{"file": document, "private_key": pair.PrivateKey})
	require.Equal(t, http.StatusOK, signRec.Code)

	verifyRec := doMultipart(t, router, http.MethodPost, "/verify", nil,
		map[string][]byte{"file": document, "signature": signRec.Body.Bytes(), "public_key": pair.PublicKey})
	require.Equal(t, http.StatusOK, verifyRec.Code)
	resp := decodeJSON[api.VerifyResponse](t, verifyRec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "Uploaded Key", resp.Signer)
}

func TestVerifyRequiresKeySource(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/verify", nil,
		map[string][]byte{"file": []byte("data"), "signature": []byte("sig")})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Detail, "key_id or public_key")
}

func TestVerifyUnknownKeyID(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/verify",
		map[string]string{"key_id": "deadbeef"},
		map[string][]byte{"file": []byte("data"), "signature": []byte("sig")})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterAndDelete(t *testing.T) {
	router := newTestRouter(t, Config{})

	pair, err := cryptoutils.GenerateRSAKeypair(2048)
	require.NoError(t, err)

	regRec := doMultipart(t, router, http.MethodPost, "/register",
		map[string]string{"name": "Bob", "department": "Finance"},
		map[string][]byte{"public_key": pair.PublicKey})
	require.Equal(t, http.StatusOK, regRec.Code, regRec.Body.String())
	regResp := decodeJSON[api.RegisterResponse](t, regRec)
	require.Len(t, regResp.KeyID, 8)

	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, httptest.NewRequest(http.MethodDelete, "/directory/"+regResp.KeyID, nil))
	require.Equal(t, http.StatusOK, delRec.Code)

	againRec := httptest.NewRecorder()
	router.ServeHTTP(againRec, httptest.NewRequest(http.MethodDelete, "/directory/"+regResp.KeyID, nil))
	require.Equal(t, http.StatusNotFound, againRec.Code)
}

func TestCertificateAndPDFFlow(t *testing.T) {
	router := newTestRouter(t, Config{SignReason: "Document approval", SignLocation: "Remote"})

	certRec := doMultipart(t, router, http.MethodPost, "/generate-certificate",
		map[string]string{"name": "Alice Example", "organization": "Acme Corp", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, certRec.Code, certRec.Body.String())
	container := certRec.Body.Bytes()
	assert.Contains(t, certRec.Header().Get("Content-Disposition"), "Alice_Example_certificate")

	signRec := doMultipart(t, router, http.MethodPost, "/sign-pdf",
		map[string]string{"password": "s3cret"},
		map[string][]byte{"pdf_file": testPDF(t), "certificate": container})
	require.Equal(t, http.StatusOK, signRec.Code, signRec.Body.String())
	assert.Equal(t, "Alice Example", signRec.Header().Get("X-Signer-Name"))
	assert.Equal(t, "application/pdf", signRec.Header().Get("Content-Type"))
	signed := signRec.Body.Bytes()
	assert.True(t, bytes.HasPrefix(signed, []byte("%PDF")))

	verifyRec := doMultipart(t, router, http.MethodPost, "/verify-pdf", nil,
		map[string][]byte{"pdf_file": signed})
	require.Equal(t, http.StatusOK, verifyRec.Code)
	resp := decodeJSON[api.PdfVerifyResponse](t, verifyRec)
	require.True(t, resp.HasSignatures)
	assert.True(t, resp.AllValid)
	require.Len(t, resp.Signatures, 1)
	assert.Equal(t, "Alice Example", resp.Signatures[0].Signer)
	assert.Equal(t, "Acme Corp", resp.Signatures[0].Organization)
	assert.Equal(t, "Document approval", resp.Signatures[0].Reason)
}

func TestSignPDFWrongPassword(t *testing.T) {
	router := newTestRouter(t, Config{})

	certRec := doMultipart(t, router, http.MethodPost, "/generate-certificate",
		map[string]string{"name": "Alice", "organization": "", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, certRec.Code)

	signRec := doMultipart(t, router, http.MethodPost, "/sign-pdf",
		map[string]string{"password": "wrong"},
		map[string][]byte{"pdf_file": testPDF(t), "certificate": certRec.Body.Bytes()})
	require.Equal(t, http.StatusBadRequest, signRec.Code)
	resp := decodeJSON[api.ErrorResponse](t, signRec)
	assert.Contains(t, resp.Detail, "password")
}

func TestVerifyPDFUnsigned(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/verify-pdf", nil,
		map[string][]byte{"pdf_file": testPDF(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[api.PdfVerifyResponse](t, rec)
	assert.False(t, resp.HasSignatures)
	assert.False(t, resp.AllValid)
	assert.Empty(t, resp.Signatures)
	assert.Contains(t, resp.Message, "no signatures")
}

func TestVerifyPDFRejectsGarbage(t *testing.T) {
	router := newTestRouter(t, Config{})

	rec := doMultipart(t, router, http.MethodPost, "/verify-pdf", nil,
		map[string][]byte{"pdf_file": []byte("definitely not a pdf")})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	router := newTestRouter(t, Config{MaxUploadBytes: 2048})

	rec := doMultipart(t, router, http.MethodPost, "/verify-pdf", nil,
		map[string][]byte{"pdf_file": bytes.Repeat([]byte("a"), 64*1024)})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Detail, "exceeds")
}

func TestGenerateCertificatePasswordPolicy(t *testing.T) {
	router := newTestRouter(t, Config{MinContainerPasswordLen: 6})

	rec := doMultipart(t, router, http.MethodPost, "/generate-certificate",
		map[string]string{"name": "Alice", "organization": "Acme", "password": "abc"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeJSON[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Detail, "at least 6 characters")
}
