package signhandler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/docsig/signature-service/api"
)

// Client is an HTTP client for the signature service API. It mirrors the
// endpoints registered by Handler.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for a service at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: http.DefaultClient}
}

// Status fetches the service status and version.
func (c *Client) Status() (*api.StatusResponse, error) {
	resp, err := c.http.Get(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("could not request status: %w", err)
	}
	return decodeResponse[api.StatusResponse](resp)
}

// GenerateKeys creates and registers a keypair. It returns the private key
// PEM and the assigned directory key id. The service never stores the
// private key.
func (c *Client) GenerateKeys(name, department string, keySize int) (privateKey []byte, keyID string, err error) {
	fields := map[string]string{"name": name, "department": department}
	if keySize > 0 {
		fields["key_size"] = fmt.Sprintf("%d", keySize)
	}
	resp, err := c.postMultipart("/generate-keys", fields, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", responseError(resp)
	}
	privateKey, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("could not read private key response: %w", err)
	}
	return privateKey, resp.Header.Get("X-Key-ID"), nil
}

// Sign produces a detached signature over data with the given private key PEM.
func (c *Client) Sign(data, privateKey []byte) ([]byte, error) {
	resp, err := c.postMultipart("/sign", nil, map[string][]byte{
		"file":        data,
		"private_key": privateKey,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// VerifyWithKeyID checks a detached signature against a registered key.
func (c *Client) VerifyWithKeyID(data, signature []byte, keyID string) (*api.VerifyResponse, error) {
	resp, err := c.postMultipart("/verify", map[string]string{"key_id": keyID}, map[string][]byte{
		"file":      data,
		"signature": signature,
	})
	if err != nil {
		return nil, err
	}
	return decodeResponse[api.VerifyResponse](resp)
}

// VerifyWithPublicKey checks a detached signature against an uploaded
// public key PEM.
func (c *Client) VerifyWithPublicKey(data, signature, publicKey []byte) (*api.VerifyResponse, error) {
	resp, err := c.postMultipart("/verify", nil, map[string][]byte{
		"file":       data,
		"signature":  signature,
		"public_key": publicKey,
	})
	if err != nil {
		return nil, err
	}
	return decodeResponse[api.VerifyResponse](resp)
}

// Directory lists all registered signers.
func (c *Client) Directory() (*api.DirectoryResponse, error) {
	resp, err := c.http.Get(c.baseURL + "/directory")
	if err != nil {
		return nil, fmt.Errorf("could not request directory: %w", err)
	}
	return decodeResponse[api.DirectoryResponse](resp)
}

// Register adds an externally generated public key to the directory.
func (c *Client) Register(name, department string, publicKey []byte) (*api.RegisterResponse, error) {
	resp, err := c.postMultipart("/register", map[string]string{
		"name":       name,
		"department": department,
	}, map[string][]byte{"public_key": publicKey})
	if err != nil {
		return nil, err
	}
	return decodeResponse[api.RegisterResponse](resp)
}

// DeleteKey removes a signer from the directory.
func (c *Client) DeleteKey(keyID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/directory/"+keyID, nil)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("could not request key deletion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

// GenerateCertificate issues a self-signed certificate and returns the
// password-protected credential container.
func (c *Client) GenerateCertificate(name, organization, password string) ([]byte, error) {
	resp, err := c.postMultipart("/generate-certificate", map[string]string{
		"name":         name,
		"organization": organization,
		"password":     password,
	}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	return io.ReadAll(resp.Body)
}

// SignPDF embeds a signature into a PDF using a credential container.
// It returns the signed document and the signer name.
func (c *Client) SignPDF(pdfData, container []byte, password string) (signed []byte, signer string, err error) {
	resp, err := c.postMultipart("/sign-pdf", map[string]string{"password": password}, map[string][]byte{
		"pdf_file":    pdfData,
		"certificate": container,
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", responseError(resp)
	}
	signed, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("could not read signed PDF response: %w", err)
	}
	return signed, resp.Header.Get("X-Signer-Name"), nil
}

// VerifyPDF checks every signature embedded in a PDF.
func (c *Client) VerifyPDF(pdfData []byte) (*api.PdfVerifyResponse, error) {
	resp, err := c.postMultipart("/verify-pdf", nil, map[string][]byte{"pdf_file": pdfData})
	if err != nil {
		return nil, err
	}
	return decodeResponse[api.PdfVerifyResponse](resp)
}

func (c *Client) postMultipart(path string, fields map[string]string, files map[string][]byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("could not build form: %w", err)
		}
	}
	for k, v := range files {
		fw, err := mw.CreateFormFile(k, k)
		if err != nil {
			return nil, fmt.Errorf("could not build form: %w", err)
		}
		if _, err := fw.Write(v); err != nil {
			return nil, fmt.Errorf("could not build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not build form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request %s: %w", path, err)
	}
	return resp, nil
}

func decodeResponse[T any](resp *http.Response) (*T, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}
	return &v, nil
}

// responseError turns a non-200 response into an error carrying the
// service's detail message.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Detail)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
