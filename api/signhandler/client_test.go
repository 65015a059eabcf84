package signhandler

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAgainstHandler(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, Config{SignReason: "Approval"}))
	defer srv.Close()
	client := NewClient(srv.URL)

	status, err := client.Status()
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)

	privateKey, keyID, err := client.GenerateKeys("Alice", "Legal", 2048)
	require.NoError(t, err)
	require.Len(t, keyID, 8)
	require.Contains(t, string(privateKey), "PRIVATE KEY")

	document := []byte("signed over the wire")
	signature, err := client.Sign(document, privateKey)
	require.NoError(t, err)

	verify, err := client.VerifyWithKeyID(document, signature, keyID)
	require.NoError(t, err)
	assert.True(t, verify.Valid)
	assert.Equal(t, "Alice (Legal)", verify.Signer)

	dir, err := client.Directory()
	require.NoError(t, err)
	require.Len(t, dir.Entries, 1)
	assert.Equal(t, keyID, dir.Entries[0].ID)

	require.NoError(t, client.DeleteKey(keyID))
	err = client.DeleteKey(keyID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClientPDFFlow(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, Config{SignReason: "Approval"}))
	defer srv.Close()
	client := NewClient(srv.URL)

	container, err := client.GenerateCertificate("Bob", "Globex", "hunter2")
	require.NoError(t, err)

	signed, signer, err := client.SignPDF(testPDF(t), container, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "Bob", signer)

	report, err := client.VerifyPDF(signed)
	require.NoError(t, err)
	require.True(t, report.HasSignatures)
	assert.True(t, report.AllValid)
	require.Len(t, report.Signatures, 1)
	assert.Equal(t, "Bob", report.Signatures[0].Signer)

	_, _, err = client.SignPDF(testPDF(t), container, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}
