package signing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsig/signature-service/directory"
	"github.com/docsig/signature-service/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T) (*Service, *directory.Directory) {
	t.Helper()
	dir, err := directory.New(nil, testLogger())
	require.NoError(t, err)
	return New(dir, testLogger()), dir
}

func TestSignVerifyRoundTrip(t *testing.T) {
	svc, _ := newService(t)

	pair, entry, err := svc.GenerateAndRegister("Alice", "Engineering", 2048)
	require.NoError(t, err)

	data := []byte("contract body")
	signature, err := svc.Sign(data, pair.PrivateKey)
	require.NoError(t, err)

	result, err := svc.Verify(data, signature, entry.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Alice (Engineering)", result.Signer)
	assert.NotEmpty(t, result.Msg)
}

func TestVerifyTamperedData(t *testing.T) {
	svc, _ := newService(t)

	pair, entry, err := svc.GenerateAndRegister("Alice", "Engineering", 2048)
	require.NoError(t, err)

	data := []byte("contract body")
	signature, err := svc.Sign(data, pair.PrivateKey)
	require.NoError(t, err)

	mutated := append([]byte(nil), data...)
	mutated[0] ^= 0x01

	result, err := svc.Verify(mutated, signature, entry.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	// The signer name is still reported: the id resolved to a known signer.
	assert.Equal(t, "Alice (Engineering)", result.Signer)
}

func TestVerifyAgainstDifferentSigner(t *testing.T) {
	svc, _ := newService(t)

	pairA, _, err := svc.GenerateAndRegister("Alice", "Engineering", 2048)
	require.NoError(t, err)
	_, entryB, err := svc.GenerateAndRegister("Bob", "Legal", 2048)
	require.NoError(t, err)

	data := []byte("contract body")
	signature, err := svc.Sign(data, pairA.PrivateKey)
	require.NoError(t, err)

	result, err := svc.Verify(data, signature, entryB.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Bob (Legal)", result.Signer)
}

func TestVerifyUnknownSigner(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Verify([]byte("data"), []byte{0x01}, "deadbeef")
	require.Error(t, err)
	assert.Equal(t, interfaces.KindUnknownSigner, interfaces.KindOf(err))
}

func TestVerifyAfterDelete(t *testing.T) {
	svc, dir := newService(t)

	pair, entry, err := svc.GenerateAndRegister("Alice", "Engineering", 2048)
	require.NoError(t, err)

	data := []byte("contract body")
	signature, err := svc.Sign(data, pair.PrivateKey)
	require.NoError(t, err)

	require.NoError(t, dir.Delete(entry.ID))

	_, err = svc.Verify(data, signature, entry.ID)
	require.Error(t, err)
	assert.Equal(t, interfaces.KindUnknownSigner, interfaces.KindOf(err))
}

func TestVerifyWithUploadedKey(t *testing.T) {
	svc, _ := newService(t)

	pair, err := svc.GenerateKeypair(2048)
	require.NoError(t, err)

	data := []byte("contract body")
	signature, err := svc.Sign(data, pair.PrivateKey)
	require.NoError(t, err)

	result, err := svc.VerifyWithKey(data, signature, pair.PublicKey)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Uploaded Key", result.Signer)
}

// failingStore rejects every save to exercise registration failure.
type failingStore struct{}

func (failingStore) Save(ctx context.Context, entry *interfaces.DirectoryEntry) error {
	return errors.New("store is on fire")
}
func (failingStore) Delete(ctx context.Context, id string) error { return nil }
func (failingStore) Load(ctx context.Context) ([]*interfaces.DirectoryEntry, error) {
	return nil, nil
}
func (failingStore) Name() string { return "failing" }

func TestGenerateAndRegisterLeavesNoPartialState(t *testing.T) {
	dir, err := directory.New(failingStore{}, testLogger())
	require.NoError(t, err)
	svc := New(dir, testLogger())

	_, _, err = svc.GenerateAndRegister("Alice", "Engineering", 2048)
	require.Error(t, err)

	assert.Empty(t, dir.List(), "failed registration must not leave an entry behind")
}

func TestGenerateAndRegisterRejectsBadInput(t *testing.T) {
	svc, dir := newService(t)

	_, _, err := svc.GenerateAndRegister("", "Engineering", 2048)
	require.Error(t, err)
	assert.Equal(t, interfaces.KindInvalidInput, interfaces.KindOf(err))

	_, _, err = svc.GenerateAndRegister("Alice", "Engineering", 1234)
	require.Error(t, err)
	assert.Equal(t, interfaces.KindInvalidInput, interfaces.KindOf(err))

	assert.Empty(t, dir.List())
}
