package storage

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

func newTestStorage(t *testing.T) (*SignatureStorage, string) {
	t.Helper()
	root := t.TempDir()
	s, err := NewSignatureStorage(root, 1)
	require.NoError(t, err)
	return s, root
}

func TestSignatureStorage_Save(t *testing.T) {
	s, root := newTestStorage(t)
	requestID := uuid.New()

	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	path, checksum, err := s.Save(context.Background(), requestID, encoded)
	require.NoError(t, err)

	assert.Contains(t, path, requestID.String())
	assert.Equal(t, ".png", filepath.Ext(path))
	assert.Len(t, checksum, 64)

	stored, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	ok, err := s.Verify(context.Background(), path, checksum)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignatureStorage_RejectsInvalid(t *testing.T) {
	s, _ := newTestStorage(t)

	tests := []struct {
		name    string
		encoded string
	}{
		{"пустая строка", ""},
		{"не base64", "%%%"},
		{"не изображение", base64.StdEncoding.EncodeToString([]byte("просто текст, а не картинка"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Save(context.Background(), uuid.New(), tt.encoded)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestSignatureStorage_Purge(t *testing.T) {
	s, root := newTestStorage(t)
	encoded := base64.StdEncoding.EncodeToString(pngBytes)

	oldPath, _, err := s.Save(context.Background(), uuid.New(), encoded)
	require.NoError(t, err)
	freshPath, _, err := s.Save(context.Background(), uuid.New(), encoded)
	require.NoError(t, err)

	old := time.Now().Add(-11 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, filepath.FromSlash(oldPath)), old, old))

	removed, err := s.Purge(context.Background(), 10*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(oldPath)))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Dir(filepath.Join(root, filepath.FromSlash(oldPath))))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(freshPath)))
	assert.NoError(t, err)
}
