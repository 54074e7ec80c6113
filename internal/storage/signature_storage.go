package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"golang.org/x/crypto/blake2b"

	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

const signaturesDir = "signatures"

// SignatureStorage хранит подписи клиентов на диске.
type SignatureStorage struct {
	rootPath       string
	maxUploadBytes int64
	now            func() time.Time
}

// NewSignatureStorage создаёт файловое хранилище.
func NewSignatureStorage(rootPath string, maxUploadMB int64) (*SignatureStorage, error) {
	if err := os.MkdirAll(filepath.Join(rootPath, signaturesDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &SignatureStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
		now:            time.Now,
	}, nil
}

// Save декодирует подпись из base64 (допускается data URL), проверяет, что это изображение,
// и сохраняет её. Возвращает относительный путь и blake2b-256 контрольную сумму.
func (s *SignatureStorage) Save(ctx context.Context, requestID uuid.UUID, encoded string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	data, err := decodeImage(encoded)
	if err != nil {
		return "", "", err
	}
	if int64(len(data)) > s.maxUploadBytes {
		return "", "", apperror.Validation("signature", fmt.Sprintf("размер подписи превышает лимит %d байт", s.maxUploadBytes))
	}

	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", "", apperror.Validation("signature", "подпись должна быть изображением")
	}

	sum := blake2b.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	dir := filepath.Join(s.rootPath, signaturesDir, requestID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("storage: не удалось создать каталог заявки: %w", err)
	}

	fileName := fmt.Sprintf("%d.%s", s.now().UTC().UnixNano(), kind.Extension)
	targetPath := filepath.Join(dir, fileName)
	tempPath := targetPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return "", "", fmt.Errorf("storage: ошибка записи файла: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		_ = os.Remove(tempPath)
		return "", "", fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return filepath.ToSlash(filepath.Join(signaturesDir, requestID.String(), fileName)), checksum, nil
}

// Verify пересчитывает контрольную сумму сохранённой подписи.
func (s *SignatureStorage) Verify(ctx context.Context, relativePath, checksum string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, err := os.ReadFile(s.resolve(relativePath))
	if err != nil {
		return false, fmt.Errorf("storage: не удалось прочитать файл: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]) == checksum, nil
}

// Purge удаляет файлы старше olderThan и пустые каталоги. Возвращает число удалённых файлов.
func (s *SignatureStorage) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	root := filepath.Join(s.rootPath, signaturesDir)
	removed := 0
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("storage: не удалось удалить файл: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Каталоги заявок удаляются, только если опустели.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
	return removed, nil
}

func (s *SignatureStorage) resolve(relativePath string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(relativePath))
	return filepath.Join(s.rootPath, clean)
}

func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, apperror.Validation("signature", "подпись обязательна")
	}
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperror.Validation("signature", "подпись должна быть в base64")
	}
	return data, nil
}
