package common

import (
	"errors"

	"github.com/ignatzorin/prontocasa-backend/internal/domain/repository"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

// StoreError переводит ошибку хранилища в ошибку приложения.
// AppError пропускается как есть, ErrNotFound превращается в notFound.
func StoreError(err error, notFound *apperror.AppError, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) && notFound != nil {
		return notFound
	}
	if errors.Is(err, repository.ErrAlreadyExists) {
		return apperror.Wrap(err, apperror.ErrCodeConflict, message)
	}
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, message)
}

// IsNotFound сообщает, что хранилище не нашло запись.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
