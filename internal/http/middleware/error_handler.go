package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/logger"
	"github.com/ignatzorin/prontocasa-backend/internal/pkg/apperror"
)

// ErrorHandler логирует ошибки запроса и отвечает за хендлеры, которые не успели записать ответ.
// Клиентские ошибки пишутся с уровнем info, остальные с error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		}
		if userID, ok := UserID(c); ok {
			fields["user_id"] = userID
		}
		entry := logger.Log.WithFields(fields).WithError(err)
		if c.Writer.Status() >= http.StatusInternalServerError || !isClientError(err) {
			entry.Error("http: ошибка запроса")
		} else {
			entry.Info("http: запрос отклонён")
		}

		if !c.Writer.Written() {
			response.Error(c, err)
		}
	}
}

func isClientError(err error) bool {
	return apperror.IsValidation(err) || apperror.IsNotFound(err) || apperror.IsForbidden(err) ||
		apperror.IsConflict(err) || apperror.IsInvalidTransition(err)
}
