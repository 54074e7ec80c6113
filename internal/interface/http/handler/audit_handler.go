package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/dto"
	"github.com/ignatzorin/prontocasa-backend/internal/interface/http/response"
	"github.com/ignatzorin/prontocasa-backend/internal/usecase/audit"
)

type AuditHandler struct {
	list *audit.ListEntriesUseCase
}

func NewAuditHandler(list *audit.ListEntriesUseCase) *AuditHandler {
	return &AuditHandler{list: list}
}

// ListEntries возвращает журнал изменений с фильтром по entity_type и entity_id.
func (h *AuditHandler) ListEntries(c *gin.Context) {
	input := audit.ListEntriesInput{
		EntityType: c.Query("entity_type"),
		Limit:      parseIntQuery(c, "limit", 50),
		Offset:     parseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "некорректный entity_id")
			return
		}
		input.EntityID = &id
	}

	out, err := h.list.Execute(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, dto.ToAuditEntryResponses(out.Entries), out.Total, out.Limit, out.Offset)
}
