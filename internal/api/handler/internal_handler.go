package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	mongoaudit "github.com/kaiin-app/authcore/internal/infrastructure/db/mongo"
)

// SessionResetter is the slice of the session service the internal surface
// needs.
type SessionResetter interface {
	Reset()
}

// InternalHandler serves the operator-facing endpoints: the audit trail and
// the session reset hook. Both sit behind the internal-key middleware.
type InternalHandler struct {
	audit    *mongoaudit.AuditRepository
	sessions SessionResetter
}

func NewInternalHandler(audit *mongoaudit.AuditRepository, sessions SessionResetter) *InternalHandler {
	return &InternalHandler{audit: audit, sessions: sessions}
}

// RecentAudit returns the latest auth events, newest first.
//
// @Summary      Recent auth events
// @Tags         internal
// @Produce      json
// @Param        limit  query  int  false  "Max events (default 50)"
// @Success      200  {array}  mongoaudit.AuditEntry
// @Router       /internal/audit/recent [get]
func (h *InternalHandler) RecentAudit(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := h.audit.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit trail unavailable")
	}
	return c.JSON(http.StatusOK, entries)
}

// ResetSession drops the gateway's cached user so the next read resolves
// from scratch. Support hook for stuck sessions.
//
// @Summary      Reset cached session
// @Tags         internal
// @Success      204
// @Router       /internal/session/reset [post]
func (h *InternalHandler) ResetSession(c echo.Context) error {
	h.sessions.Reset()
	return c.NoContent(http.StatusNoContent)
}
