package apihttp

import (
	"net/http"

	"signal-alerts/internal/audit"
	"signal-alerts/internal/auth"
)

func logAudit(r *http.Request, logger audit.Logger, action, resourceType, resourceID string) {
	if logger == nil {
		return
	}
	actor, _ := auth.UserFromRequest(r)
	_ = logger.Log(r.Context(), audit.Entry{
		Actor:        actor,
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
