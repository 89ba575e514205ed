package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"campuslink.app/internal/audit"
	"campuslink.app/internal/auth"
)

type changeRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type toggleStatusRequest struct {
	UserID string `json:"user_id"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.UserFilter{Role: auth.Role(strings.TrimSpace(q.Get("role")))}
	if raw := strings.TrimSpace(q.Get("is_active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			ve := &auth.ValidationError{}
			ve.Add("is_active", "is_active must be true or false")
			writeValidation(w, r, ve)
			return
		}
		filter.Active = &active
	}
	users, err := a.svc.ListUsers(r.Context(), principalFrom(r), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

func (a *API) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.ChangeRole(r.Context(), principalFrom(r), req.UserID, req.Role, requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User role changed to " + string(user.Role),
		"user":    user,
	})
}

func (a *API) handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	var req toggleStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.ToggleActive(r.Context(), principalFrom(r), req.UserID, requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	state := "deactivated"
	if user.IsActive {
		state = "activated"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User " + state,
		"user":    user,
	})
}

func (a *API) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.EventFilter{}
	if raw := strings.TrimSpace(q.Get("unresolved")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unresolved must be true or false")
			return
		}
		filter.UnresolvedOnly = v
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	events, err := a.audit.SecurityEvents(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if events == nil {
		events = []audit.SecurityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

func (a *API) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.audit.Resolve(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Security event resolved",
		"id":      id,
	})
}
