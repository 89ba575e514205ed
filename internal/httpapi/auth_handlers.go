package httpapi

import (
	"net/http"

	"campuslink.app/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func tokenBody(user *auth.User, pair auth.TokenPair) map[string]any {
	return map[string]any{
		"success":            true,
		"user":               user,
		"access":             pair.AccessToken,
		"refresh":            pair.RefreshToken,
		"access_expires_at":  timeOrNil(pair.AccessExpiresAt),
		"refresh_expires_at": timeOrNil(pair.RefreshExpiresAt),
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.svc.Register(r.Context(), req, requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := tokenBody(user, pair)
	body["message"] = "Registration successful"
	writeJSON(w, http.StatusCreated, body)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.svc.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := tokenBody(user, pair)
	body["message"] = "Login successful"
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, _, err := a.svc.Refresh(r.Context(), req.Refresh)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	body := map[string]any{
		"success":           true,
		"access":            pair.AccessToken,
		"access_expires_at": timeOrNil(pair.AccessExpiresAt),
	}
	if pair.Rotated {
		body["refresh"] = pair.RefreshToken
		body["refresh_expires_at"] = timeOrNil(pair.RefreshExpiresAt)
	}
	writeJSON(w, http.StatusOK, body)
}

// handleLogout succeeds even when the body is missing or the refresh token is
// already invalid.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeJSON(w, r, &req)
	if err := a.svc.Logout(r.Context(), principalFrom(r), req.Refresh, requestMeta(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Successfully logged out",
	})
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user":        p.User,
		"permissions": p.PermissionList(),
	})
}

func (a *API) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("permission")
	ok, err := a.svc.CheckPermission(principalFrom(r), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"permission":     key,
		"has_permission": ok,
	})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"permissions": auth.AllPermissions(),
		"roles":       auth.RolePermissionMap(),
	})
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.GetProfile(r.Context(), principalFrom(r), r.PathValue("id"), requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd auth.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.UpdateProfile(r.Context(), principalFrom(r), r.PathValue("id"), upd, requestMeta(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Profile updated successfully",
		"user":    user,
	})
}
