package usershandler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"timeoff/internal/domain/audit"
	"timeoff/internal/domain/auth"
	"timeoff/internal/domain/identity"
	"timeoff/internal/domain/org"
	"timeoff/internal/transport/http/api"
	"timeoff/internal/transport/http/middleware"
	"timeoff/internal/transport/http/shared"
)

const maxNameLength = 100

type Handler struct {
	Identities identity.StoreAPI
	Hierarchy  *org.Hierarchy
	Auth       *auth.Service
	Audit      *audit.Recorder
}

func NewHandler(identities identity.StoreAPI, hierarchy *org.Hierarchy, authService *auth.Service, recorder *audit.Recorder) *Handler {
	return &Handler{Identities: identities, Hierarchy: hierarchy, Auth: authService, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	adminOnly := middleware.RequireRole(identity.RoleAdmin)
	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.Auth))
		r.Get("/", h.handleListUsers)
		r.With(adminOnly).Post("/", h.handleCreateUser)
		r.Route("/{userID}", func(r chi.Router) {
			r.With(middleware.RequireRole(identity.RoleAdmin, identity.RoleSupervisor)).Get("/", h.handleGetUser)
			r.With(adminOnly).Put("/", h.handleUpdateUser)
			r.With(adminOnly).Delete("/", h.handleDeleteUser)
			r.With(adminOnly).Get("/subordinates", h.handleSubordinates)
			r.With(adminOnly).Post("/reassign-subordinates", h.handleReassignSubordinates)
		})
	})
}

// handleListUsers applies the directory visibility rules: anyone may list
// supervisors, employees may list nothing else, supervisors only see
// supervisors and admins.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var filter identity.ListFilter
	rawRole := strings.TrimSpace(r.URL.Query().Get("role"))
	var requested identity.Role
	if rawRole != "" {
		role, err := identity.ParseRole(rawRole)
		if err != nil {
			api.FailError(w, err, reqID)
			return
		}
		requested = role
	}

	switch {
	case requested == identity.RoleSupervisor:
		filter.Roles = []identity.Role{identity.RoleSupervisor}
		filter.ActiveOnly = principal.Role != identity.RoleAdmin
	case principal.Role == identity.RoleAdmin:
		if requested != "" {
			filter.Roles = []identity.Role{requested}
		}
	case principal.Role == identity.RoleSupervisor:
		visible := []identity.Role{identity.RoleSupervisor, identity.RoleAdmin}
		if requested != "" {
			if !slices.Contains(visible, requested) {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", reqID)
				return
			}
			visible = []identity.Role{requested}
		}
		filter.Roles = visible
	default:
		api.Fail(w, http.StatusForbidden, "forbidden", "insufficient role", reqID)
		return
	}

	users, err := h.Identities.List(r.Context(), filter)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if users == nil {
		users = []identity.Identity{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(users)))
	api.Success(w, users, reqID)
}

type createUserPayload struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Role         string `json:"role"`
	SupervisorID string `json:"supervisorId"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())

	var payload createUserPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("firstName", payload.FirstName, "required")
	v.Required("lastName", payload.LastName, "required")
	v.MaxLen("firstName", payload.FirstName, maxNameLength)
	v.MaxLen("lastName", payload.LastName, maxNameLength)
	v.Required("role", payload.Role, "required")
	v.Required("password", payload.Password, "required")
	if err := identity.ValidateEmail(payload.Email); err != nil {
		v.Add("email", "must be a valid email address")
	}
	if v.Reject(w, reqID) {
		return
	}
	role, err := identity.ParseRole(payload.Role)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if err := identity.ValidatePassword(payload.Password); err != nil {
		api.FailError(w, err, reqID)
		return
	}

	supervisorID := strings.TrimSpace(payload.SupervisorID)
	if supervisorID != "" {
		if err := h.checkSupervisor(r, supervisorID); err != nil {
			api.FailError(w, err, reqID)
			return
		}
	}

	digest, err := h.Auth.Hasher().Hash(payload.Password)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	created, err := h.Identities.Create(r.Context(), identity.NewIdentity{
		Email:        payload.Email,
		PasswordHash: digest,
		FirstName:    strings.TrimSpace(payload.FirstName),
		LastName:     strings.TrimSpace(payload.LastName),
		Role:         role,
		SupervisorID: supervisorID,
		Active:       true,
	})
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionUserCreated, map[string]string{
		"userId": created.ID,
		"email":  created.Email,
		"role":   string(created.Role),
	})
	api.Created(w, created, reqID)
}

// checkSupervisor validates the supervisor of a new identity. A new node
// has no descendants, so no cycle check is needed.
func (h *Handler) checkSupervisor(r *http.Request, supervisorID string) error {
	sup, err := h.Identities.ByID(r.Context(), supervisorID)
	if errors.Is(err, identity.ErrNotFound) {
		return org.ErrSupervisorNotFound
	}
	if err != nil {
		return err
	}
	if !sup.Active {
		return org.ErrSupervisorInactive
	}
	return nil
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	who, err := h.Identities.ByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, who, reqID)
}

type updateUserPayload struct {
	Email        *string `json:"email"`
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Role         *string `json:"role"`
	SupervisorID *string `json:"supervisorId"`
	IsActive     *bool   `json:"isActive"`
	Password     *string `json:"password"`
}

// handleUpdateUser validates the whole payload, including email
// uniqueness, before changing anything; the supervisor edge goes first as
// it is the change most likely to be refused.
func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())
	userID := chi.URLParam(r, "userID")

	var payload updateUserPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}

	var patch identity.Patch
	v := shared.NewValidator()
	if payload.FirstName != nil {
		name := strings.TrimSpace(*payload.FirstName)
		v.Required("firstName", name, "must not be empty")
		v.MaxLen("firstName", name, maxNameLength)
		patch.FirstName = &name
	}
	if payload.LastName != nil {
		name := strings.TrimSpace(*payload.LastName)
		v.Required("lastName", name, "must not be empty")
		v.MaxLen("lastName", name, maxNameLength)
		patch.LastName = &name
	}
	if payload.Email != nil {
		if err := identity.ValidateEmail(*payload.Email); err != nil {
			v.Add("email", "must be a valid email address")
		}
		patch.Email = payload.Email
	}
	if v.Reject(w, reqID) {
		return
	}
	if payload.Role != nil {
		role, err := identity.ParseRole(*payload.Role)
		if err != nil {
			api.FailError(w, err, reqID)
			return
		}
		patch.Role = &role
	}
	if payload.IsActive != nil {
		if !*payload.IsActive && userID == principal.ID {
			api.Fail(w, http.StatusBadRequest, "cannot_deactivate_self", "cannot deactivate own account", reqID)
			return
		}
		patch.Active = payload.IsActive
	}
	if payload.Password != nil {
		if err := identity.ValidatePassword(*payload.Password); err != nil {
			api.FailError(w, err, reqID)
			return
		}
	}

	if _, err := h.Identities.ByID(r.Context(), userID); err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if patch.Email != nil {
		if err := h.emailAvailable(r.Context(), *patch.Email, userID); err != nil {
			api.FailError(w, err, reqID)
			return
		}
	}

	changed := make([]string, 0, 4)
	if payload.SupervisorID != nil {
		if _, err := h.Hierarchy.Reassign(r.Context(), []string{userID}, strings.TrimSpace(*payload.SupervisorID)); err != nil {
			api.FailError(w, err, reqID)
			return
		}
		changed = append(changed, "supervisorId")
	}
	if !patch.Empty() {
		if _, err := h.Identities.Update(r.Context(), userID, patch); err != nil {
			api.FailError(w, err, reqID)
			return
		}
		changed = append(changed, patchedFields(patch)...)
	}
	if payload.Password != nil {
		if err := h.Auth.SetPassword(r.Context(), userID, *payload.Password); err != nil {
			api.FailError(w, err, reqID)
			return
		}
		changed = append(changed, "password")
	}

	updated, err := h.Identities.ByID(r.Context(), userID)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionUserUpdated, map[string]string{
		"userId": userID,
		"fields": strings.Join(changed, ","),
	})
	api.Success(w, updated, reqID)
}

// emailAvailable reports ErrEmailTaken when another identity owns email.
func (h *Handler) emailAvailable(ctx context.Context, email, ownerID string) error {
	other, err := h.Identities.ByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != ownerID {
		return identity.ErrEmailTaken
	}
	return nil
}

func patchedFields(p identity.Patch) []string {
	var out []string
	if p.FirstName != nil {
		out = append(out, "firstName")
	}
	if p.LastName != nil {
		out = append(out, "lastName")
	}
	if p.Email != nil {
		out = append(out, "email")
	}
	if p.Role != nil {
		out = append(out, "role")
	}
	if p.Active != nil {
		out = append(out, "isActive")
	}
	return out
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())
	userID := chi.URLParam(r, "userID")

	target, err := h.Identities.ByID(r.Context(), userID)
	if err != nil && userID != principal.ID {
		api.FailError(w, err, reqID)
		return
	}
	if err := h.Hierarchy.Delete(r.Context(), principal.ID, userID); err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionUserDeleted, map[string]string{
		"userId": userID,
		"email":  target.Email,
	})
	api.Success(w, map[string]string{"status": "deleted"}, reqID)
}

type subordinatesResponse struct {
	Count        int                 `json:"count"`
	Subordinates []identity.Identity `json:"subordinates"`
}

func (h *Handler) handleSubordinates(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	reports, err := h.Hierarchy.DirectReportsOf(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	if reports == nil {
		reports = []identity.Identity{}
	}
	api.Success(w, subordinatesResponse{Count: len(reports), Subordinates: reports}, reqID)
}

type reassignPayload struct {
	NewSupervisorID string `json:"newSupervisorId"`
}

func (h *Handler) handleReassignSubordinates(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	principal, _ := middleware.GetPrincipal(r.Context())
	fromID := chi.URLParam(r, "userID")

	var payload reassignPayload
	if !shared.DecodeJSON(w, r, &payload, reqID) {
		return
	}
	v := shared.NewValidator()
	v.Required("newSupervisorId", payload.NewSupervisorID, "required")
	if v.Reject(w, reqID) {
		return
	}

	moved, err := h.Hierarchy.ReassignReports(r.Context(), fromID, strings.TrimSpace(payload.NewSupervisorID))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	h.Audit.Log(r.Context(), principal.ID, audit.ActionSubordinatesReassigned, map[string]string{
		"fromSupervisorId": fromID,
		"toSupervisorId":   payload.NewSupervisorID,
		"count":            strconv.Itoa(moved),
	})
	api.Success(w, map[string]int{"reassignedCount": moved}, reqID)
}
