package handlers_test

import (
	"net/http"
	"strings"
	"testing"
)

type userView struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	SupervisorID string `json:"supervisorId"`
	Active       bool   `json:"isActive"`
}

func TestUserListingVisibility(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	supervisorID, supervisorEmail := s.createUser(t, adminToken, "supervisor", "")
	_, employeeEmail := s.createUser(t, adminToken, "employee", supervisorID)
	supervisorToken := s.login(t, supervisorEmail, userPassword)
	employeeToken := s.login(t, employeeEmail, userPassword)

	var users []userView
	decode(t, s.do(t, http.MethodGet, "/api/v1/users", adminToken, nil, http.StatusOK), &users)
	if len(users) != 3 {
		t.Fatalf("expected admin to see 3 users, got %d", len(users))
	}

	decode(t, s.do(t, http.MethodGet, "/api/v1/users", supervisorToken, nil, http.StatusOK), &users)
	for _, u := range users {
		if u.Role == "employee" {
			t.Fatalf("supervisor must not see employees, got %+v", u)
		}
	}
	s.do(t, http.MethodGet, "/api/v1/users?role=employee", supervisorToken, nil, http.StatusForbidden)

	s.do(t, http.MethodGet, "/api/v1/users", employeeToken, nil, http.StatusForbidden)
	decode(t, s.do(t, http.MethodGet, "/api/v1/users?role=supervisor", employeeToken, nil, http.StatusOK), &users)
	if len(users) != 1 || users[0].ID != supervisorID {
		t.Fatalf("expected the one supervisor, got %+v", users)
	}

	bad := s.do(t, http.MethodGet, "/api/v1/users?role=owner", adminToken, nil, http.StatusBadRequest)
	assertErrorCode(t, bad, "invalid_role")

	s.do(t, http.MethodGet, "/api/v1/users/"+supervisorID, supervisorToken, nil, http.StatusOK)
	s.do(t, http.MethodGet, "/api/v1/users/"+supervisorID, employeeToken, nil, http.StatusForbidden)
	s.do(t, http.MethodGet, "/api/v1/users/not-a-uuid", adminToken, nil, http.StatusNotFound)
}

func TestCreateUserValidation(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)

	invalid := s.do(t, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"email":    "not-an-email",
		"password": userPassword,
		"role":     "employee",
	}, http.StatusBadRequest)
	assertValidationErrorField(t, invalid, "email")
	assertValidationErrorField(t, invalid, "firstName")
	assertValidationErrorField(t, invalid, "lastName")

	base := map[string]any{
		"email":     "dup@example.com",
		"password":  userPassword,
		"firstName": "Dup",
		"lastName":  "User",
		"role":      "employee",
	}
	s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusCreated)
	base["email"] = "DUP@example.com"
	taken := s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusConflict)
	assertErrorCode(t, taken, "email_taken")

	base["email"] = "other@example.com"
	base["supervisorId"] = "00000000-0000-0000-0000-000000000000"
	missing := s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusNotFound)
	assertErrorCode(t, missing, "supervisor_not_found")

	delete(base, "supervisorId")
	base["password"] = "weakpass"
	weak := s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusBadRequest)
	assertErrorCode(t, weak, "weak_password")

	base["password"] = userPassword
	base["role"] = "owner"
	role := s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusBadRequest)
	assertErrorCode(t, role, "invalid_role")

	base["role"] = "employee"
	base["nickname"] = "x"
	unknown := s.do(t, http.MethodPost, "/api/v1/users", adminToken, base, http.StatusBadRequest)
	assertErrorCode(t, unknown, "invalid_payload")
}

func TestSupervisorCycleIsRejected(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	topID, _ := s.createUser(t, adminToken, "supervisor", "")
	midID, _ := s.createUser(t, adminToken, "supervisor", topID)
	lowID, _ := s.createUser(t, adminToken, "employee", midID)

	cycle := s.do(t, http.MethodPut, "/api/v1/users/"+topID, adminToken, map[string]any{"supervisorId": lowID}, http.StatusConflict)
	assertErrorCode(t, cycle, "cycle_detected")
	self := s.do(t, http.MethodPut, "/api/v1/users/"+topID, adminToken, map[string]any{"supervisorId": topID}, http.StatusConflict)
	assertErrorCode(t, self, "cycle_detected")

	var top userView
	decode(t, s.do(t, http.MethodGet, "/api/v1/users/"+topID, adminToken, nil, http.StatusOK), &top)
	if top.SupervisorID != "" {
		t.Fatalf("rejected reassignment must not change anything, got %+v", top)
	}

	// clearing an edge is always allowed
	var low userView
	decode(t, s.do(t, http.MethodPut, "/api/v1/users/"+lowID, adminToken, map[string]any{"supervisorId": ""}, http.StatusOK), &low)
	if low.SupervisorID != "" {
		t.Fatalf("expected cleared supervisor, got %+v", low)
	}
}

func TestUpdateUserEmailConflictChangesNothing(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	firstID, _ := s.createUser(t, adminToken, "supervisor", "")
	secondID, _ := s.createUser(t, adminToken, "supervisor", "")
	employeeID, employeeEmail := s.createUser(t, adminToken, "employee", firstID)
	_, takenEmail := s.createUser(t, adminToken, "employee", firstID)

	conflict := s.do(t, http.MethodPut, "/api/v1/users/"+employeeID, adminToken, map[string]any{
		"supervisorId": secondID,
		"email":        takenEmail,
	}, http.StatusConflict)
	assertErrorCode(t, conflict, "email_taken")

	var employee userView
	decode(t, s.do(t, http.MethodGet, "/api/v1/users/"+employeeID, adminToken, nil, http.StatusOK), &employee)
	if employee.SupervisorID != firstID || employee.Email != employeeEmail {
		t.Fatalf("refused update must leave the identity unchanged, got %+v", employee)
	}

	// keeping one's own address is not a conflict
	decode(t, s.do(t, http.MethodPut, "/api/v1/users/"+employeeID, adminToken, map[string]any{
		"supervisorId": secondID,
		"email":        strings.ToUpper(employeeEmail),
	}, http.StatusOK), &employee)
	if employee.SupervisorID != secondID || employee.Email != employeeEmail {
		t.Fatalf("unexpected identity after update: %+v", employee)
	}
}

func TestReassignSubordinates(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	oldID, _ := s.createUser(t, adminToken, "supervisor", "")
	newID, _ := s.createUser(t, adminToken, "supervisor", "")
	s.createUser(t, adminToken, "employee", oldID)
	s.createUser(t, adminToken, "employee", oldID)

	var subs struct {
		Count        int        `json:"count"`
		Subordinates []userView `json:"subordinates"`
	}
	decode(t, s.do(t, http.MethodGet, "/api/v1/users/"+oldID+"/subordinates", adminToken, nil, http.StatusOK), &subs)
	if subs.Count != 2 || len(subs.Subordinates) != 2 {
		t.Fatalf("expected 2 subordinates, got %+v", subs)
	}

	var moved map[string]int
	decode(t, s.do(t, http.MethodPost, "/api/v1/users/"+oldID+"/reassign-subordinates", adminToken, map[string]any{"newSupervisorId": newID}, http.StatusOK), &moved)
	if moved["reassignedCount"] != 2 {
		t.Fatalf("expected 2 reassigned, got %+v", moved)
	}
	decode(t, s.do(t, http.MethodGet, "/api/v1/users/"+newID+"/subordinates", adminToken, nil, http.StatusOK), &subs)
	if subs.Count != 2 {
		t.Fatalf("expected new supervisor to have 2 subordinates, got %d", subs.Count)
	}

	missing := s.do(t, http.MethodPost, "/api/v1/users/"+oldID+"/reassign-subordinates", adminToken, map[string]any{}, http.StatusBadRequest)
	assertValidationErrorField(t, missing, "newSupervisorId")
}

func TestDeleteUserRules(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	adminID := s.me(t, adminToken)

	self := s.do(t, http.MethodDelete, "/api/v1/users/"+adminID, adminToken, nil, http.StatusBadRequest)
	assertErrorCode(t, self, "cannot_delete_self")

	supervisorID, _ := s.createUser(t, adminToken, "supervisor", "")
	employeeID, employeeEmail := s.createUser(t, adminToken, "employee", supervisorID)

	busy := s.do(t, http.MethodDelete, "/api/v1/users/"+supervisorID, adminToken, nil, http.StatusConflict)
	assertErrorCode(t, busy, "has_dependents")

	// request history also blocks deletion
	s.fileRequest(t, s.login(t, employeeEmail, userPassword))
	s.do(t, http.MethodDelete, "/api/v1/users/"+employeeID, adminToken, nil, http.StatusConflict)

	loneID, _ := s.createUser(t, adminToken, "employee", "")
	s.do(t, http.MethodDelete, "/api/v1/users/"+loneID, adminToken, nil, http.StatusOK)
	s.do(t, http.MethodGet, "/api/v1/users/"+loneID, adminToken, nil, http.StatusNotFound)
	s.do(t, http.MethodDelete, "/api/v1/users/"+loneID, adminToken, nil, http.StatusNotFound)
}

func TestUpdateUserRejectsSelfDeactivation(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	adminID := s.me(t, adminToken)
	env := s.do(t, http.MethodPut, "/api/v1/users/"+adminID, adminToken, map[string]any{"isActive": false}, http.StatusBadRequest)
	assertErrorCode(t, env, "cannot_deactivate_self")
}

func TestAdminPasswordResetInvalidatesSessions(t *testing.T) {
	s := startServer(t, testConfig())
	adminToken := s.login(t, adminEmail, adminPassword)
	id, email := s.createUser(t, adminToken, "employee", "")
	token := s.login(t, email, userPassword)

	s.do(t, http.MethodPut, "/api/v1/users/"+id, adminToken, map[string]any{"password": "Resetpass99"}, http.StatusOK)
	stale := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil, http.StatusUnauthorized)
	assertErrorCode(t, stale, "token_invalidated")
	s.login(t, email, "Resetpass99")
}
