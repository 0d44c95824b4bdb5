package audit

import "time"

const (
	ActionLogin                  = "USER_LOGIN"
	ActionLoginFailed            = "LOGIN_FAILED"
	ActionLogout                 = "USER_LOGOUT"
	ActionPasswordChanged        = "PASSWORD_CHANGED"
	ActionUserCreated            = "USER_CREATED"
	ActionUserUpdated            = "USER_UPDATED"
	ActionUserDeleted            = "USER_DELETED"
	ActionSubordinatesReassigned = "SUBORDINATES_REASSIGNED"
	ActionSMTPConfigUpdated      = "SMTP_CONFIG_UPDATED"
	ActionSMTPTestSent           = "SMTP_TEST_SENT"
	ActionSystemInitialized      = "SYSTEM_INITIALIZED"
)

type Entry struct {
	ID        int64             `json:"id"`
	ActorID   string            `json:"actorId,omitempty"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	IP        string            `json:"ip,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	PrevHash  []byte            `json:"-"`
	Hash      []byte            `json:"-"`
}

type Filter struct {
	ActorID string
	Action  string
	Limit   int
	Offset  int
}

type VerifyResult struct {
	Valid    bool  `json:"valid"`
	Checked  int   `json:"checked"`
	BrokenAt int64 `json:"brokenAt,omitempty"`
}
