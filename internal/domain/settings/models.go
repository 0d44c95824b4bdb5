package settings

import "time"

// SMTP is the stored mail relay configuration. PasswordEnc is sealed.
type SMTP struct {
	Enabled     bool
	Host        string
	Port        int
	User        string
	PasswordEnc []byte
	From        string
	UseTLS      bool
	UpdatedBy   string
	UpdatedAt   time.Time
}

// SMTPView is what admins see; the password is masked.
type SMTPView struct {
	Enabled     bool       `json:"enabled"`
	Host        string     `json:"host"`
	Port        int        `json:"port"`
	User        string     `json:"username"`
	Password    string     `json:"password"`
	HasPassword bool       `json:"hasPassword"`
	From        string     `json:"fromEmail"`
	UseTLS      bool       `json:"useTls"`
	Source      string     `json:"source"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// SMTPUpdate carries optional changes. A nil Password, or one equal to the
// masked value, keeps the stored password; an empty string clears it.
type SMTPUpdate struct {
	Enabled  *bool   `json:"enabled"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	User     *string `json:"username"`
	Password *string `json:"password"`
	From     *string `json:"fromEmail"`
	UseTLS   *bool   `json:"useTls"`
}

const (
	SourceDatabase    = "database"
	SourceEnvironment = "environment"
)
