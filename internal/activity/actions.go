package activity

type Action string

const (
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
	ActionMobileLogin     Action = "mobile_login"
	ActionMobileLogout    Action = "mobile_logout"
	ActionMobileLogoutAll Action = "mobile_logout_all"
	ActionTokenRefreshed  Action = "token_refreshed"
	ActionSessionsClosed  Action = "sessions_closed"
	ActionSessionRevoked  Action = "session_revoked"
	ActionTokenRevoked    Action = "token_revoked"
	ActionPasswordChanged Action = "password_changed"
	ActionStudentCreated  Action = "student_created"
	ActionStudentUpdated  Action = "student_updated"
)

var descriptions = map[Action]string{
	ActionLogin:           "Signed in",
	ActionLogout:          "Signed out",
	ActionMobileLogin:     "Signed in from the mobile app",
	ActionMobileLogout:    "Signed out from the mobile app",
	ActionMobileLogoutAll: "Signed out of every mobile device",
	ActionTokenRefreshed:  "Refreshed mobile access token",
	ActionSessionsClosed:  "Closed other browser sessions",
	ActionSessionRevoked:  "Revoked a browser session",
	ActionTokenRevoked:    "Revoked a mobile device",
	ActionPasswordChanged: "Changed password",
	ActionStudentCreated:  "Created a student",
	ActionStudentUpdated:  "Updated a student",
}

// Describe returns the human description for a, or a itself when unknown.
func Describe(a Action) string {
	if d, ok := descriptions[a]; ok {
		return d
	}
	return string(a)
}
