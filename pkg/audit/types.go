// Package audit records report access events. Writes are best effort: a
// failed append is logged by the caller and never blocks an embed.
package audit

import "time"

// Action identifies what the user did with a report.
type Action string

const (
	ActionView  Action = "view"
	ActionEmbed Action = "embed_token_generated"
)

// Entry is one access log row.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ReportID  int64     `json:"report_id"`
	Report    string    `json:"report_name,omitempty"`
	Action    Action    `json:"action"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a listing. Zero values are ignored.
type Filter struct {
	UserID   int64
	ReportID int64
	Limit    int
	Offset   int
}
