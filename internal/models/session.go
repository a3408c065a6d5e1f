package models

import (
	"time"

	"github.com/BTreeMap/LeadPipe/internal/lang"
)

// DefaultHistoryLimit caps the number of history entries kept on a session.
const DefaultHistoryLimit = 30

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tristate records an answer that may not have been given yet.
type Tristate string

const (
	Unknown Tristate = ""
	Yes     Tristate = "yes"
	No      Tristate = "no"
)

// TristateOf converts a boolean answer.
func TristateOf(b bool) Tristate {
	if b {
		return Yes
	}
	return No
}

// HistoryEntry is one message in a session transcript.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionData holds the fields collected during qualification.
type SessionData struct {
	Language          lang.Code         `json:"language"`
	FullName          string            `json:"fullName,omitempty"`
	City              string            `json:"city,omitempty"`
	LoanAmount        int64             `json:"loanAmount,omitempty"`
	Purpose           string            `json:"purpose,omitempty"`
	HasProperty       Tristate          `json:"hasProperty,omitempty"`
	PropertyDetails   string            `json:"propertyDetails,omitempty"`
	RiskInfo          string            `json:"riskInfo,omitempty"`
	PreferredCallTime string            `json:"preferredCallTime,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
	History           []HistoryEntry    `json:"history"`
}

// NewSessionData returns empty data for a fresh or reset session.
func NewSessionData(language lang.Code) SessionData {
	return SessionData{
		Language: lang.Normalize(language),
		History:  []HistoryEntry{},
	}
}

// AppendHistory adds an entry and evicts the oldest entries beyond limit.
// A non-positive limit uses DefaultHistoryLimit.
func (d *SessionData) AppendHistory(role, content string, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	d.History = append(d.History, HistoryEntry{Role: role, Content: content})
	if over := len(d.History) - limit; over > 0 {
		trimmed := make([]HistoryEntry, limit)
		copy(trimmed, d.History[over:])
		d.History = trimmed
	}
}

// Clone returns a deep copy of d.
func (d SessionData) Clone() SessionData {
	out := d
	if d.History != nil {
		out.History = make([]HistoryEntry, len(d.History))
		copy(out.History, d.History)
	}
	if d.Extra != nil {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Session is the conversation state for one phone number.
type Session struct {
	PhoneNumber string      `json:"phoneNumber"`
	Step        Step        `json:"step"`
	Data        SessionData `json:"data"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastActive  time.Time   `json:"lastActive"`
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	out := s
	out.Data = s.Data.Clone()
	return out
}
