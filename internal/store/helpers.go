package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func encodeSessionData(d models.SessionData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode session data: %w", err)
	}
	return string(b), nil
}

func decodeSessionData(raw []byte) (models.SessionData, error) {
	var d models.SessionData
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("failed to decode session data: %w", err)
	}
	if d.History == nil {
		d.History = []models.HistoryEntry{}
	}
	return d, nil
}

const sessionColumns = `phone_number, step, data, created_at, last_active`

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var step string
	var data []byte
	if err := row.Scan(&s.PhoneNumber, &step, &data, &s.CreatedAt, &s.LastActive); err != nil {
		return nil, err
	}
	s.Step = models.Step(step)
	d, err := decodeSessionData(data)
	if err != nil {
		return nil, err
	}
	s.Data = d
	return &s, nil
}

const leadColumns = `id, phone_number, full_name, language, loan_amount, city, purpose, has_property,
	property_details, risk_info, preferred_call_time, status, created_at`

func scanLead(row rowScanner) (*models.Lead, error) {
	var l models.Lead
	var city, purpose, hasProperty, details, risk, callTime sql.NullString
	var status string
	err := row.Scan(&l.ID, &l.PhoneNumber, &l.FullName, &l.Language, &l.LoanAmount, &city, &purpose,
		&hasProperty, &details, &risk, &callTime, &status, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.City = city.String
	l.Purpose = purpose.String
	l.HasProperty = models.Tristate(hasProperty.String)
	l.PropertyDetails = details.String
	l.RiskInfo = risk.String
	l.PreferredCallTime = callTime.String
	l.Status = models.LeadStatus(status)
	return &l, nil
}

func leadArgs(l models.Lead) []interface{} {
	return []interface{}{
		l.ID, l.PhoneNumber, l.FullName, l.Language, l.LoanAmount, nilIfEmpty(l.City), nilIfEmpty(l.Purpose),
		nilIfEmpty(string(l.HasProperty)), nilIfEmpty(l.PropertyDetails), nilIfEmpty(l.RiskInfo),
		nilIfEmpty(l.PreferredCallTime), string(l.Status), l.CreatedAt,
	}
}

func scanLeads(rows *sql.Rows) ([]models.Lead, error) {
	defer rows.Close()
	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}
