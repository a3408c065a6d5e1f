package models

import "time"

// LeadStatus tracks a lead through human follow-up.
type LeadStatus string

// LeadStatusNew is assigned when a lead is first created.
const LeadStatusNew LeadStatus = "new"

// Lead is a finalized qualification record, created at most once per phone number.
type Lead struct {
	ID                string     `json:"id"`
	PhoneNumber       string     `json:"phoneNumber"`
	FullName          string     `json:"fullName"`
	Language          string     `json:"language"`
	LoanAmount        int64      `json:"loanAmount"`
	City              string     `json:"city"`
	Purpose           string     `json:"purpose"`
	HasProperty       Tristate   `json:"hasProperty"`
	PropertyDetails   string     `json:"propertyDetails"`
	RiskInfo          string     `json:"riskInfo"`
	PreferredCallTime string     `json:"preferredCallTime"`
	Status            LeadStatus `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
}
