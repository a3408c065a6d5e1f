package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/prompts"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/google/uuid"
)

// LeadStore is the slice of the durable store the finalizer needs.
type LeadStore interface {
	GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	CreateLead(ctx context.Context, lead models.Lead) error
}

// FinalizerOpts configures a LeadFinalizer.
type FinalizerOpts struct {
	AdminPhone   string
	StoreTimeout time.Duration
	SendTimeout  time.Duration
	Now          func() time.Time
	NewID        func() string
}

// FinalizerOption configures a LeadFinalizer.
type FinalizerOption func(*FinalizerOpts)

// WithAdminPhone sets the number that receives a summary of every new lead.
func WithAdminPhone(phone string) FinalizerOption {
	return func(o *FinalizerOpts) {
		o.AdminPhone = phone
	}
}

// WithFinalizerClock overrides time.Now, for tests.
func WithFinalizerClock(now func() time.Time) FinalizerOption {
	return func(o *FinalizerOpts) {
		o.Now = now
	}
}

// WithLeadIDs overrides lead ID generation, for tests.
func WithLeadIDs(newID func() string) FinalizerOption {
	return func(o *FinalizerOpts) {
		o.NewID = newID
	}
}

// LeadFinalizer turns a completed session into a lead record, at most once per phone number.
type LeadFinalizer struct {
	leads  LeadStore
	sender Sender
	opts   FinalizerOpts
}

var _ Finalizer = (*LeadFinalizer)(nil)

// NewLeadFinalizer creates a finalizer. leads may be nil, in which case lead persistence
// is skipped and only logged.
func NewLeadFinalizer(leads LeadStore, sender Sender, opts ...FinalizerOption) *LeadFinalizer {
	cfg := FinalizerOpts{
		StoreTimeout: 5 * time.Second,
		SendTimeout:  DefaultSendTimeout,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LeadFinalizer{leads: leads, sender: sender, opts: cfg}
}

// Finalize persists a lead for sess unless one already exists. It never fails the caller:
// duplicates and store errors are logged.
func (f *LeadFinalizer) Finalize(ctx context.Context, sess models.Session) {
	if f.leads == nil {
		slog.Warn("LeadFinalizer.Finalize: no durable store, lead kept in session only", "phone", sess.PhoneNumber)
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.StoreTimeout)
	defer cancel()

	existing, err := f.leads.GetLeadByPhone(sctx, sess.PhoneNumber)
	switch {
	case err == nil && existing != nil:
		slog.Warn("LeadFinalizer.Finalize: duplicate lead detected, skipping", "phone", sess.PhoneNumber, "lead_id", existing.ID)
		return
	case err != nil && !errors.Is(err, store.ErrNotFound):
		slog.Warn("LeadFinalizer.Finalize: lead lookup failed, skipping lead persistence", "phone", sess.PhoneNumber, "error", err)
		return
	}

	lead := BuildLead(sess, f.opts.NewID(), f.opts.Now())
	if err := f.leads.CreateLead(sctx, lead); err != nil {
		if errors.Is(err, store.ErrDuplicateLead) {
			slog.Warn("LeadFinalizer.Finalize: duplicate lead detected on insert, skipping", "phone", sess.PhoneNumber)
		} else {
			slog.Warn("LeadFinalizer.Finalize: failed to save lead", "phone", sess.PhoneNumber, "error", err)
		}
		return
	}
	slog.Info("LeadFinalizer.Finalize: lead saved", "phone", sess.PhoneNumber, "lead_id", lead.ID)

	if f.opts.AdminPhone == "" || f.sender == nil {
		return
	}
	nctx, ncancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.SendTimeout)
	defer ncancel()
	if err := f.sender.SendMessage(nctx, f.opts.AdminPhone, AdminSummary(lead)); err != nil {
		slog.Warn("LeadFinalizer.Finalize: admin notification failed", "phone", sess.PhoneNumber, "error", err)
	}
}

// BuildLead assembles the lead record for a session.
func BuildLead(sess models.Session, id string, now time.Time) models.Lead {
	d := sess.Data
	name := d.FullName
	if name == "" {
		name = "N/A"
	}
	risk := d.RiskInfo
	if d.Notes != "" {
		risk += "\n[Notes]: " + d.Notes
	}
	return models.Lead{
		ID:                id,
		PhoneNumber:       sess.PhoneNumber,
		FullName:          name,
		Language:          string(d.Language),
		LoanAmount:        d.LoanAmount,
		City:              d.City,
		Purpose:           d.Purpose,
		HasProperty:       d.HasProperty,
		PropertyDetails:   d.PropertyDetails,
		RiskInfo:          risk,
		PreferredCallTime: d.PreferredCallTime,
		Status:            models.LeadStatusNew,
		CreatedAt:         now,
	}
}

// AdminSummary formats the WhatsApp notification sent to the admin for a new lead.
func AdminSummary(l models.Lead) string {
	var b strings.Builder
	b.WriteString("*New Lead Created!* 🚀\n")
	fmt.Fprintf(&b, "Name: %s\n", l.FullName)
	fmt.Fprintf(&b, "Phone: %s\n", l.PhoneNumber)
	fmt.Fprintf(&b, "Amount: %s\n", prompts.FormatAmount(l.LoanAmount))
	fmt.Fprintf(&b, "City: %s\n", l.City)
	fmt.Fprintf(&b, "Purpose: %s\n", l.Purpose)
	fmt.Fprintf(&b, "Property: %s\n", orDash(string(l.HasProperty)))
	fmt.Fprintf(&b, "Details: %s\n", orDash(l.PropertyDetails))
	fmt.Fprintf(&b, "Risk: %s\n", orDash(l.RiskInfo))
	if l.PreferredCallTime != "" {
		fmt.Fprintf(&b, "Call time: %s\n", l.PreferredCallTime)
	}
	fmt.Fprintf(&b, "Language: %s", l.Language)
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
