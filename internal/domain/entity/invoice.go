package entity

import "time"

// ApprovalStatus is the state of a single approval sub-record
type ApprovalStatus string

// IsValid reports whether s is one of the known approval statuses
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalInfoRequested:
		return true
	default:
		return false
	}
}

// ApprovalRecord captures one approval gate on an invoice
type ApprovalRecord struct {
	Status         ApprovalStatus `json:"status"`
	ApprovedBy     string         `json:"approvedBy,omitempty"`
	ApprovedByRole string         `json:"approvedByRole,omitempty"`
	ApprovedAt     *time.Time     `json:"approvedAt,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// PendingRecord returns an approval record that has not been acted on
func PendingRecord() ApprovalRecord {
	return ApprovalRecord{Status: ApprovalPending}
}

// Invoice is the document moving through the approval pipeline.
// Status is written only by the approval orchestrator.
type Invoice struct {
	ID                string         `json:"id"`
	SubmittedByUserID string         `json:"submittedByUserId"`
	VendorID          *string        `json:"vendorId,omitempty"`
	Project           *string        `json:"project,omitempty"`
	AssignedPM        *string        `json:"assignedPM,omitempty"`
	Status            string         `json:"status"`
	PMApproval        ApprovalRecord `json:"pmApproval"`
	AdminApproval     ApprovalRecord `json:"adminApproval"`
	HILReview         ApprovalRecord `json:"hilReview"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	InvoiceNumber     string         `json:"invoiceNumber"`
	Date              time.Time      `json:"date"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// ProjectKey returns the project key or "" when the invoice has none
func (i *Invoice) ProjectKey() string {
	if i == nil || i.Project == nil {
		return ""
	}
	return *i.Project
}

// Clone returns a deep copy safe to hand to other goroutines
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.VendorID = cloneString(i.VendorID)
	c.Project = cloneString(i.Project)
	c.AssignedPM = cloneString(i.AssignedPM)
	c.PMApproval = i.PMApproval.clone()
	c.AdminApproval = i.AdminApproval.clone()
	c.HILReview = i.HILReview.clone()
	return &c
}

// InvoicePatch carries a partial update; nil fields are left untouched
type InvoicePatch struct {
	Status        *string
	PMApproval    *ApprovalRecord
	AdminApproval *ApprovalRecord
	HILReview     *ApprovalRecord
	AssignedPM    *string
}

// IsEmpty reports whether the patch changes nothing
func (p InvoicePatch) IsEmpty() bool {
	return p.Status == nil && p.PMApproval == nil && p.AdminApproval == nil &&
		p.HILReview == nil && p.AssignedPM == nil
}

// Apply merges the patch into a copy of inv
func (p InvoicePatch) Apply(inv *Invoice) *Invoice {
	out := inv.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.PMApproval != nil {
		out.PMApproval = p.PMApproval.clone()
	}
	if p.AdminApproval != nil {
		out.AdminApproval = p.AdminApproval.clone()
	}
	if p.HILReview != nil {
		out.HILReview = p.HILReview.clone()
	}
	if p.AssignedPM != nil {
		out.AssignedPM = cloneString(p.AssignedPM)
	}
	return out
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	Status string
	// Visibility restricts results to invoices submitted by SubmittedBy or in one of Projects.
	// A nil Visibility means unrestricted.
	Visibility *InvoiceVisibility
	Limit      int
	Offset     int
}

// InvoiceVisibility describes what a non-privileged reader may see
type InvoiceVisibility struct {
	SubmittedBy string
	Projects    []string
}

func (r ApprovalRecord) clone() ApprovalRecord {
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		r.ApprovedAt = &t
	}
	return r
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
