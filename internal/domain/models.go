// Package domain defines the persistence models for projects, RFIs, their
// responses and the email ledger. These types are mapped with GORM and form
// the core data layer of the RFI tracker.
//
// Rows are hard-deleted: cascading foreign keys (project -> rfi -> response /
// email log) only fire on real DELETE statements.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Project is the owning construction project. Projects are managed by an
// external system; the tracker only relies on the identifier, the short code
// used in RFI numbers, and the member email addresses.
type Project struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Code      string    `json:"code"       gorm:"type:varchar(32);not null;uniqueIndex:ux_project_code"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string { return "projects" }

// ProjectMember links a known participant (user id + email) to a project.
// Inbound replies are attributed to a member by matching the sender address.
type ProjectMember struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ProjectID string    `json:"project_id" gorm:"type:char(36);not null;uniqueIndex:ux_member_project_email,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null"`
	Email     string    `json:"email"      gorm:"type:varchar(320);not null;uniqueIndex:ux_member_project_email,priority:2"`
	Name      string    `json:"name"       gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`

	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ProjectMember.
func (ProjectMember) TableName() string { return "project_members" }

// RFI is a Request for Information raised on a project and dispatched by
// email to an external recipient.
//
// Fields:
//   - Number: RFI-{project code}-{sequence}, unique across all projects.
//   - Status: lifecycle state; SentAt, RespondedAt and ClosedAt are stamped by
//     the transitions into waiting_response, answered and closed respectively.
//   - ToEmail: recipient, stored lower-cased.
//   - EmailThreadID / EmailMessageID: ids returned by the mail transport for
//     the outbound message.
//   - OutboundHeaderID: the RFC 5322 Message-ID header of the outbound
//     message, without angle brackets.
type RFI struct {
	ID               string                      `json:"id"                  gorm:"type:char(36);primaryKey"`
	ProjectID        string                      `json:"project_id"          gorm:"type:char(36);not null;index:idx_project_rfis,priority:1"`
	Number           string                      `json:"rfi_number"          gorm:"column:rfi_number;type:varchar(64);not null;uniqueIndex:ux_rfi_number"`
	Sequence         int                         `json:"sequence"            gorm:"not null;index"`
	Subject          string                      `json:"subject"             gorm:"type:varchar(255);not null"`
	Question         string                      `json:"question"            gorm:"type:text;not null"`
	Status           Status                      `json:"status"              gorm:"type:varchar(32);not null;default:'draft';index;check:status IN ('draft','open','waiting_response','answered','closed','cancelled')"`
	Priority         Priority                    `json:"priority"            gorm:"type:varchar(16);not null;default:'medium';check:priority IN ('low','medium','high','urgent')"`
	Category         Category                    `json:"category"            gorm:"type:varchar(32);not null;default:'other'"`
	ToEmail          string                      `json:"to_email"            gorm:"column:to_email;type:varchar(320);not null"`
	CCEmails         datatypes.JSONSlice[string] `json:"cc_emails"           gorm:"column:cc_emails"`
	DueDate          *time.Time                  `json:"due_date,omitempty"`
	CreatedBy        string                      `json:"created_by,omitempty" gorm:"type:varchar(64)"`
	EmailThreadID    string                      `json:"email_thread_id,omitempty"  gorm:"type:varchar(255);index"`
	EmailMessageID   string                      `json:"email_message_id,omitempty" gorm:"type:varchar(255);index"`
	OutboundHeaderID string                      `json:"-"                   gorm:"type:varchar(255);index"`
	SentAt           *time.Time                  `json:"sent_at,omitempty"`
	RespondedAt      *time.Time                  `json:"responded_at,omitempty"`
	ClosedAt         *time.Time                  `json:"closed_at,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"          gorm:"index:idx_project_rfis,priority:2"`
	UpdatedAt        time.Time                   `json:"updated_at"`

	// Project owns the RFI; RFIs are cascade-deleted with their project.
	Project Project `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RFI.
func (RFI) TableName() string { return "rfis" }

// AttachmentMeta describes an attachment of an inbound reply. The bytes are
// never stored; AttachmentID is the transport's opaque reference.
type AttachmentMeta struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	AttachmentID string `json:"attachment_id"`
}

// RFIResponse is a reply to an RFI received by email. At most one response
// exists per inbound transport message id.
type RFIResponse struct {
	ID             string                              `json:"id"               gorm:"type:char(36);primaryKey"`
	RFIID          string                              `json:"rfi_id"           gorm:"column:rfi_id;type:char(36);not null;index:idx_rfi_responses,priority:1"`
	ResponseText   string                              `json:"response_text"    gorm:"type:text;not null"`
	ResponderID    *string                             `json:"responder_id,omitempty" gorm:"type:varchar(64)"`
	FromEmail      string                              `json:"from_email"       gorm:"column:from_email;type:varchar(320)"`
	EmailMessageID string                              `json:"email_message_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_response_message"`
	Attachments    datatypes.JSONSlice[AttachmentMeta] `json:"attachments"`
	CreatedAt      time.Time                           `json:"created_at"       gorm:"index:idx_rfi_responses,priority:2"`

	RFI RFI `json:"-" gorm:"foreignKey:RFIID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RFIResponse.
func (RFIResponse) TableName() string { return "rfi_responses" }

// RFIEmailLog is an immutable ledger row for every outbound, inbound and
// unmatched email event. RFIID is nil for unmatched (orphan) rows.
type RFIEmailLog struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	RFIID     *string        `json:"rfi_id"     gorm:"column:rfi_id;type:char(36);index"`
	EventType EmailEvent     `json:"event_type" gorm:"type:varchar(16);not null;index;check:event_type IN ('sent','received','unmatched')"`
	MessageID string         `json:"message_id" gorm:"type:varchar(255);index"`
	ThreadID  string         `json:"thread_id"  gorm:"type:varchar(255)"`
	FromEmail string         `json:"from_email" gorm:"column:from_email;type:varchar(320)"`
	ToEmail   string         `json:"to_email"   gorm:"column:to_email;type:text"`
	Subject   string         `json:"subject"    gorm:"type:varchar(998)"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"index"`

	RFI *RFI `json:"-" gorm:"foreignKey:RFIID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RFIEmailLog.
func (RFIEmailLog) TableName() string { return "rfi_email_logs" }
