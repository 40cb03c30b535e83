package models

import "time"

// UploadStatus is the state of an upload session.
//
// State machine:
//
//	Reserved -> Uploading -> Committed   (terminal success)
//	Reserved|Uploading -> Expired|Failed (terminal failure)
//
// Sessions never leave a terminal state.
type UploadStatus string

const (
	UploadStatusReserved  UploadStatus = "reserved"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusCommitted UploadStatus = "committed"
	UploadStatusExpired   UploadStatus = "expired"
	UploadStatusFailed    UploadStatus = "failed"
)

// IsTerminal reports whether the status is terminal.
func (s UploadStatus) IsTerminal() bool {
	switch s {
	case UploadStatusCommitted, UploadStatusExpired, UploadStatusFailed:
		return true
	}
	return false
}

// UploadSession tracks a reserve -> upload -> commit transaction.
type UploadSession struct {
	ID                string       `gorm:"primaryKey;size:36" json:"id"`
	ProjectID         string       `gorm:"not null;size:36;index" json:"project_id"`
	FileName          string       `gorm:"not null;size:1024" json:"file_name"`
	ContentType       string       `gorm:"size:255" json:"content_type,omitempty"`
	ExpectedSizeBytes *int64       `json:"expected_size_bytes,omitempty"`
	Status            UploadStatus `gorm:"not null;size:20;index" json:"status"`
	TempStorageKey    string       `gorm:"size:1024" json:"-"`
	CommittedFileID   *string      `gorm:"size:36" json:"committed_file_id,omitempty"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	ExpiresAt         time.Time    `gorm:"not null;index" json:"expires_at"`
}

// TableName returns the table name for UploadSession.
func (UploadSession) TableName() string {
	return "upload_sessions"
}

// Expired reports whether the session is past its expiry at the given time.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
