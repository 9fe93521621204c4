package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ExportFormat identifies the rendered file type of an export.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatExcel ExportFormat = "excel"
	FormatPDF   ExportFormat = "pdf"
)

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension (without dot) for the format.
func (f ExportFormat) Extension() string {
	switch f {
	case FormatExcel:
		return "xlsx"
	case FormatPDF:
		return "pdf"
	default:
		return "csv"
	}
}

// IsValidFormat reports whether f is a supported export format.
func IsValidFormat(f ExportFormat) bool {
	switch f {
	case FormatCSV, FormatExcel, FormatPDF:
		return true
	}
	return false
}

// ExportJobStatus is the lifecycle state of an asynchronous export.
type ExportJobStatus string

const (
	ExportStatusProcessing ExportJobStatus = "processing"
	ExportStatusCompleted  ExportJobStatus = "completed"
	ExportStatusFailed     ExportJobStatus = "failed"
)

// ExportJob tracks one asynchronous export request. The rendered file is
// kept on the row until ExpiresAt, after which downloads return not-found.
// A job transitions processing -> completed|failed exactly once.
type ExportJob struct {
	ID             string          `json:"job_id" gorm:"column:id;primaryKey"`
	OrganizationID string          `json:"organization_id,omitempty" gorm:"column:organization_id;index"`
	RequestedBy    string          `json:"requested_by,omitempty" gorm:"column:requested_by"`
	Criteria       datatypes.JSON  `json:"criteria,omitempty" gorm:"type:jsonb;column:criteria"`
	Format         ExportFormat    `json:"format" gorm:"column:format"`
	Status         ExportJobStatus `json:"status" gorm:"column:status;index"`
	RecordCount    int64           `json:"record_count" gorm:"column:record_count"`
	EstimatedSize  int64           `json:"estimated_size_bytes" gorm:"column:estimated_size_bytes"`
	FileName       string          `json:"file_name,omitempty" gorm:"column:file_name"`
	ContentType    string          `json:"content_type,omitempty" gorm:"column:content_type"`
	FileData       []byte          `json:"-" gorm:"column:file_data"`
	DownloadURL    string          `json:"download_url,omitempty" gorm:"column:download_url"`
	ErrorMessage   *string         `json:"error_message,omitempty" gorm:"column:error_message"`
	CallbackURL    string          `json:"-" gorm:"column:callback_url"`
	CreatedAt      time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" gorm:"column:completed_at"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty" gorm:"column:expires_at"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (ExportJob) TableName(namer schema.Namer) string {
	return namer.TableName("export_jobs")
}

// Expired reports whether the job's file has passed its retention window.
func (j *ExportJob) Expired(now time.Time) bool {
	return j.ExpiresAt != nil && now.After(*j.ExpiresAt)
}

// ExportOutcome is the result of an export request: exactly one of Inline
// or Job is set. Small result sets render inline in the request cycle;
// large ones are deferred to a job the caller polls.
type ExportOutcome struct {
	Inline *ExportFile
	Job    *ExportJob
}

// ExportFile is a rendered export ready to hand to the transport layer.
type ExportFile struct {
	Data        []byte
	ContentType string
	FileName    string
}
