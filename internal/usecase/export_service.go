package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/config"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/export"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/tenant"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// exportFetchPageSize is the page size used when draining matching rows for
// a render. Larger than the API's page cap: this path never serializes pages
// to a client.
const exportFetchPageSize = 500

// estimatedBytesPerRecord feeds the job's size estimate shown to pollers.
const estimatedBytesPerRecord = 256

// ExportRequest is one export invocation. MaxRecords, when positive, bounds
// the export to the first N matching rows; the server-wide cap still applies
// on top of it.
type ExportRequest struct {
	Criteria    model.SearchCriteria
	Format      model.ExportFormat
	MaxRecords  int
	CallbackURL string
}

// ComplianceReportRequest parameterizes the compliance PDF.
type ComplianceReportRequest struct {
	Criteria               model.SearchCriteria `json:"criteria"`
	Title                  string               `json:"title,omitempty"`
	IncludeFailureAnalysis bool                 `json:"includeFailureAnalysis,omitempty"`
	IncludeCharts          bool                 `json:"includeCharts,omitempty"`
}

// exportTaskData is one queued asynchronous render.
type exportTaskData struct {
	Ctx         context.Context // Detached from the request; carries logger and tenant only
	JobID       string
	Criteria    model.SearchCriteria
	Format      model.ExportFormat
	RecordCount int64
	Limit       int
	CallbackURL string
}

// ExportService renders audit exports. Result sets at or under the sync
// threshold render inside the request; larger ones become jobs rendered by a
// worker pool and fetched by id until their retention window lapses.
type ExportService struct {
	logRepo    storage.CommunicationLogRepo
	jobRepo    storage.ExportJobRepo
	cfg        config.ExportConfig
	pool       *ants.PoolWithFunc
	callbacks  *resty.Client
	baseLogger *zap.Logger
}

// NewExportService creates the export service and its render pool.
func NewExportService(
	cfg config.ExportConfig,
	poolCfg config.WorkerPoolConfig,
	logRepo storage.CommunicationLogRepo,
	jobRepo storage.ExportJobRepo,
	baseLogger *zap.Logger,
) (*ExportService, error) {
	service := &ExportService{
		logRepo:    logRepo,
		jobRepo:    jobRepo,
		cfg:        cfg,
		baseLogger: baseLogger.Named("export_service"),
		callbacks: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(2 * time.Second),
	}

	pool, err := ants.NewPoolWithFunc(poolCfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(exportTaskData)
		if !ok {
			service.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		service.processExportTask(taskData)
	},
		ants.WithExpiryDuration(poolCfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(poolCfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			service.baseLogger.Error("Panic recovered in export worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create export worker pool: %w", err)
	}
	service.pool = pool

	return service, nil
}

// Export routes one export request: inline render for small result sets, a
// queued job otherwise.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*model.ExportOutcome, error) {
	if !model.IsValidFormat(req.Format) {
		return nil, fmt.Errorf("%w: unsupported export format %q", apperrors.ErrValidation, req.Format)
	}

	criteria := req.Criteria
	criteria.ApplyDefaults()
	// Exports clamp oversized page sizes instead of rejecting: pagination is
	// an implementation detail here, not part of the caller's contract.
	criteria.ClampPageSize()

	if err := scopeToCaller(ctx, &criteria.OrganizationID); err != nil {
		return nil, err
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	limit := s.cfg.MaxRecords
	if req.MaxRecords > 0 && req.MaxRecords < limit {
		limit = req.MaxRecords
	}

	count, err := s.logRepo.Count(ctx, criteria)
	if err != nil {
		observer.IncExportRequest(string(req.Format), "failed")
		return nil, err
	}
	if count > int64(limit) {
		// A caller-supplied bound truncates to the first rows; only the
		// server-wide cap rejects.
		if req.MaxRecords <= 0 {
			return nil, fmt.Errorf("%w: export matches %d records, the maximum is %d; narrow the filters",
				apperrors.ErrValidation, count, s.cfg.MaxRecords)
		}
		count = int64(limit)
	}

	if count <= int64(s.cfg.SyncThreshold) {
		file, err := s.renderAll(ctx, criteria, req.Format, limit)
		if err != nil {
			observer.IncExportRequest(string(req.Format), "failed")
			return nil, err
		}
		observer.IncExportRequest(string(req.Format), "inline")
		return &model.ExportOutcome{Inline: file}, nil
	}

	job, err := s.queueJob(ctx, criteria, req, count, limit)
	if err != nil {
		observer.IncExportRequest(string(req.Format), "failed")
		return nil, err
	}
	observer.IncExportRequest(string(req.Format), "queued")
	return &model.ExportOutcome{Job: job}, nil
}

func (s *ExportService) queueJob(ctx context.Context, criteria model.SearchCriteria, req ExportRequest, count int64, limit int) (*model.ExportJob, error) {
	requestedBy := tenant.UserIDFromContext(ctx)

	job := model.ExportJob{
		ID:             uuid.New().String(),
		OrganizationID: criteria.OrganizationID,
		RequestedBy:    requestedBy,
		Criteria:       utils.MustMarshalJSON(criteria),
		Format:         req.Format,
		Status:         model.ExportStatusProcessing,
		RecordCount:    count,
		EstimatedSize:  count * estimatedBytesPerRecord,
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		logger.FromContext(ctx).Error("Failed to create export job", zap.Error(err))
		return nil, err
	}
	logger.FromContext(ctx).Info("Queued export job",
		zap.String("job_id", job.ID),
		zap.String("format", string(job.Format)),
		zap.Int64("record_count", count),
		zap.String("estimated_size", utils.ByteCountSI(int(job.EstimatedSize))),
	)

	taskCtx := logger.WithLogger(context.WithoutCancel(ctx), logger.FromContext(ctx))
	err := s.pool.Invoke(exportTaskData{
		Ctx:         taskCtx,
		JobID:       job.ID,
		Criteria:    criteria,
		Format:      req.Format,
		RecordCount: count,
		Limit:       limit,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		failErr := s.jobRepo.MarkFailed(ctx, job.ID, "render queue unavailable")
		if failErr != nil {
			logger.FromContext(ctx).Error("Failed to mark export job failed", zap.Error(failErr))
		}
		if errors.Is(err, ants.ErrPoolOverload) {
			return nil, fmt.Errorf("%w: export queue is full, retry later", apperrors.ErrTimeout)
		}
		return nil, fmt.Errorf("failed to queue export job: %w", err)
	}

	return &job, nil
}

// processExportTask renders one queued job under the render deadline.
func (s *ExportService) processExportTask(taskData exportTaskData) {
	log := logger.FromContextOr(taskData.Ctx, s.baseLogger).With(
		zap.String("job_id", taskData.JobID),
		zap.String("format", string(taskData.Format)),
	)

	ctx, cancel := context.WithTimeout(taskData.Ctx, s.cfg.RenderTimeout)
	defer cancel()

	file, err := s.renderAll(ctx, taskData.Criteria, taskData.Format, taskData.Limit)
	if err != nil {
		log.Error("Export render failed", zap.Error(err))
		if markErr := s.jobRepo.MarkFailed(ctx, taskData.JobID, err.Error()); markErr != nil {
			log.Error("Failed to mark export job failed", zap.Error(markErr))
		}
		observer.IncExportRequest(string(taskData.Format), "failed")
		s.notifyCallback(ctx, taskData.CallbackURL, taskData.JobID, model.ExportStatusFailed, "")
		return
	}

	expiresAt := utils.Now().Add(s.cfg.Retention)
	if err := s.jobRepo.MarkCompleted(ctx, taskData.JobID, *file, taskData.RecordCount, expiresAt); err != nil {
		log.Error("Failed to mark export job completed", zap.Error(err))
		s.notifyCallback(ctx, taskData.CallbackURL, taskData.JobID, model.ExportStatusFailed, "")
		return
	}

	log.Info("Export job completed", zap.Int("bytes", len(file.Data)), zap.Time("expires_at", expiresAt))
	s.notifyCallback(ctx, taskData.CallbackURL, taskData.JobID, model.ExportStatusCompleted,
		"/api/v1/communication-export/download/"+taskData.JobID)
}

// notifyCallback POSTs the job outcome to the caller-supplied URL, if any.
// Best-effort: the job row is the source of truth either way.
func (s *ExportService) notifyCallback(ctx context.Context, url, jobID string, status model.ExportJobStatus, downloadURL string) {
	if url == "" {
		return
	}

	payload := map[string]string{
		"jobId":  jobID,
		"status": string(status),
	}
	if downloadURL != "" {
		payload["downloadUrl"] = downloadURL
	}

	resp, err := s.callbacks.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		logger.FromContext(ctx).Warn("Export callback failed",
			zap.String("job_id", jobID), zap.String("url", url), zap.Error(err))
		return
	}
	if resp.IsError() {
		logger.FromContext(ctx).Warn("Export callback rejected",
			zap.String("job_id", jobID), zap.String("url", url), zap.Int("status_code", resp.StatusCode()))
	}
}

// renderAll drains matching rows up to limit and renders the requested format.
func (s *ExportService) renderAll(ctx context.Context, criteria model.SearchCriteria, format model.ExportFormat, limit int) (*model.ExportFile, error) {
	logs, err := s.fetchAll(ctx, criteria, limit)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var data []byte
	switch format {
	case model.FormatCSV:
		data, err = export.RenderCSV(logs, criteria.IncludeContent)
	case model.FormatExcel:
		data, err = export.RenderExcel(logs, criteria.IncludeContent)
	case model.FormatPDF:
		data, err = export.RenderPDF(logs)
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q", apperrors.ErrValidation, format)
	}
	if err != nil {
		return nil, err
	}
	observer.ObserveExportRenderDuration(string(format), time.Since(start))

	return &model.ExportFile{
		Data:        data,
		ContentType: format.ContentType(),
		FileName:    exportFileName(format),
	}, nil
}

// fetchAll pages through the store until the result set is exhausted or
// limit is reached.
func (s *ExportService) fetchAll(ctx context.Context, criteria model.SearchCriteria, limit int) ([]model.CommunicationLog, error) {
	criteria.PageSize = exportFetchPageSize

	var all []model.CommunicationLog
	for page := 1; ; page++ {
		criteria.Page = page
		logs, total, err := s.logRepo.Search(ctx, criteria)
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
		if len(all) >= limit {
			all = all[:limit]
			break
		}
		if int64(len(all)) >= total || len(logs) == 0 {
			break
		}
	}
	return all, nil
}

func exportFileName(format model.ExportFormat) string {
	return fmt.Sprintf("communication-export-%s.%s", utils.Now().UTC().Format("20060102-150405"), format.Extension())
}

// GetExportStatus returns a job for polling. Jobs belonging to another
// organization are reported as absent, never as forbidden.
func (s *ExportService) GetExportStatus(ctx context.Context, jobID string) (*model.ExportJob, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetExportFile returns the rendered file for a completed, unexpired job.
func (s *ExportService) GetExportFile(ctx context.Context, jobID string) (*model.ExportFile, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeJob(ctx, job); err != nil {
		return nil, err
	}

	switch job.Status {
	case model.ExportStatusProcessing:
		return nil, fmt.Errorf("%w: export job %s is still processing", apperrors.ErrBadRequest, jobID)
	case model.ExportStatusFailed:
		return nil, fmt.Errorf("%w: export job %s failed", apperrors.ErrBadRequest, jobID)
	}

	if job.Expired(utils.Now()) || len(job.FileData) == 0 {
		return nil, fmt.Errorf("%w: export job %s has expired", apperrors.ErrExpired, jobID)
	}

	return &model.ExportFile{
		Data:        job.FileData,
		ContentType: job.ContentType,
		FileName:    job.FileName,
	}, nil
}

// authorizeJob hides other organizations' jobs from non-staff callers.
func (s *ExportService) authorizeJob(ctx context.Context, job *model.ExportJob) error {
	if tenant.IsStaff(ctx) {
		return nil
	}
	own, err := tenant.FromContext(ctx)
	if err != nil || job.OrganizationID != own {
		return fmt.Errorf("%w: export job %s", apperrors.ErrNotFound, job.ID)
	}
	return nil
}

// ComplianceReport renders the compliance PDF synchronously: a delivery
// summary over the criteria's date range plus the matching entries.
func (s *ExportService) ComplianceReport(ctx context.Context, req ComplianceReportRequest) (*model.ExportFile, error) {
	criteria := req.Criteria
	criteria.ApplyDefaults()
	criteria.ClampPageSize()

	if err := scopeToCaller(ctx, &criteria.OrganizationID); err != nil {
		return nil, err
	}
	if err := criteria.Validate(); err != nil {
		return nil, err
	}

	// The summary needs a bounded window; default to the trailing 30 days.
	from, to := criteria.DateFrom, criteria.DateTo
	if to == nil {
		now := utils.Now()
		to = &now
	}
	if from == nil {
		start := to.Add(-30 * 24 * time.Hour)
		from = &start
	}

	summary, err := s.logRepo.Summary(ctx, criteria.OrganizationID, *from, *to)
	if err != nil {
		return nil, err
	}

	// The report body lists at most a sync-sized sample of matching entries.
	logs, err := s.fetchAll(ctx, criteria, s.cfg.SyncThreshold)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := export.RenderCompliancePDF(logs, summary, export.ComplianceOptions{
		Title:                  req.Title,
		IncludeFailureAnalysis: req.IncludeFailureAnalysis,
		IncludeCharts:          req.IncludeCharts,
	})
	if err != nil {
		return nil, err
	}
	observer.ObserveExportRenderDuration("compliance_pdf", time.Since(start))

	return &model.ExportFile{
		Data:        data,
		ContentType: model.FormatPDF.ContentType(),
		FileName:    fmt.Sprintf("compliance-report-%s.pdf", utils.Now().UTC().Format("20060102-150405")),
	}, nil
}

// CleanupExpired drops file payloads past their retention window. Meant to
// run on a timer from main.
func (s *ExportService) CleanupExpired(ctx context.Context) {
	purged, err := s.jobRepo.DeleteExpired(ctx, utils.Now())
	if err != nil {
		s.baseLogger.Error("Failed to purge expired export files", zap.Error(err))
		return
	}
	if purged > 0 {
		s.baseLogger.Info("Purged expired export files", zap.Int64("count", purged))
	}
}

// Stop releases the render pool.
func (s *ExportService) Stop() {
	if s.pool != nil {
		s.baseLogger.Info("Releasing export worker pool")
		s.pool.Release()
	}
}
