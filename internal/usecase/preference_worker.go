package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/apperrors"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/config"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/model"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

// PreferenceTaskData holds one queued opt-out (or opt-in) mutation. Consent
// changes run off the webhook path: the provider gets its ack immediately and
// the preference write happens here.
type PreferenceTaskData struct {
	Ctx       context.Context // Context derived for the task, NOT the original request context
	Channel   model.CommunicationType
	Recipient string
	Enabled   bool
}

// IPreferenceWorker defines the interface for the preference worker pool.
type IPreferenceWorker interface {
	SubmitTask(taskData PreferenceTaskData) error
	Stop()
}

// PreferenceWorker manages the worker pool applying consent mutations.
type PreferenceWorker struct {
	pool       *ants.PoolWithFunc
	prefRepo   storage.PreferenceRepo
	cfg        config.WorkerPoolConfig
	baseLogger *zap.Logger
}

// Ensure PreferenceWorker implements IPreferenceWorker
var _ IPreferenceWorker = (*PreferenceWorker)(nil)

// NewPreferenceWorker creates and initializes a new preference worker pool.
func NewPreferenceWorker(
	cfg config.WorkerPoolConfig,
	prefRepo storage.PreferenceRepo,
	baseLogger *zap.Logger,
) (*PreferenceWorker, error) {
	worker := &PreferenceWorker{
		prefRepo:   prefRepo,
		cfg:        cfg,
		baseLogger: baseLogger.Named("preference_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(PreferenceTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processPreferenceTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in preference worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create preference worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Preference worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask queues one consent mutation.
func (w *PreferenceWorker) SubmitTask(taskData PreferenceTaskData) error {
	start := time.Now()
	observer.SetPreferenceQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(taskData)

	if err != nil {
		w.baseLogger.Warn("Failed to submit preference task to pool",
			zap.String("channel", string(taskData.Channel)),
			zap.Duration("submit_duration", time.Since(start)),
			zap.Error(err),
		)
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("preference pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke preference task: %w", err)
	}

	return nil
}

// processPreferenceTask applies one consent mutation. When no preference row
// exists yet, one is created so the opt-out sticks for future sends.
func (w *PreferenceWorker) processPreferenceTask(taskData PreferenceTaskData) {
	log := logger.FromContextOr(taskData.Ctx, w.baseLogger).With(
		zap.String("channel", string(taskData.Channel)),
		zap.Bool("enabled", taskData.Enabled),
	)

	recipient := strings.TrimSpace(taskData.Recipient)
	if recipient == "" {
		log.Warn("Skipping preference task: empty recipient")
		return
	}

	var err error
	switch taskData.Channel {
	case model.TypeSMS:
		err = w.prefRepo.SetSMSEnabled(taskData.Ctx, recipient, taskData.Enabled)
		if errors.Is(err, apperrors.ErrNotFound) {
			err = w.prefRepo.Save(taskData.Ctx, model.NotificationPreference{
				Phone:      recipient,
				SMSEnabled: taskData.Enabled,
				// Email consent is untouched by an SMS keyword.
				EmailEnabled: true,
			})
		}
	case model.TypeEmail:
		err = w.prefRepo.SetEmailEnabled(taskData.Ctx, recipient, taskData.Enabled)
		if errors.Is(err, apperrors.ErrNotFound) {
			err = w.prefRepo.Save(taskData.Ctx, model.NotificationPreference{
				Email:        recipient,
				SMSEnabled:   true,
				EmailEnabled: taskData.Enabled,
			})
		}
	default:
		log.Warn("Skipping preference task: unsupported channel")
		return
	}

	if err != nil {
		log.Error("Failed to apply preference mutation", zap.Error(err))
		return
	}

	if !taskData.Enabled {
		observer.IncOptOut(string(taskData.Channel))
	}
	log.Info("Applied preference mutation")
}

// Stop gracefully shuts down the worker pool.
func (w *PreferenceWorker) Stop() {
	if w.pool != nil {
		w.baseLogger.Info("Releasing preference worker pool")
		start := time.Now()
		w.pool.Release()
		w.baseLogger.Info("Preference worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
