package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/friendhub/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorded actions.
const (
	ActionSignup        = "signup"
	ActionSignin        = "signin"
	ActionSigninFailed  = "signin_failed"
	ActionFriendRequest = "friend_request"
	ActionFriendAccept  = "friend_accept"
	ActionFriendDecline = "friend_decline"
	ActionProfileEdit   = "profile_edit"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
	maxRecent     = 500
)

// Entry holds one audit event to be logged.
type Entry struct {
	AccountID *int64
	TargetID  *int64
	Action    string
	Detail    any
}

// Recorder is what the workflows depend on.
type Recorder interface {
	Log(ctx context.Context, entry Entry)
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Log(context.Context, Entry) {}

type metaKey struct{}

type requestMeta struct {
	traceID string
	ip      string
}

// WithRequest attaches the trace id and client IP that Log stamps on entries.
func WithRequest(ctx context.Context, traceID, ip string) context.Context {
	return context.WithValue(ctx, metaKey{}, requestMeta{traceID: traceID, ip: ip})
}

// RequestMeta returns what WithRequest attached, or empty strings.
func RequestMeta(ctx context.Context) (traceID, ip string) {
	m, _ := ctx.Value(metaKey{}).(requestMeta)
	return m.traceID, m.ip
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger

	// pending counts entries queued or in a batch not yet written.
	pending atomic.Int64
	// writeCtx is cancelled by Stop.
	writeCtx    context.Context
	cancelWrite context.CancelFunc
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	writeCtx, cancelWrite := context.WithCancel(context.Background())
	svc := &Service{
		db:          db,
		ch:          make(chan *model.AuditLog, queueSize),
		stopCh:      make(chan struct{}),
		logger:      logger,
		writeCtx:    writeCtx,
		cancelWrite: cancelWrite,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks.
func (svc *Service) Log(ctx context.Context, entry Entry) {
	traceID, ip := RequestMeta(ctx)
	record := &model.AuditLog{
		TraceID:   traceID,
		AccountID: entry.AccountID,
		TargetID:  entry.TargetID,
		Action:    entry.Action,
		IP:        ip,
	}
	if entry.Detail != nil {
		if b, err := json.Marshal(entry.Detail); err == nil {
			record.Detail = datatypes.JSON(b)
		} else {
			svc.logger.Warn("audit detail not serializable",
				zap.String("action", entry.Action), zap.Error(err))
		}
	}

	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit service stopped, dropping entry",
			zap.String("action", entry.Action))
		return
	default:
	}

	svc.pending.Add(1)
	select {
	case svc.ch <- record:
	default:
		svc.pending.Add(-1)
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker. It returns once
// the worker has finished or ctx is done, whichever comes first; in the
// latter case the in-flight write is cancelled and unwritten entries are lost.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		svc.cancelWrite()
	case <-ctx.Done():
		svc.cancelWrite()
		svc.logger.Warn("audit flush abandoned",
			zap.Int64("dropped", svc.pending.Load()), zap.Error(ctx.Err()))
	}
}

// Recent returns up to limit persisted entries, newest first.
func (svc *Service) Recent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	var logs []model.AuditLog
	err := svc.db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit recent: %w", err)
	}
	return logs, nil
}

// Purge deletes entries created before now-olderThan and reports how many went.
func (svc *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := svc.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.WithContext(svc.writeCtx).Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed",
				zap.Int("entries", len(batch)), zap.Error(err))
		}
		svc.pending.Add(-int64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
