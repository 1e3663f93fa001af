// Package audit keeps a durable trail of committed relationship transitions.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type traceKey struct{}

// WithTraceID attaches a request trace id that Record copies into the log.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace id attached by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

// Entry is one audit event.
type Entry struct {
	TraceID    string
	Transition hook.Transition
	Detail     interface{}
}

// Config tunes the writer. Zero fields take the defaults.
type Config struct {
	Buffer     int           // queued entries before Log starts dropping; 1024
	BatchSize  int           // rows per INSERT; 100
	FlushEvery time.Duration // max age of a partial batch; 2s
}

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 2 * time.Second
	}
	return c
}

// Service writes entries in batches from a background goroutine.
type Service struct {
	db       *gorm.DB
	cfg      Config
	ch       chan *model.AuditLog
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	logger   *zap.Logger
}

// New starts a Service with the default Config.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return NewWithConfig(db, Config{}, logger)
}

func NewWithConfig(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	svc := &Service{
		db:     db,
		cfg:    cfg,
		ch:     make(chan *model.AuditLog, cfg.Buffer),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Named("audit"),
	}
	go svc.worker()
	return svc
}

// Record logs a committed transition under the trace id carried by ctx.
func (svc *Service) Record(ctx context.Context, t hook.Transition) {
	svc.Log(Entry{TraceID: TraceID(ctx), Transition: t})
}

// Log enqueues an entry. When the queue is full the entry is dropped.
func (svc *Service) Log(entry Entry) {
	t := entry.Transition
	row := &model.AuditLog{
		TraceID:    entry.TraceID,
		ActorUUID:  t.Actor.String(),
		ActorName:  t.ActorName,
		TargetUUID: t.Target.String(),
		TargetName: t.TargetName,
		Action:     string(t.Kind),
	}
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			svc.logger.Warn("detail not serializable", zap.String("action", row.Action), zap.Error(err))
		} else {
			row.Detail = datatypes.JSON(b)
		}
	}
	select {
	case svc.ch <- row:
	default:
		svc.logger.Warn("queue full, dropping entry",
			zap.String("action", row.Action),
			zap.String("actor", row.ActorUUID))
	}
}

// History returns the newest entries where player is actor or target.
func (svc *Service) History(ctx context.Context, player uuid.UUID, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	id := player.String()
	var rows []model.AuditLog
	err := svc.db.WithContext(ctx).
		Where("actor_uuid = ? OR target_uuid = ?", id, id).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, errors.Wrap(err, "audit: history")
}

// Stop flushes queued entries and ends the worker. It returns early, with
// the worker still flushing, if ctx is done first. A nil ctx waits.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	if ctx == nil {
		<-svc.done
		return
	}
	select {
	case <-svc.done:
	case <-ctx.Done():
		svc.logger.Warn("stop timed out; entries may be lost")
	}
}

func (svc *Service) write(batch []*model.AuditLog) {
	if len(batch) == 0 {
		return
	}
	if err := svc.db.CreateInBatches(batch, svc.cfg.BatchSize).Error; err != nil {
		svc.logger.Error("batch write failed", zap.Int("rows", len(batch)), zap.Error(err))
	}
}

func (svc *Service) worker() {
	defer close(svc.done)
	ticker := time.NewTicker(svc.cfg.FlushEvery)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.cfg.BatchSize)
	flush := func() {
		svc.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case row := <-svc.ch:
			batch = append(batch, row)
			if len(batch) >= svc.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case row := <-svc.ch:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}
