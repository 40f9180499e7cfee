package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jacqueswww/btfd/internal/store"
)

// Service 负责持久化策略审计事件。
// 写入失败只记日志，绝不反过来中断交易周期。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化审计服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS ladder_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	strategy TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ladder_events_type ON ladder_events(event_type);
CREATE INDEX IF NOT EXISTS idx_ladder_events_strategy ON ladder_events(strategy);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		s.logger.Warn("序列化审计事件失败", zap.Error(err))
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ladder_events (event_type, strategy, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), event.Strategy, string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Warn("写入审计事件失败",
			zap.String("event_type", string(event.Type)),
			zap.String("strategy", event.Strategy),
			zap.Error(err),
		)
	}
}

// RecordError 写入一条错误事件。
func (s *Service) RecordError(ctx context.Context, strategy, message string, cause error) {
	payload := map[string]interface{}{"message": message}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	s.Record(ctx, Event{
		Type:     EventError,
		Strategy: strategy,
		Payload:  payload,
	})
}

// ListEvents 查询最近的事件，eventType 与 strategy 为空时不过滤。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, strategy string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT id, event_type, strategy, payload, created_at FROM ladder_events`
	args := make([]interface{}, 0, 3)
	where := ""
	if eventType != "" {
		where = ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	if strategy != "" {
		if where == "" {
			where = ` WHERE strategy = ?`
		} else {
			where += ` AND strategy = ?`
		}
		args = append(args, strategy)
	}
	query += where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			event     Event
			eventType string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&event.ID, &eventType, &event.Strategy, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
		}
		event.Type = EventType(eventType)
		if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
			event.Payload = map[string]interface{}{"raw": payload}
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			event.Timestamp = ts
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
