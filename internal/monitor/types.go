package monitor

import "time"

// EventType 标识审计事件类别。
type EventType string

const (
	// EventCycle 记录一次完整的阶梯重建。
	EventCycle EventType = "cycle"
	// EventPlacement 记录一笔成功提交的限价买单。
	EventPlacement EventType = "placement"
	// EventCancel 记录一次撤单动作。
	EventCancel EventType = "cancel"
	// EventSkip 记录被最小下单量过滤掉的层。
	EventSkip EventType = "skip"
	// EventError 记录周期内的失败。
	EventError EventType = "error"
)

// Event 为一条审计记录。
type Event struct {
	ID        int64                  `json:"id,omitempty"`
	Type      EventType              `json:"type"`
	Strategy  string                 `json:"strategy"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}
