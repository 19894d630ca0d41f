package events

import (
	"github.com/google/uuid"

	"github.com/perpdesk/goperp/pkg/logger"
)

// Notifier 结果通知接收器（外部协作方接口）
// 交易提交管线通过它上报进度与成败；GUI、TUI 或日志都可以实现
type Notifier interface {
	// ShowMessage 展示新消息，返回消息 ID 供后续更新
	ShowMessage(text string) string
	// UpdateMessage 更新已展示的消息
	UpdateMessage(id, text string)
}

// LogNotifier 基于日志的通知实现
type LogNotifier struct{}

// NewLogNotifier 创建日志通知器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// ShowMessage 输出新消息并返回消息 ID
func (n *LogNotifier) ShowMessage(text string) string {
	id := uuid.NewString()
	logger.WithField("msg_id", id).Info(text)
	return id
}

// UpdateMessage 输出消息更新
func (n *LogNotifier) UpdateMessage(id, text string) {
	logger.WithField("msg_id", id).Info(text)
}
