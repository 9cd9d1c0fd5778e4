package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogBufferSize 日志环形缓冲区默认容量
const DefaultLogBufferSize = 500

// LogEntry 对外暴露的日志条目
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LogManager 日志环形缓冲区
//
// 通过logrus钩子收集最近的日志，供/api/logs查询。
// 缓冲区满后覆盖最旧的条目。
type LogManager struct {
	mu      sync.RWMutex
	entries []LogEntry
	max     int
}

// NewLogManager 创建日志管理器
func NewLogManager(max int) *LogManager {
	if max <= 0 {
		max = DefaultLogBufferSize
	}
	return &LogManager{
		max: max,
	}
}

// Append 追加日志条目
func (m *LogManager) Append(entry LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, entry)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
}

// Recent 返回最近的日志条目（最新的在前）
func (m *LogManager) Recent(limit int) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}

	result := make([]LogEntry, limit)
	for i := 0; i < limit; i++ {
		result[i] = m.entries[len(m.entries)-1-i]
	}
	return result
}

// Hook 返回接入logrus的钩子
func (m *LogManager) Hook() logrus.Hook {
	return &logHook{manager: m}
}

type logHook struct {
	manager *LogManager
}

// Levels 收集info及以上级别
func (h *logHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

// Fire 写入环形缓冲区
func (h *logHook) Fire(entry *logrus.Entry) error {
	h.manager.Append(LogEntry{
		Time:    entry.Time.Format(time.RFC3339),
		Level:   entry.Level.String(),
		Message: entry.Message,
	})
	return nil
}
