package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditAction 审计日志操作类型
type AuditAction string

const (
	ActionCreateProject    AuditAction = "create_project"
	ActionRoadmapGenerated AuditAction = "roadmap_generated"
	ActionRoadmapFailed    AuditAction = "roadmap_failed"
	ActionUpdateTaskStatus AuditAction = "update_task_status"
	ActionDeleteProject    AuditAction = "delete_project"
	ActionUpdateProfile    AuditAction = "update_profile"
)

// AuditEntry 审计日志条目
type AuditEntry struct {
	Timestamp  time.Time   `json:"timestamp"`
	Operator   string      `json:"operator"`          // 操作者 subject id
	Action     AuditAction `json:"action"`            // 操作类型
	ResourceID string      `json:"resource_id"`       // 资源标识 (project_id, task_id 等)
	Details    string      `json:"details,omitempty"` // 额外详情
}

// AuditLogger 审计日志记录器接口
type AuditLogger interface {
	// LogAction 记录一条审计日志
	LogAction(operator string, action AuditAction, resourceID string, details string) error
}

// FileAuditLogger 基于滚动文件的 JSONL 审计日志实现
type FileAuditLogger struct {
	mu     sync.Mutex
	writer io.WriteCloser
	now    func() time.Time
}

// NewFileAuditLogger 创建文件审计日志记录器，按大小与保留天数滚动
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}
	return &FileAuditLogger{writer: writer, now: time.Now}, nil
}

// LogAction 追加一行 JSON 到审计文件
func (f *FileAuditLogger) LogAction(operator string, action AuditAction, resourceID string, details string) error {
	entry := AuditEntry{
		Timestamp:  f.now().UTC(),
		Operator:   operator,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close 关闭底层文件
func (f *FileAuditLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}

// NoopAuditLogger 未配置审计文件时使用
type NoopAuditLogger struct{}

// LogAction 丢弃日志
func (NoopAuditLogger) LogAction(string, AuditAction, string, string) error { return nil }

// ReadEntries 读取审计文件中的全部条目，跳过无法解析的行
func ReadEntries(path string) ([]AuditEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log file %s: %w", path, err)
	}

	var entries []AuditEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
