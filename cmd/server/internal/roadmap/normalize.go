package roadmap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

// TaskDraft 尚未分配 ID 的任务
type TaskDraft struct {
	Title          string
	Description    string
	OrderIndex     int
	EstimatedHours *float64
	Deadline       *models.Date
}

// ModuleDraft 尚未分配 ID 的模块，Tasks 保持 LLM 输出中的顺序
type ModuleDraft struct {
	Title         string
	Description   string
	OrderIndex    int
	EstimatedDays *float64
	StartDate     *models.Date
	EndDate       *models.Date
	Tasks         []TaskDraft
}

// TaskCount 返回全部模块的任务总数
func TaskCount(drafts []ModuleDraft) int {
	n := 0
	for _, m := range drafts {
		n += len(m.Tasks)
	}
	return n
}

// Normalize 将 LLM 输出的非受信 JSON 转换为有序草稿
// 缺少 modules 视为空列表；任何结构问题返回 InvalidRoadmapShape，并指出首个出错字段
func Normalize(raw json.RawMessage) ([]ModuleDraft, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, apperr.MalformedOutput("LLM returned invalid JSON: "+err.Error(), err)
	}

	root, ok := tree.(map[string]any)
	if !ok {
		return nil, apperr.InvalidShape("$", "expected object, got "+kindOf(tree))
	}

	modules, err := optionalArray(root, "modules", "$.modules")
	if err != nil {
		return nil, err
	}

	drafts := make([]ModuleDraft, 0, len(modules))
	for i, item := range modules {
		path := fmt.Sprintf("$.modules[%d]", i)
		draft, err := normalizeModule(item, path)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func normalizeModule(item any, path string) (ModuleDraft, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return ModuleDraft{}, apperr.InvalidShape(path, "expected object, got "+kindOf(item))
	}

	var (
		m   ModuleDraft
		err error
	)
	if m.Title, err = requiredString(obj, "title", path); err != nil {
		return ModuleDraft{}, err
	}
	if m.Description, err = optionalString(obj, "description", path); err != nil {
		return ModuleDraft{}, err
	}
	if m.OrderIndex, err = optionalInt(obj, "order_index", path); err != nil {
		return ModuleDraft{}, err
	}
	if m.EstimatedDays, err = optionalEstimate(obj, "estimated_days", path); err != nil {
		return ModuleDraft{}, err
	}
	if m.StartDate, err = optionalDate(obj, "start_date", path); err != nil {
		return ModuleDraft{}, err
	}
	if m.EndDate, err = optionalDate(obj, "end_date", path); err != nil {
		return ModuleDraft{}, err
	}

	tasks, err := optionalArray(obj, "tasks", path+".tasks")
	if err != nil {
		return ModuleDraft{}, err
	}
	m.Tasks = make([]TaskDraft, 0, len(tasks))
	for j, t := range tasks {
		task, err := normalizeTask(t, fmt.Sprintf("%s.tasks[%d]", path, j))
		if err != nil {
			return ModuleDraft{}, err
		}
		m.Tasks = append(m.Tasks, task)
	}
	return m, nil
}

func normalizeTask(item any, path string) (TaskDraft, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return TaskDraft{}, apperr.InvalidShape(path, "expected object, got "+kindOf(item))
	}

	var (
		t   TaskDraft
		err error
	)
	if t.Title, err = requiredString(obj, "title", path); err != nil {
		return TaskDraft{}, err
	}
	if t.Description, err = optionalString(obj, "description", path); err != nil {
		return TaskDraft{}, err
	}
	if t.OrderIndex, err = optionalInt(obj, "order_index", path); err != nil {
		return TaskDraft{}, err
	}
	if t.EstimatedHours, err = optionalEstimate(obj, "estimated_hours", path); err != nil {
		return TaskDraft{}, err
	}
	if t.Deadline, err = optionalDate(obj, "deadline", path); err != nil {
		return TaskDraft{}, err
	}
	return t, nil
}

// 字段读取辅助函数：null 与缺失等价

func optionalArray(obj map[string]any, key, path string) ([]any, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, apperr.InvalidShape(path, "expected array, got "+kindOf(v))
	}
	return arr, nil
}

func requiredString(obj map[string]any, key, path string) (string, error) {
	field := path + "." + key
	v, ok := obj[key]
	if !ok || v == nil {
		return "", apperr.InvalidShape(field, "required field is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.InvalidShape(field, "expected string, got "+kindOf(v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.InvalidShape(field, "must not be empty")
	}
	return s, nil
}

func optionalString(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.InvalidShape(path+"."+key, "expected string, got "+kindOf(v))
	}
	return s, nil
}

func optionalNumber(obj map[string]any, key, path string) (*float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return nil, apperr.InvalidShape(path+"."+key, "expected number, got "+kindOf(v))
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, apperr.InvalidShape(path+"."+key, "expected number, got "+n.String())
	}
	return &f, nil
}

// optionalEstimate 读取工时类字段，负数视为未给出
func optionalEstimate(obj map[string]any, key, path string) (*float64, error) {
	f, err := optionalNumber(obj, key, path)
	if err != nil || f == nil || *f < 0 {
		return nil, err
	}
	return f, nil
}

func optionalInt(obj map[string]any, key, path string) (int, error) {
	f, err := optionalNumber(obj, key, path)
	if err != nil || f == nil {
		return 0, err
	}
	if *f != math.Trunc(*f) || *f > math.MaxInt32 || *f < math.MinInt32 {
		return 0, apperr.InvalidShape(path+"."+key, fmt.Sprintf("expected integer, got %v", *f))
	}
	return int(*f), nil
}

func optionalDate(obj map[string]any, key, path string) (*models.Date, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperr.InvalidShape(path+"."+key, "expected date string, got "+kindOf(v))
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil, apperr.InvalidShape(path+"."+key, fmt.Sprintf("expected YYYY-MM-DD, got %q", s))
	}
	return &d, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
