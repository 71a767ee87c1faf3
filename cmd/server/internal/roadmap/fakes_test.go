package roadmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/llm"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore 内存存储，按写入次序记录所有行
type fakeStore struct {
	mu sync.Mutex

	projects  map[string]*models.Project
	modules   []models.Module
	tasks     []models.Task
	activated map[string]json.RawMessage
	writes    int

	failProject  bool
	failModuleAt int // 第 n 次模块写入失败(从 1 开始)，0 表示不失败
	failTaskAt   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:  map[string]*models.Project{},
		activated: map[string]json.RawMessage{},
	}
}

func (s *fakeStore) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProject {
		return errStoreDown
	}
	s.writes++
	p.ID = fmt.Sprintf("proj-%d", len(s.projects)+1)
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *fakeStore) CreateModule(_ context.Context, m *models.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failModuleAt > 0 && len(s.modules)+1 == s.failModuleAt {
		return errStoreDown
	}
	s.writes++
	m.ID = fmt.Sprintf("mod-%d", len(s.modules)+1)
	s.modules = append(s.modules, *m)
	return nil
}

func (s *fakeStore) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTaskAt > 0 && len(s.tasks)+1 == s.failTaskAt {
		return errStoreDown
	}
	s.writes++
	t.ID = fmt.Sprintf("task-%d", len(s.tasks)+1)
	s.tasks = append(s.tasks, *t)
	return nil
}

func (s *fakeStore) ActivateProject(_ context.Context, id string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return errors.New("no such project")
	}
	s.writes++
	p.Status = models.ProjectActive
	p.RawLLMResponse = []byte(raw)
	s.activated[id] = raw
	return nil
}

func (s *fakeStore) project(id string) models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.projects[id]
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// fakeClient 按脚本返回 LLM 结果并记录收到的 prompt
type fakeClient struct {
	mu      sync.Mutex
	raw     json.RawMessage
	err     error
	events  []llm.Event
	prompts []string
}

func (c *fakeClient) Generate(_ context.Context, prompt string) (json.RawMessage, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	return c.raw, c.err
}

func (c *fakeClient) Stream(ctx context.Context, prompt string) <-chan llm.Event {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	events := append([]llm.Event(nil), c.events...)
	c.mu.Unlock()

	out := make(chan llm.Event)
	go func() {
		defer close(out)
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

func (c *fakeClient) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

type fakeProfiles struct {
	profile *models.Profile
	err     error
}

func (p fakeProfiles) Profile(context.Context, string) (*models.Profile, error) {
	return p.profile, p.err
}

// streamEvents 把完整 JSON 切成若干 chunk，以 done 结尾
func streamEvents(raw string, parts int) []llm.Event {
	events := []llm.Event{{Type: llm.EventStatus, Text: "Connecting to Gemini..."}}
	size := (len(raw) + parts - 1) / parts
	for i := 0; i < len(raw); i += size {
		end := i + size
		if end > len(raw) {
			end = len(raw)
		}
		events = append(events, llm.Event{Type: llm.EventChunk, Text: raw[i:end]})
	}
	return append(events, llm.Event{Type: llm.EventDone, Roadmap: json.RawMessage(raw)})
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not terminate, got %d events", len(events))
			return nil
		}
	}
}

func strPtr(s string) *string { return &s }

func fixedNow() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

func mustDate(t *testing.T, s string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return &d
}

const sampleRoadmap = `{
  "modules": [
    {
      "title": "Foundations",
      "description": "Repo and CI",
      "order_index": 2,
      "estimated_days": 3,
      "start_date": "2026-03-02",
      "end_date": "2026-03-04",
      "tasks": [
        {"title": "Init repo", "order_index": 1, "estimated_hours": 2, "deadline": "2026-03-02"},
        {"title": "Setup CI", "description": "GitHub Actions", "order_index": 0, "estimated_hours": 4}
      ]
    },
    {
      "title": "Recipes API",
      "order_index": 0,
      "tasks": [
        {"title": "Schema"},
        {"title": "CRUD endpoints", "estimated_hours": 8},
        {"title": "Search", "deadline": null}
      ]
    },
    {
      "title": "Launch",
      "order_index": 1
    }
  ]
}`
