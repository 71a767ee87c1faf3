package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/cmd/server/internal/roadmap"
	"github.com/houzhh15/spm-agent/cmd/server/internal/store"
	"github.com/houzhh15/spm-agent/pkg/logger"
)

var owner = models.User{SubjectID: "user-1", Email: "dev@example.com"}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedRoadmap 通过 Persistor 写入一个完整 roadmap
func seedRoadmap(t *testing.T, s *store.Store, raw string) *models.Project {
	t.Helper()
	ctx := context.Background()
	p := &models.Project{UserID: owner.SubjectID, Title: "Recipes", PlanningMode: models.PlanningOpen, Status: models.ProjectPlanning}
	require.NoError(t, s.CreateProject(ctx, p))

	drafts, err := roadmap.Normalize(json.RawMessage(raw))
	require.NoError(t, err)
	_, err = roadmap.NewPersistor(s, logger.Discard()).Persist(ctx, p.ID, drafts, json.RawMessage(raw), nil)
	require.NoError(t, err)
	return p
}

const roadmapJSON = `{"modules": [
  {"title": "Later", "order_index": 1, "tasks": [{"title": "L1"}, {"title": "L2", "deadline": "2026-05-01"}]},
  {"title": "First", "order_index": 0, "tasks": [{"title": "F2", "order_index": 1}, {"title": "F1", "order_index": 0, "deadline": "2026-04-01"}]},
  {"title": "Tie", "order_index": 1, "tasks": []}
]}`

func TestGetProjectDetailRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := seedRoadmap(t, s, roadmapJSON)
	svc := NewProjectService(s, nil, logger.Discard())

	detail, err := svc.GetProjectDetail(context.Background(), owner, p.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ProjectActive, detail.Status)
	require.Len(t, detail.Modules, 3)
	assert.Equal(t, "First", detail.Modules[0].Title)
	assert.Equal(t, "Later", detail.Modules[1].Title)
	assert.Equal(t, "Tie", detail.Modules[2].Title)

	first := detail.Modules[0].Tasks
	require.Len(t, first, 2)
	assert.Equal(t, "F1", first[0].Title)
	assert.Equal(t, "F2", first[1].Title)
	assert.Equal(t, []string{"L1", "L2"}, []string{detail.Modules[1].Tasks[0].Title, detail.Modules[1].Tasks[1].Title})
	assert.NotNil(t, detail.Modules[2].Tasks)
	assert.Empty(t, detail.Modules[2].Tasks)

	_, err = svc.GetProjectDetail(context.Background(), models.User{SubjectID: "intruder"}, p.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, "Project not found.", apperr.Message(err))
}

func TestUpdateTaskStatusCompletedAt(t *testing.T) {
	s := newTestStore(t)
	p := seedRoadmap(t, s, roadmapJSON)
	svc := NewProjectService(s, nil, logger.Discard())
	fixed := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	tasks, err := s.ListTasks(context.Background(), p.ID)
	require.NoError(t, err)
	taskID := tasks[0].ID

	task, err := svc.UpdateTaskStatus(context.Background(), owner, p.ID, taskID, models.TaskCompleted)
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, fixed.Equal(*task.CompletedAt))

	task, err = svc.UpdateTaskStatus(context.Background(), owner, p.ID, taskID, models.TaskPending)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	require.NotNil(t, task.CompletedAt)

	_, err = svc.UpdateTaskStatus(context.Background(), owner, p.ID, "missing", models.TaskBlocked)
	assert.Equal(t, "Task not found.", apperr.Message(err))

	_, err = svc.UpdateTaskStatus(context.Background(), models.User{SubjectID: "intruder"}, p.ID, taskID, models.TaskBlocked)
	assert.Equal(t, "Project not found.", apperr.Message(err))

	_, err = svc.UpdateTaskStatus(context.Background(), owner, p.ID, taskID, models.TaskStatus("done"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpcomingDeadlinesAndDelete(t *testing.T) {
	s := newTestStore(t)
	p := seedRoadmap(t, s, roadmapJSON)
	svc := NewProjectService(s, nil, logger.Discard())
	ctx := context.Background()

	items, err := svc.UpcomingDeadlines(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "F1", items[0].TaskTitle)
	assert.Equal(t, "Recipes", items[0].ProjectTitle)
	assert.Equal(t, "L2", items[1].TaskTitle)

	list, err := svc.ListProjects(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.DeleteProject(ctx, models.User{SubjectID: "intruder"}, p.ID)))
	require.NoError(t, svc.DeleteProject(ctx, owner, p.ID))

	items, err = svc.UpcomingDeadlines(ctx, owner, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.DeleteProject(ctx, owner, p.ID)))
}
