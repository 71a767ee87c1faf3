package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func date(t *testing.T, v string) *models.Date {
	t.Helper()
	d, err := models.ParseDate(v)
	require.NoError(t, err)
	return &d
}

func createProject(t *testing.T, s *Store, userID, title string, createdAt time.Time) *models.Project {
	t.Helper()
	p := &models.Project{
		UserID:             userID,
		Title:              title,
		Description:        "a project description",
		TechStack:          []string{"Go", "Postgres"},
		PlanningMode:       models.PlanningOpen,
		WorkingHoursPerDay: 6,
		Status:             models.ProjectPlanning,
		CreatedAt:          createdAt,
	}
	require.NoError(t, s.CreateProject(context.Background(), p))
	require.NotEmpty(t, p.ID)
	return p
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := createProject(t, s, "user-1", "Recipes", time.Now())

	got, err := s.GetProject(ctx, p.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Recipes", got.Title)
	assert.Equal(t, []string{"Go", "Postgres"}, []string(got.TechStack))
	assert.Equal(t, models.ProjectPlanning, got.Status)
	assert.Nil(t, got.DeadlineDate)

	_, err = s.GetProject(ctx, p.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)

	raw := json.RawMessage(`{"modules":[{"title":"A"}]}`)
	require.NoError(t, s.ActivateProject(ctx, p.ID, raw))

	got, err = s.GetProject(ctx, p.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectActive, got.Status)
	assert.JSONEq(t, string(raw), string(got.RawLLMResponse))

	assert.ErrorIs(t, s.ActivateProject(ctx, "missing", raw), ErrNotFound)
}

func TestDeadlineDateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := &models.Project{
		UserID:       "user-1",
		Title:        "Deadline",
		PlanningMode: models.PlanningDeadline,
		DeadlineDate: date(t, "2026-06-30"),
		Status:       models.ProjectPlanning,
	}
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got.DeadlineDate)
	assert.Equal(t, "2026-06-30", got.DeadlineDate.String())
	assert.NotNil(t, got.TechStack)
}

func TestListProjectsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	createProject(t, s, "user-1", "old", base)
	createProject(t, s, "user-1", "new", base.Add(time.Hour))
	createProject(t, s, "user-2", "other", base.Add(2*time.Hour))

	projects, err := s.ListProjects(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "new", projects[0].Title)
	assert.Equal(t, "old", projects[1].Title)

	empty, err := s.ListProjects(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestModulesAndTasksOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := createProject(t, s, "user-1", "Recipes", time.Now())

	// order_index 相同的模块按写入位置排序
	titles := []struct {
		title string
		order int
	}{{"b", 1}, {"a", 0}, {"c", 1}}
	for i, m := range titles {
		mod := &models.Module{ProjectID: p.ID, Title: m.title, OrderIndex: m.order, Position: i, Status: models.ModulePending}
		require.NoError(t, s.CreateModule(ctx, mod))
		require.NotEmpty(t, mod.ID)
		for j := 0; j < 2; j++ {
			task := &models.Task{ModuleID: mod.ID, ProjectID: p.ID, Title: m.title + "-task", OrderIndex: 0, Position: j, Status: models.TaskPending}
			require.NoError(t, s.CreateTask(ctx, task))
		}
	}

	modules, err := s.ListModules(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, modules, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{modules[0].Title, modules[1].Title, modules[2].Title})

	tasks, err := s.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 6)
}

func TestUpdateTaskStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := createProject(t, s, "user-1", "Recipes", time.Now())
	mod := &models.Module{ProjectID: p.ID, Title: "m", Status: models.ModulePending}
	require.NoError(t, s.CreateModule(ctx, mod))
	task := &models.Task{ModuleID: mod.ID, ProjectID: p.ID, Title: "t", Status: models.TaskPending}
	require.NoError(t, s.CreateTask(ctx, task))

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	updated, err := s.UpdateTaskStatus(ctx, p.ID, task.ID, models.TaskCompleted, &now)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, now.Equal(*updated.CompletedAt))

	// 非 completed 状态不清除 completed_at
	updated, err = s.UpdateTaskStatus(ctx, p.ID, task.ID, models.TaskInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	_, err = s.UpdateTaskStatus(ctx, "other-project", task.ID, models.TaskBlocked, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpcomingDeadlines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := createProject(t, s, "user-1", "Alpha", time.Now())
	p2 := createProject(t, s, "user-1", "Beta", time.Now())
	p3 := createProject(t, s, "user-2", "Gamma", time.Now())

	add := func(p *models.Project, title string, status models.TaskStatus, deadline *models.Date) {
		mod := &models.Module{ProjectID: p.ID, Title: "m", Status: models.ModulePending}
		require.NoError(t, s.CreateModule(ctx, mod))
		require.NoError(t, s.CreateTask(ctx, &models.Task{ModuleID: mod.ID, ProjectID: p.ID, Title: title, Status: status, Deadline: deadline}))
	}
	add(p1, "later", models.TaskPending, date(t, "2026-04-10"))
	add(p2, "soonest", models.TaskInProgress, date(t, "2026-03-05"))
	add(p1, "done", models.TaskCompleted, date(t, "2026-03-01"))
	add(p1, "no deadline", models.TaskPending, nil)
	add(p3, "foreign", models.TaskPending, date(t, "2026-03-02"))

	items, err := s.UpcomingDeadlines(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "soonest", items[0].TaskTitle)
	assert.Equal(t, "Beta", items[0].ProjectTitle)
	assert.Equal(t, "2026-03-05", items[0].Deadline.String())
	assert.Equal(t, models.TaskInProgress, items[0].Status)
	assert.Equal(t, "later", items[1].TaskTitle)

	limited, err := s.UpcomingDeadlines(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := createProject(t, s, "user-1", "Recipes", time.Now())
	keep := createProject(t, s, "user-1", "Keep", time.Now())
	for _, proj := range []*models.Project{p, keep} {
		mod := &models.Module{ProjectID: proj.ID, Title: "m", Status: models.ModulePending}
		require.NoError(t, s.CreateModule(ctx, mod))
		require.NoError(t, s.CreateTask(ctx, &models.Task{ModuleID: mod.ID, ProjectID: proj.ID, Title: "t", Status: models.TaskPending}))
	}

	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID, "user-2"), ErrNotFound)
	require.NoError(t, s.DeleteProject(ctx, p.ID, "user-1"))

	_, err := s.GetProject(ctx, p.ID, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	modules, err := s.ListModules(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, modules)
	tasks, err := s.ListTasks(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	kept, err := s.ListTasks(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID, "user-1"), ErrNotFound)
}

func TestProfileUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	profile, err := s.UpsertProfile(ctx, "user-1", map[string]any{"skill_level": "senior"})
	require.NoError(t, err)
	require.NotNil(t, profile.SkillLevel)
	assert.Equal(t, "senior", *profile.SkillLevel)

	profile, err = s.UpsertProfile(ctx, "user-1", map[string]any{"preferred_pace": "relaxed"})
	require.NoError(t, err)
	assert.Equal(t, "senior", *profile.SkillLevel)
	assert.Equal(t, "relaxed", *profile.PreferredPace)

	got, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "relaxed", *got.PreferredPace)
}
