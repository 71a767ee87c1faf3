package roadmap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/llm"
	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
	"github.com/houzhh15/spm-agent/pkg/logger"
	"github.com/houzhh15/spm-agent/pkg/metrics"
)

// EventType 对外事件类型
type EventType string

const (
	EventStatus EventType = "status"
	EventChunk  EventType = "chunk"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event 流式生成事件，Data 依类型为状态文案、文本片段、项目 ID 或错误消息
type Event struct {
	Type EventType `json:"type"`
	Data string    `json:"data"`
}

// streamState 流式编排状态
type streamState string

const (
	stateAwaitingLLM streamState = "awaiting_llm"
	stateRelayingLLM streamState = "relaying_llm"
	statePersisting  streamState = "persisting"
	stateCompleted   streamState = "completed"
	stateFailed      streamState = "failed"
)

// GenerateRoadmapStream 流式生成
// 校验与项目创建同步完成，失败时直接返回错误；之后的事件经通道送出，
// 最后一个事件恰好是 done（项目 ID）或 error（消息）之一，随后通道关闭
func (g *Generator) GenerateRoadmapStream(ctx context.Context, user models.User, req *models.CreateProjectRequest) (<-chan Event, error) {
	project, prompt, err := g.prepare(ctx, user, req)
	if err != nil {
		metrics.RecordGeneration(modeStreaming, outcomeOf(err))
		return nil, err
	}

	out := make(chan Event)
	c := &coordinator{
		g:       g,
		ctx:     ctx,
		out:     out,
		user:    user,
		project: project,
		state:   stateAwaitingLLM,
	}
	go c.run(prompt)
	return out, nil
}

// coordinator 单次流式请求的编排器，LLM 阶段结束后才进入写库阶段
type coordinator struct {
	g          *Generator
	ctx        context.Context
	out        chan<- Event
	user       models.User
	project    *models.Project
	state   streamState
}

func (c *coordinator) run(prompt string) {
	start := time.Now()
	defer close(c.out)
	defer func() {
		if r := recover(); r != nil && !c.finished() {
			c.fail(apperr.Persistence("Roadmap generation failed", fmt.Errorf("panic: %v", r)))
		}
	}()

	c.emit(Event{Type: EventStatus, Data: "Project created. Generating roadmap..."})

	raw, err := c.relay(prompt)
	if err != nil {
		c.fail(err)
		return
	}

	drafts, err := c.g.normalize(c.project.ID, raw)
	if err != nil {
		c.fail(err)
		return
	}

	c.state = statePersisting
	c.emit(Event{Type: EventStatus, Data: fmt.Sprintf("Saving %d modules and %d tasks...", len(drafts), TaskCount(drafts))})
	progress := func(title string) {
		c.emit(Event{Type: EventStatus, Data: "Creating module: " + title})
	}
	// 客户端断开后继续完成写库，只是不再投递事件
	modules, err := c.g.persist(context.WithoutCancel(c.ctx), c.project, drafts, raw, progress)
	if err != nil {
		c.fail(err)
		return
	}

	c.g.succeed(modeStreaming, c.user, c.project, modules, start)
	c.terminate(stateCompleted, Event{Type: EventDone, Data: c.project.ID})
}

// relay 转发 LLM 的 status/chunk 事件，返回 done 携带的 JSON
func (c *coordinator) relay(prompt string) (json.RawMessage, error) {
	llmStart := time.Now()

	var (
		raw       json.RawMessage
		streamErr error
		finished  bool
	)
	for ev := range c.g.client.Stream(c.ctx, prompt) {
		if finished {
			continue
		}
		switch ev.Type {
		case llm.EventStatus:
			c.state = stateRelayingLLM
			c.emit(Event{Type: EventStatus, Data: ev.Text})
		case llm.EventChunk:
			c.state = stateRelayingLLM
			c.emit(Event{Type: EventChunk, Data: ev.Text})
		case llm.EventDone:
			raw, finished = ev.Roadmap, true
		case llm.EventError:
			streamErr, finished = ev.Err, true
			if streamErr == nil {
				streamErr = apperr.UpstreamUnreachable(nil)
			}
		}
	}

	switch {
	case streamErr != nil:
	case !finished && c.ctx.Err() != nil:
		streamErr = apperr.New(apperr.KindUpstream, "Roadmap generation canceled", c.ctx.Err())
	case !finished:
		streamErr = apperr.MalformedOutput("LLM stream ended without a result", nil)
	case len(raw) == 0:
		streamErr = apperr.EmptyRoadmap()
	}
	logger.LogStage(c.g.logger, c.project.ID, "llm", actionOf(streamErr), time.Since(llmStart).Milliseconds(), streamErr)
	return raw, streamErr
}

// finished 已进入终止状态
func (c *coordinator) finished() bool {
	return c.state == stateCompleted || c.state == stateFailed
}

// emit 投递非终止事件，终止后或 ctx 结束后丢弃
func (c *coordinator) emit(ev Event) bool {
	if c.finished() {
		return false
	}
	return c.send(ev)
}

func (c *coordinator) send(ev Event) bool {
	select {
	case c.out <- ev:
		metrics.RecordStreamEvent(string(ev.Type))
		return true
	case <-c.ctx.Done():
		return false
	}
}

// terminate 切换到终止状态并投递唯一的终止事件
func (c *coordinator) terminate(final streamState, ev Event) {
	if c.finished() {
		return
	}
	c.state = final
	c.send(ev)
}

func (c *coordinator) fail(err error) {
	if c.finished() {
		return
	}
	c.g.logger.Debug("roadmap stream failed", "project_id", c.project.ID, "state", c.state)
	c.g.fail(modeStreaming, c.user, c.project, err)
	c.terminate(stateFailed, Event{Type: EventError, Data: apperr.Message(err)})
}
