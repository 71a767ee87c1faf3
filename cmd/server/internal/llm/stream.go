package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/pkg/metrics"
)

// EventType 流式事件类型
type EventType string

const (
	EventStatus EventType = "status"
	EventChunk  EventType = "chunk"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event 流式调用产生的事件
// 通道关闭前恰好有一个 done 或 error 事件，且位于最后
type Event struct {
	Type    EventType
	Text    string          // status 文案或 chunk 文本片段
	Roadmap json.RawMessage // done 事件携带完整解析后的 JSON
	Err     error           // error 事件携带分类错误
}

// Stream 以 SSE 方式调用 Gemini，按到达顺序转发文本片段
// 通道在终止事件后关闭；调用方 ctx 结束后未送达的事件被丢弃
func (c *Client) Stream(ctx context.Context, prompt string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		start := time.Now()
		status, err := c.stream(ctx, prompt, emit)
		metrics.RecordLLMRequest(modeStreaming, status, time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn("llm stream failed", "mode", modeStreaming, "status", status, "error", err)
			emit(Event{Type: EventError, Err: err})
		}
	}()
	return out
}

// stream 执行一次流式调用，成功时在内部发送 done 事件
func (c *Client) stream(ctx context.Context, prompt string, emit func(Event) bool) (string, error) {
	if c.cfg.APIKey == "" {
		return "config", apperr.Configuration("GEMINI_API_KEY is not configured.")
	}

	emit(Event{Type: EventStatus, Text: "Connecting to Gemini..."})

	sctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()

	if err := c.limiter.Acquire(sctx); err != nil {
		return acquireStatus(err), classifyTransport(err)
	}
	defer c.limiter.Release()

	req, err := c.newRequest(sctx, "streamGenerateContent", prompt)
	if err != nil {
		return "request", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = deadlineCause(sctx, err)
		return transportStatus(err), classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return strconv.Itoa(resp.StatusCode), upstreamError(resp)
	}

	emit(Event{Type: EventStatus, Text: "Generating roadmap..."})

	var (
		parser sseParser
		text   strings.Builder
		buf    = make([]byte, 4096)
	)
	handle := func(payloads []string) error {
		for _, data := range payloads {
			if data == "" || data == "[DONE]" {
				continue
			}
			var envelope generateResponse
			if err := json.Unmarshal([]byte(data), &envelope); err != nil {
				return apperr.MalformedOutput("Unexpected LLM stream event", err)
			}
			if envelope.Error != nil {
				return apperr.Upstream(envelope.Error.Code, envelope.Error.Message)
			}
			fragment, ok := envelope.text()
			if !ok || fragment == "" {
				continue
			}
			text.WriteString(fragment)
			if !emit(Event{Type: EventChunk, Text: fragment}) {
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := handle(parser.Feed(buf[:n])); err != nil {
				if ctx.Err() != nil {
					return "canceled", err
				}
				return "malformed", err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			readErr = deadlineCause(sctx, readErr)
			return transportStatus(readErr), classifyTransport(readErr)
		}
	}
	if err := handle(parser.Flush()); err != nil {
		return "malformed", err
	}

	emit(Event{Type: EventStatus, Text: "Parsing roadmap..."})

	raw, err := ParseRoadmapText(text.String())
	if err != nil {
		return "malformed", err
	}
	emit(Event{Type: EventDone, Roadmap: raw})
	return strconv.Itoa(resp.StatusCode), nil
}
