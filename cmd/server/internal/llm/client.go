// Package llm 封装 Gemini generateContent 接口，提供阻塞与流式两种调用方式
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/pkg/metrics"
)

const (
	modeBlocking  = "blocking"
	modeStreaming = "streaming"

	// maxErrorBody 非 2xx 响应体最多保留的字节数
	maxErrorBody = 64 * 1024
)

// Config LLM 客户端配置
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string
	Temperature   float64
	Timeout       time.Duration
	StreamTimeout time.Duration
	MaxConcurrent int
}

// Client Gemini 客户端，可被多个请求并发使用
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *Limiter
	logger     *slog.Logger
}

// NewClient 创建客户端，httpClient 为 nil 时使用默认 Transport
// 超时通过每次调用的 context 控制，不设置 http.Client.Timeout
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    NewLimiter(cfg.MaxConcurrent),
		logger:     logger.With("component", "llm", "model", cfg.Model),
	}
}

// Generate 发送 prompt 并等待完整响应，返回 LLM 生成的 JSON 值
func (c *Client) Generate(ctx context.Context, prompt string) (json.RawMessage, error) {
	start := time.Now()
	raw, status, err := c.generate(ctx, prompt)
	metrics.RecordLLMRequest(modeBlocking, status, time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("llm request failed", "mode", modeBlocking, "status", status, "error", err)
		return nil, err
	}
	c.logger.Debug("llm request completed", "mode", modeBlocking, "duration_ms", time.Since(start).Milliseconds())
	return raw, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (json.RawMessage, string, error) {
	if c.cfg.APIKey == "" {
		return nil, "config", apperr.Configuration("GEMINI_API_KEY is not configured.")
	}

	// 超时覆盖排队等待槽位的时间
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, acquireStatus(err), classifyTransport(err)
	}
	defer c.limiter.Release()

	req, err := c.newRequest(ctx, "generateContent", prompt)
	if err != nil {
		return nil, "request", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = deadlineCause(ctx, err)
		return nil, transportStatus(err), classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, strconv.Itoa(resp.StatusCode), upstreamError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = deadlineCause(ctx, err)
		return nil, transportStatus(err), classifyTransport(err)
	}

	var envelope generateResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "malformed", apperr.MalformedOutput("Unexpected LLM response structure", err)
	}
	text, ok := envelope.text()
	if !ok {
		return nil, "malformed", apperr.MalformedOutput("Unexpected LLM response structure: missing candidates[0].content.parts", nil)
	}

	raw, err := ParseRoadmapText(text)
	if err != nil {
		return nil, "malformed", err
	}
	return raw, strconv.Itoa(resp.StatusCode), nil
}

// newRequest 构造 Gemini 请求，API Key 走请求头避免出现在 URL 日志中
func (c *Client) newRequest(ctx context.Context, method, prompt string) (*http.Request, error) {
	payload, err := json.Marshal(newGenerateRequest(prompt, c.cfg.Temperature))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal LLM request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", c.cfg.BaseURL, c.cfg.Model, method)
	if method == "streamGenerateContent" {
		url += "?alt=sse"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	if method == "streamGenerateContent" {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return apperr.Upstream(resp.StatusCode, strings.TrimSpace(string(body)))
}

// classifyTransport 将网络层错误归类为超时或不可达
func classifyTransport(err error) error {
	if isTimeout(err) {
		return apperr.UpstreamTimeout(err)
	}
	return apperr.UpstreamUnreachable(err)
}

// deadlineCause 在调用超时后补充 DeadlineExceeded，部分传输错误不会携带它
func deadlineCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func acquireStatus(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return "canceled"
}

func transportStatus(err error) string {
	if isTimeout(err) {
		return "timeout"
	}
	return "unreachable"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
