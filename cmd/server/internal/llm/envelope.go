package llm

import (
	"encoding/json"
	"strings"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
)

// Gemini REST 请求/响应结构

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type providerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type generateResponse struct {
	Candidates []candidate    `json:"candidates"`
	Error      *providerError `json:"error,omitempty"`
}

func newGenerateRequest(prompt string, temperature float64) generateRequest {
	return generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			ResponseMIMEType: "application/json",
		},
	}
}

// text 拼接首个候选的全部文本片段
func (r generateResponse) text() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), true
}

// ParseRoadmapText 将 LLM 文本输出解析为 JSON 值
// 容忍一层 ```json 围栏；空输出、null 与非 JSON 文本均为 MalformedLLMOutput
func ParseRoadmapText(text string) (json.RawMessage, error) {
	body := stripFence(strings.TrimSpace(text))
	if body == "" {
		return nil, apperr.MalformedOutput("LLM returned empty output", nil)
	}

	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, apperr.MalformedOutput("LLM returned invalid JSON: "+err.Error(), err)
	}
	if probe == nil {
		return nil, apperr.MalformedOutput("LLM returned null", nil)
	}
	return json.RawMessage(body), nil
}

// stripFence 去掉包裹整个输出的 markdown 代码围栏
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := s[3 : len(s)-3]
	lineEnd := strings.IndexByte(inner, '\n')
	if lineEnd < 0 {
		return strings.TrimSpace(inner)
	}
	lang := strings.TrimSpace(inner[:lineEnd])
	if lang != "" && !strings.EqualFold(lang, "json") {
		return s
	}
	return strings.TrimSpace(inner[lineEnd+1:])
}
