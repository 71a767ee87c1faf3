package llm

import (
	"bytes"
	"strings"
)

// sseParser 增量解析 text/event-stream 响应，按事件返回 data 字段
// 同一事件的多个 data 行以换行拼接
type sseParser struct {
	buffer    []byte
	dataLines []string
}

// Feed 追加一段原始字节，返回其中已完整结束的事件数据
func (p *sseParser) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	p.buffer = append(p.buffer, chunk...)

	var out []string
	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx < 0 {
			break
		}
		line := p.buffer[:idx]
		p.buffer = p.buffer[idx+1:]

		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if data, ok := p.consumeLine(string(line)); ok {
			out = append(out, data)
		}
	}
	return out
}

// Flush 在流结束时处理残留的未终止行与事件
func (p *sseParser) Flush() []string {
	var out []string
	if len(p.buffer) > 0 {
		line := strings.TrimSuffix(string(p.buffer), "\r")
		p.buffer = nil
		if data, ok := p.consumeLine(line); ok {
			out = append(out, data)
		}
	}
	if data, ok := p.flushEvent(); ok {
		out = append(out, data)
	}
	return out
}

func (p *sseParser) consumeLine(line string) (string, bool) {
	if line == "" {
		return p.flushEvent()
	}
	if strings.HasPrefix(line, "data:") {
		p.dataLines = append(p.dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
	}
	// event:/id:/retry: 以及注释行不携带负载
	return "", false
}

func (p *sseParser) flushEvent() (string, bool) {
	if len(p.dataLines) == 0 {
		return "", false
	}
	data := strings.Join(p.dataLines, "\n")
	p.dataLines = nil
	return data, true
}
