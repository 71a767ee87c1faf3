// Package roadmap 实现路线图生成流水线：构造 prompt、校验 LLM 输出、逐行写库以及流式事件编排
package roadmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/houzhh15/spm-agent/cmd/server/internal/models"
)

const notSpecified = "Not specified"

// outputSchema LLM 必须严格遵循的输出格式
const outputSchema = `{
  "modules": [
    {
      "title": "Module Name",
      "description": "What this module covers",
      "order_index": 0,
      "estimated_days": 3,
      "start_date": "YYYY-MM-DD",
      "end_date": "YYYY-MM-DD",
      "tasks": [
        {
          "title": "Task Name",
          "description": "What to do",
          "order_index": 0,
          "estimated_hours": 4,
          "deadline": "YYYY-MM-DD"
        }
      ]
    }
  ]
}`

// BuildPrompt 构造路线图生成指令，纯函数
// now 为构造时刻，以本地日历日期注入 prompt 作为相对日期的锚点
func BuildPrompt(req models.RoadmapRequest, now time.Time) string {
	tech := notSpecified
	if stack := nonEmpty(req.TechStack); len(stack) > 0 {
		tech = strings.Join(stack, ", ")
	}

	skill := string(req.SkillLevel)
	if skill == "" {
		skill = string(models.SkillMedium)
	}
	pace := string(req.PreferredPace)
	if pace == "" {
		pace = string(models.PaceMedium)
	}
	hours := formatHours(req.WorkingHoursPerDay)

	var b strings.Builder
	b.WriteString("You are an expert software product manager. Create a detailed project roadmap.\n\n")
	b.WriteString("PROJECT DESCRIPTION:\n")
	b.WriteString(strings.TrimSpace(req.Description))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "TECH STACK: %s\n", tech)
	fmt.Fprintf(&b, "DEVELOPER SKILL LEVEL: %s\n", skill)
	fmt.Fprintf(&b, "DEVELOPER PACE: %s\n", pace)
	fmt.Fprintf(&b, "WORKING HOURS PER DAY: %s\n", hours)
	fmt.Fprintf(&b, "PLANNING MODE: %s\n\n", req.PlanningMode)

	if req.PlanningMode == models.PlanningDeadline && req.DeadlineDate != nil {
		fmt.Fprintf(&b, "CRITICAL CONSTRAINT: The project MUST be completed by %s.\n", req.DeadlineDate)
		b.WriteString("- Fit all modules and tasks within this deadline.\n")
		fmt.Fprintf(&b, "- The developer works %s hours per day.\n", hours)
		b.WriteString("- Assign realistic start_date and end_date for each module.\n")
		b.WriteString("- Assign a deadline for each task that fits within its module's date range.\n")
		b.WriteString("- If the project cannot reasonably fit in the deadline, compress scope but note it.\n")
	} else {
		b.WriteString("This is an open-ended project with no fixed deadline.\n")
		fmt.Fprintf(&b, "- The developer works %s hours per day.\n", hours)
		fmt.Fprintf(&b, "- Estimate realistic durations based on the developer's skill level (%s) and pace (%s).\n", skill, pace)
		b.WriteString("- Assign estimated start_date and end_date for each module relative to today.\n")
		b.WriteString("- Assign deadline for each task based on estimated effort.\n")
	}

	b.WriteString("\nRESPOND WITH ONLY VALID JSON in this exact format (no markdown, no explanation):\n")
	b.WriteString(outputSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Break the project into 3-8 high-level modules.\n")
	b.WriteString("- Each module should have 2-6 tasks.\n")
	b.WriteString("- Tasks should be actionable and specific.\n")
	b.WriteString("- Dates must be realistic and sequential (no overlapping modules unless independent).\n")
	b.WriteString("- estimated_hours should reflect the developer's skill level.\n")
	b.WriteString("- Order modules by dependency (do prerequisites first).\n")
	fmt.Fprintf(&b, "- Today's date is %s. All dates must be on or after today.\n", now.Format(models.DateLayout))
	return b.String()
}

// formatHours 去掉整数小时的小数部分，6 -> "6"，6.5 -> "6.5"
func formatHours(h float64) string {
	if h <= 0 {
		h = models.DefaultWorkingHours
	}
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
