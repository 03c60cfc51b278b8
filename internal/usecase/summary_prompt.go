package usecase

import (
	"fmt"
	"strings"

	"case-retriever/internal/domain"
)

// SummaryStyle selects the requested digest depth.
type SummaryStyle string

const (
	SummaryStyleConcise  SummaryStyle = "concise"
	SummaryStyleDetailed SummaryStyle = "detailed"
)

// ParseSummaryStyle validates a caller-supplied style name. Empty input falls
// back to concise.
func ParseSummaryStyle(s string) (SummaryStyle, error) {
	switch SummaryStyle(s) {
	case SummaryStyleConcise, SummaryStyleDetailed:
		return SummaryStyle(s), nil
	case "":
		return SummaryStyleConcise, nil
	}
	return "", domain.Invalid("unknown summary type %q", s)
}

// Per-field character caps applied before prompt assembly so oversized
// documents cannot blow the payload.
const (
	summaryDescriptionLimit   = 200
	summaryBusinessValueLimit = 150
	summaryAcceptanceLimit    = 200
)

// Completion budgets per style.
const (
	summaryMaxTokensConcise  = 400
	summaryMaxTokensDetailed = 800
)

// SummaryPromptBuilder assembles the chat messages for the summarizer call.
// Items arrive in either projection (test case or user story); the builder
// enumerates whichever fields are populated.
type SummaryPromptBuilder struct{}

// NewSummaryPromptBuilder creates a builder instance (stateless).
func NewSummaryPromptBuilder() SummaryPromptBuilder {
	return SummaryPromptBuilder{}
}

// Build renders the messages for the chat completion API.
func (b SummaryPromptBuilder) Build(items []domain.CaseDocument, style SummaryStyle) []domain.ChatMessage {
	var sys strings.Builder
	sys.WriteString("You are a QA analyst summarizing healthcare test cases and user stories for a reviewer.\n")
	sys.WriteString("Base the summary ONLY on the items listed in the user message.\n")
	switch style {
	case SummaryStyleDetailed:
		sys.WriteString("Write a detailed digest: the common theme, the functional areas covered, notable priorities or risks, and any gaps worth flagging. Target 150-250 words.\n")
	default:
		sys.WriteString("Write a concise digest of what these items cover in 2-3 sentences.\n")
	}
	sys.WriteString("Respond with JSON exactly in this shape: {\"summary\": \"...\"}\n")
	sys.WriteString("Do not invent items, identifiers, or facts that are not listed.")

	var user strings.Builder
	user.WriteString(fmt.Sprintf("Items (%d):\n\n", len(items)))
	for i, item := range items {
		writeSummaryItem(&user, i+1, &item)
	}

	return []domain.ChatMessage{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: user.String()},
	}
}

func writeSummaryItem(sb *strings.Builder, index int, item *domain.CaseDocument) {
	ref := item.ID
	if ref == "" {
		ref = item.Key
	}
	title := item.DisplayTitle()

	sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", index, ref, title))

	var attrs []string
	if item.Module != "" {
		attrs = append(attrs, "module: "+item.Module)
	}
	if item.Priority != "" {
		attrs = append(attrs, "priority: "+item.Priority)
	}
	if item.Risk != "" {
		attrs = append(attrs, "risk: "+item.Risk)
	}
	if len(attrs) > 0 {
		sb.WriteString("   (" + strings.Join(attrs, ", ") + ")\n")
	}
	if item.Description != "" {
		sb.WriteString("   Description: " + truncateField(item.Description, summaryDescriptionLimit) + "\n")
	}
	if item.BusinessValue != "" {
		sb.WriteString("   Business value: " + truncateField(item.BusinessValue, summaryBusinessValueLimit) + "\n")
	}
	if item.AcceptanceCriteria != "" {
		sb.WriteString("   Acceptance criteria: " + truncateField(item.AcceptanceCriteria, summaryAcceptanceLimit) + "\n")
	}
	sb.WriteString("\n")
}

// truncateField caps a prompt field at max characters, marking the cut.
func truncateField(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
