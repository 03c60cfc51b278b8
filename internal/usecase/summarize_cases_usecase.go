package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"case-retriever/internal/domain"
)

// SummarizeCasesInput defines the input parameters for SummarizeCases.
type SummarizeCasesInput struct {
	Results []domain.CaseDocument
	// SummaryType is concise or detailed; empty means concise.
	SummaryType string
}

// SummarizeCasesOutput defines the output for SummarizeCases.
type SummarizeCasesOutput struct {
	Summary string
	Model   string
	Usage   domain.CompletionUsage
	Cost    float64
	// Warnings carries non-fatal oddities in the completion payload, such as
	// a truncated JSON body.
	Warnings []string
}

// SummarizeCasesUsecase sends the surviving candidates to the remote language
// model and returns the digest plus metered usage.
type SummarizeCasesUsecase interface {
	Execute(ctx context.Context, input SummarizeCasesInput) (*SummarizeCasesOutput, error)
}

type summarizeCasesUsecase struct {
	completer domain.CompletionClient
	prompts   SummaryPromptBuilder
	maxItems  int
	logger    *slog.Logger
}

// NewSummarizeCasesUsecase creates a new SummarizeCasesUsecase. maxItems caps
// how many documents reach the prompt regardless of the caller's list size.
func NewSummarizeCasesUsecase(completer domain.CompletionClient, maxItems int, logger *slog.Logger) SummarizeCasesUsecase {
	return &summarizeCasesUsecase{
		completer: completer,
		prompts:   NewSummaryPromptBuilder(),
		maxItems:  maxItems,
		logger:    logger,
	}
}

func (u *summarizeCasesUsecase) Execute(ctx context.Context, input SummarizeCasesInput) (*SummarizeCasesOutput, error) {
	if len(input.Results) == 0 {
		return nil, domain.Invalid("results are required")
	}
	style, err := ParseSummaryStyle(input.SummaryType)
	if err != nil {
		return nil, err
	}

	items := input.Results
	if len(items) > u.maxItems {
		items = items[:u.maxItems]
	}

	maxTokens := summaryMaxTokensConcise
	if style == SummaryStyleDetailed {
		maxTokens = summaryMaxTokensDetailed
	}

	messages := u.prompts.Build(items, style)
	completion, err := u.completer.Complete(ctx, messages, maxTokens)
	if err != nil {
		return nil, fmt.Errorf("summarize cases: %w", err)
	}

	summary, warnings := extractSummary(completion.Text)
	if summary == "" {
		return nil, domain.WrapError(domain.ErrSummarizerFailure, "summarize cases", errors.New("completion produced no usable summary"))
	}

	u.logger.Info("summarization_completed",
		slog.String("style", string(style)),
		slog.Int("items", len(items)),
		slog.Int64("tokens", completion.Usage.TotalTokens),
		slog.Float64("cost", completion.Cost),
		slog.Int("warnings", len(warnings)),
	)
	return &SummarizeCasesOutput{
		Summary:  summary,
		Model:    completion.Model,
		Usage:    completion.Usage,
		Cost:     completion.Cost,
		Warnings: warnings,
	}, nil
}

// extractSummary lifts the digest out of the completion text. The model is
// asked for {"summary": "..."} but may wrap it in a markdown fence or return
// it truncated; both are recovered from, with a warning, rather than failed.
func extractSummary(raw string) (string, []string) {
	var warnings []string

	text := stripCodeFence(raw)
	if !strings.HasPrefix(text, "{") {
		return text, warnings
	}

	if !strings.HasSuffix(text, "}") {
		warnings = append(warnings, "completion JSON appears truncated")
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		if len(warnings) == 0 {
			warnings = append(warnings, "completion JSON did not parse, using raw text")
		}
		return text, warnings
	}
	if strings.TrimSpace(payload.Summary) == "" {
		warnings = append(warnings, "completion JSON carried no summary field, using raw text")
		return text, warnings
	}
	return strings.TrimSpace(payload.Summary), warnings
}

// stripCodeFence unwraps ```lang ... ``` fencing the completion service
// sometimes adds around JSON bodies.
func stripCodeFence(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	i := 0
	for i < len(text) && isFenceTagByte(text[i]) {
		i++
	}
	text = text[i:]
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func isFenceTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
