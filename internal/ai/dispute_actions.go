package ai

import (
	"context"
	"fmt"
	"strings"
)

// DisputeBrief - всё, что модель видит о споре по этапу.
type DisputeBrief struct {
	ProjectTitle         string
	ProjectDescription   string
	MilestoneTitle       string
	MilestoneDescription string
	AcceptanceCriteria   string
	Amount               string
	Currency             string
	Reason               string
	RaisedByClient       bool
	SubmissionNotes      string
	Deliverables         []string
	EvidenceFiles        []string
}

type DisputeVerdict struct {
	ConfidenceScore struct {
		Freelancer float64 `json:"freelancer"`
		Client     float64 `json:"client"`
	} `json:"confidenceScore"`
	RecommendedResolution string   `json:"recommendedResolution"`
	KeyIssues             []string `json:"keyIssues"`
	Reasoning             string   `json:"reasoning"`
}

var knownRecommendations = map[string]bool{
	"full_payment":      true,
	"partial_payment":   true,
	"full_refund":       true,
	"revision_required": true,
}

const disputeSystemPrompt = `Ты беспристрастный эксперт по спорам на фриланс-платформе с эскроу.
Ты только советуешь и не принимаешь решений о деньгах.
Отвечай строго JSON-объектом без пояснений:
{"confidenceScore":{"freelancer":0,"client":0},"recommendedResolution":"full_payment|partial_payment|full_refund|revision_required","keyIssues":["..."],"reasoning":"..."}
confidenceScore - уверенность от 0 до 100, что права соответствующая сторона.`

// AnalyzeDispute просит модель оценить позиции сторон. Фолбэка нет: без ответа модели спор уходит к медиатору.
func (c *Client) AnalyzeDispute(ctx context.Context, brief DisputeBrief) (*DisputeVerdict, error) {
	raw, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: disputeSystemPrompt},
		{Role: "user", Content: formatDisputeBrief(brief)},
	}, 800, 0.2)
	if err != nil {
		return nil, err
	}

	var verdict DisputeVerdict
	if err := extractJSON(raw, &verdict); err != nil {
		return nil, err
	}

	verdict.ConfidenceScore.Freelancer = clampConfidence(verdict.ConfidenceScore.Freelancer)
	verdict.ConfidenceScore.Client = clampConfidence(verdict.ConfidenceScore.Client)
	verdict.RecommendedResolution = strings.ToLower(strings.TrimSpace(verdict.RecommendedResolution))
	if !knownRecommendations[verdict.RecommendedResolution] {
		verdict.RecommendedResolution = ""
	}
	verdict.Reasoning = strings.TrimSpace(verdict.Reasoning)

	return &verdict, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatDisputeBrief(b DisputeBrief) string {
	raisedBy := "исполнитель"
	if b.RaisedByClient {
		raisedBy = "заказчик"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Проект: %s\n", b.ProjectTitle)
	if b.ProjectDescription != "" {
		fmt.Fprintf(&sb, "Описание проекта: %s\n", b.ProjectDescription)
	}
	fmt.Fprintf(&sb, "Этап: %s (%s %s)\n", b.MilestoneTitle, b.Amount, b.Currency)
	if b.MilestoneDescription != "" {
		fmt.Fprintf(&sb, "Описание этапа: %s\n", b.MilestoneDescription)
	}
	if b.AcceptanceCriteria != "" {
		fmt.Fprintf(&sb, "Критерии приёмки: %s\n", b.AcceptanceCriteria)
	}
	fmt.Fprintf(&sb, "Спор открыл: %s\n", raisedBy)
	fmt.Fprintf(&sb, "Причина: %s\n", b.Reason)
	if b.SubmissionNotes != "" {
		fmt.Fprintf(&sb, "Комментарий к сдаче: %s\n", b.SubmissionNotes)
	}
	if len(b.Deliverables) > 0 {
		fmt.Fprintf(&sb, "Результаты: %s\n", strings.Join(b.Deliverables, ", "))
	}
	if len(b.EvidenceFiles) > 0 {
		fmt.Fprintf(&sb, "Доказательства: %s\n", strings.Join(b.EvidenceFiles, ", "))
	}
	return sb.String()
}
