package moderation

import (
	"context"
	"regexp"
	"strings"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{9,}\d`)
)

// RuleModerator - модератор на правилах: запрещённые слова и обмен контактами в обход платформы.
type RuleModerator struct {
	blocked []string
}

func NewRuleModerator(blockedTerms []string) *RuleModerator {
	terms := make([]string, 0, len(blockedTerms))
	for _, t := range blockedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &RuleModerator{blocked: terms}
}

func (m *RuleModerator) Moderate(ctx context.Context, kind gateway.ContentKind, content gateway.ModerationContent) (gateway.ModerationResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.ModerationResult{}, err
	}

	parts := []string{content.Title, content.Description, content.Reason}
	parts = append(parts, content.Evidence...)
	text := strings.ToLower(strings.Join(parts, "\n"))

	for _, term := range m.blocked {
		if strings.Contains(text, term) {
			return gateway.ModerationResult{Message: "контент содержит недопустимые выражения"}, nil
		}
	}

	// контакты запрещены только в переписке, в описаниях их ловит ручная модерация
	if kind == gateway.ContentKindMessage {
		if emailPattern.MatchString(text) || phonePattern.MatchString(text) {
			return gateway.ModerationResult{Message: "обмен контактами в обход платформы запрещён"}, nil
		}
	}

	return gateway.ModerationResult{IsApproved: true}, nil
}
