package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

func TestRuleModerator(t *testing.T) {
	m := NewRuleModerator([]string{" Казино ", ""})
	ctx := context.Background()

	tests := []struct {
		name     string
		kind     gateway.ContentKind
		content  gateway.ModerationContent
		approved bool
	}{
		{"обычный проект", gateway.ContentKindProject, gateway.ModerationContent{Title: "Лендинг", Description: "Сделать лендинг"}, true},
		{"запрещённое слово", gateway.ContentKindProject, gateway.ModerationContent{Title: "Сайт КАЗИНО"}, false},
		{"слово в доказательствах", gateway.ContentKindDispute, gateway.ModerationContent{Reason: "причина", Evidence: []string{"казино.png"}}, false},
		{"email в сообщении", gateway.ContentKindMessage, gateway.ModerationContent{Description: "пишите на dev@example.com"}, false},
		{"телефон в сообщении", gateway.ContentKindMessage, gateway.ModerationContent{Description: "звоните +7 (999) 123-45-67"}, false},
		{"email в описании проекта", gateway.ContentKindProject, gateway.ModerationContent{Description: "support@example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Moderate(ctx, tt.kind, tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.approved, res.IsApproved)
			if !tt.approved {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestRuleModeratorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRuleModerator(nil).Moderate(ctx, gateway.ContentKindMessage, gateway.ModerationContent{})
	assert.Error(t, err)
}
