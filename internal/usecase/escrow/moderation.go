package escrow

import (
	"context"

	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Moderate проверяет контент перед созданием сущности.
// Недоступный модератор блокирует операцию: ошибка повторяемая.
func Moderate(ctx context.Context, m gateway.ContentModerator, kind gateway.ContentKind, content gateway.ModerationContent) error {
	if m == nil {
		return apperror.External(nil, "модерация контента недоступна")
	}
	res, err := m.Moderate(ctx, kind, content)
	if err != nil {
		logger.WithComponent("moderation").WithField("kind", kind).WithError(err).Warn("модератор недоступен")
		return apperror.External(err, "модерация контента недоступна, повторите позже")
	}
	if !res.IsApproved {
		msg := res.Message
		if msg == "" {
			msg = "контент не прошёл модерацию"
		}
		return apperror.Validation(msg)
	}
	return nil
}
