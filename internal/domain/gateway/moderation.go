package gateway

import "context"

type ContentKind string

const (
	ContentKindProject   ContentKind = "project"
	ContentKindMilestone ContentKind = "milestone"
	ContentKindDispute   ContentKind = "dispute"
	ContentKindMessage   ContentKind = "message"
	ContentKindAppeal    ContentKind = "appeal"
)

type ModerationContent struct {
	Title       string
	Description string
	Reason      string
	Evidence    []string
}

type ModerationResult struct {
	IsApproved bool
	Message    string
}

type ContentModerator interface {
	Moderate(ctx context.Context, kind ContentKind, content ModerationContent) (ModerationResult, error)
}
