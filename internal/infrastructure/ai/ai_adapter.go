package ai

import (
	"context"

	oldAI "github.com/ignatzorin/escrow-backend/internal/ai"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
)

// DisputeOracleAdapter переводит порт оракула на клиент OpenAI-совместимого API.
type DisputeOracleAdapter struct {
	client *oldAI.Client
}

func NewDisputeOracleAdapter(client *oldAI.Client) *DisputeOracleAdapter {
	if client == nil {
		return nil
	}
	return &DisputeOracleAdapter{client: client}
}

func (a *DisputeOracleAdapter) AnalyzeDispute(ctx context.Context, dc gateway.DisputeContext) (gateway.DisputeAnalysis, error) {
	verdict, err := a.client.AnalyzeDispute(ctx, toBrief(dc))
	if err != nil {
		return gateway.DisputeAnalysis{}, err
	}
	return gateway.DisputeAnalysis{
		ConfidenceScore: gateway.ConfidenceScore{
			Freelancer: verdict.ConfidenceScore.Freelancer,
			Client:     verdict.ConfidenceScore.Client,
		},
		RecommendedResolution: verdict.RecommendedResolution,
		KeyIssues:             verdict.KeyIssues,
		Reasoning:             verdict.Reasoning,
	}, nil
}

func toBrief(dc gateway.DisputeContext) oldAI.DisputeBrief {
	return oldAI.DisputeBrief{
		ProjectTitle:         dc.ProjectTitle,
		ProjectDescription:   dc.ProjectDescription,
		MilestoneTitle:       dc.MilestoneTitle,
		MilestoneDescription: dc.MilestoneDescription,
		AcceptanceCriteria:   dc.AcceptanceCriteria,
		Amount:               dc.Amount.String(),
		Currency:             dc.Currency,
		Reason:               dc.Reason,
		RaisedByClient:       dc.RaisedByClient,
		SubmissionNotes:      dc.SubmissionNotes,
		Deliverables:         dc.Deliverables,
		EvidenceFiles:        dc.EvidenceFiles,
	}
}
