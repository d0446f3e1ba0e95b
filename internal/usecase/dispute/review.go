package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

// Reviewer проводит автоматическое рассмотрение оплаченного спора.
// Сбой оракула не блокирует спор: он уходит к медиатору.
type Reviewer struct {
	disputes
	oracle gateway.DisputeOracle
}

func NewReviewer(deps Deps, oracle gateway.DisputeOracle) *Reviewer {
	return &Reviewer{disputes: newDisputes(deps), oracle: oracle}
}

func (r *Reviewer) Execute(ctx context.Context, disputeID uuid.UUID) (*entity.Dispute, error) {
	d, p, err := r.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != valueobject.DisputeStatusPendingReview {
		return d, nil
	}

	analysis := r.analyze(ctx, p, d)

	d, err = r.mutate(ctx, disputeID, func(d *entity.Dispute, now time.Time) error {
		if analysis != nil {
			analysis.AnalyzedAt = now
		}
		return d.ApplyReview(analysis, r.Policy.ReviewThreshold, now)
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"aiAvailable": analysis != nil}
	if analysis != nil {
		payload["recommendedResolution"] = analysis.RecommendedResolution
	}
	r.emit(ctx, p, d, "dispute.reviewed", valueobject.SystemActor(), valueobject.DisputeStatusPendingReview, payload)
	return d, nil
}

func (r *Reviewer) analyze(ctx context.Context, p *entity.Project, d *entity.Dispute) *entity.AIAnalysis {
	if r.oracle == nil {
		return nil
	}
	m, err := p.Milestone(d.MilestoneID)
	if err != nil {
		return nil
	}
	files := make([]string, 0, len(d.Evidence))
	for _, e := range d.Evidence {
		files = append(files, e.Filename)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Policy.OracleTimeout)
	defer cancel()

	res, err := r.oracle.AnalyzeDispute(ctx, gateway.DisputeContext{
		ProjectTitle:         p.Title,
		ProjectDescription:   p.Description,
		MilestoneTitle:       m.Title,
		MilestoneDescription: m.Description,
		AcceptanceCriteria:   m.AcceptanceCriteria,
		Amount:               valueobject.ToDecimal(m.Amount, m.Currency),
		Currency:             string(m.Currency),
		Reason:               d.Reason,
		RaisedByClient:       p.IsClient(d.RaisedBy),
		SubmissionNotes:      m.SubmissionNotes,
		Deliverables:         m.Deliverables,
		EvidenceFiles:        files,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{"dispute_id": d.ID}).WithError(err).Warn("анализ спора недоступен, спор передаётся медиатору")
		return nil
	}
	return &entity.AIAnalysis{
		FreelancerConfidence:  res.ConfidenceScore.Freelancer,
		ClientConfidence:      res.ConfidenceScore.Client,
		RecommendedResolution: res.RecommendedResolution,
		KeyIssues:             res.KeyIssues,
		Reasoning:             res.Reasoning,
	}
}
