package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type DisputeContext struct {
	ProjectTitle         string
	ProjectDescription   string
	MilestoneTitle       string
	MilestoneDescription string
	AcceptanceCriteria   string
	Amount               decimal.Decimal
	Currency             string
	Reason               string
	RaisedByClient       bool
	SubmissionNotes      string
	Deliverables         []string
	EvidenceFiles        []string
}

type ConfidenceScore struct {
	Freelancer float64 `json:"freelancer"`
	Client     float64 `json:"client"`
}

type DisputeAnalysis struct {
	ConfidenceScore       ConfidenceScore `json:"confidenceScore"`
	RecommendedResolution string          `json:"recommendedResolution"`
	KeyIssues             []string        `json:"keyIssues"`
	Reasoning             string          `json:"reasoning"`
}

// DisputeOracle - советник, никогда не принимает решений о деньгах.
type DisputeOracle interface {
	AnalyzeDispute(ctx context.Context, dc DisputeContext) (DisputeAnalysis, error)
}
