package entity

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneClaim(c *OperationClaim) *OperationClaim {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

// Clone возвращает независимую копию агрегата вместе с этапами.
func (p *Project) Clone() *Project {
	cp := *p
	cp.FreelancerID = cloneID(p.FreelancerID)
	cp.Deadline = cloneTime(p.Deadline)
	cp.Claim = cloneClaim(p.Claim)
	cp.DuplicatedFrom = cloneID(p.DuplicatedFrom)
	cp.Milestones = make([]*Milestone, len(p.Milestones))
	for i, m := range p.Milestones {
		cp.Milestones[i] = m.Clone()
	}
	cp.ActivityLog = make([]ActivityEntry, len(p.ActivityLog))
	for i, e := range p.ActivityLog {
		e.Details = maps.Clone(e.Details)
		cp.ActivityLog[i] = e
	}
	return &cp
}

func (m *Milestone) Clone() *Milestone {
	cp := *m
	cp.Deadline = cloneTime(m.Deadline)
	cp.Deliverables = slices.Clone(m.Deliverables)
	cp.RevisionHistory = slices.Clone(m.RevisionHistory)
	cp.StartedAt = cloneTime(m.StartedAt)
	cp.SubmittedAt = cloneTime(m.SubmittedAt)
	cp.ApprovedAt = cloneTime(m.ApprovedAt)
	return &cp
}

func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.MilestoneID = cloneID(t.MilestoneID)
	cp.DisputeID = cloneID(t.DisputeID)
	cp.FromUserID = cloneID(t.FromUserID)
	cp.ToUserID = cloneID(t.ToUserID)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	return &cp
}

func (d *Dispute) Clone() *Dispute {
	cp := *d
	cp.Evidence = slices.Clone(d.Evidence)
	cp.Fee.ClientPaidAt = cloneTime(d.Fee.ClientPaidAt)
	cp.Fee.FreelancerPaidAt = cloneTime(d.Fee.FreelancerPaidAt)
	if d.AIAnalysis != nil {
		a := *d.AIAnalysis
		a.KeyIssues = slices.Clone(d.AIAnalysis.KeyIssues)
		cp.AIAnalysis = &a
	}
	cp.MediatorID = cloneID(d.MediatorID)
	cp.MediatorAssignedAt = cloneTime(d.MediatorAssignedAt)
	cp.MediationStartedAt = cloneTime(d.MediationStartedAt)
	cp.ArbitratorID = cloneID(d.ArbitratorID)
	cp.ArbitratorAssignedAt = cloneTime(d.ArbitratorAssignedAt)
	cp.Messages = slices.Clone(d.Messages)
	if d.Resolution != nil {
		r := *d.Resolution
		cp.Resolution = &r
	}
	cp.Timeline = slices.Clone(d.Timeline)
	if d.Appeal != nil {
		a := *d.Appeal
		a.Evidence = slices.Clone(d.Appeal.Evidence)
		a.ReviewedBy = cloneID(d.Appeal.ReviewedBy)
		a.ReviewedAt = cloneTime(d.Appeal.ReviewedAt)
		if d.Appeal.PreviousResolution != nil {
			r := *d.Appeal.PreviousResolution
			a.PreviousResolution = &r
		}
		cp.Appeal = &a
	}
	cp.Claim = cloneClaim(d.Claim)
	return &cp
}
