package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/repository"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

type projectRow struct {
	ID                      uuid.UUID                     `db:"id"`
	ClientID                uuid.UUID                     `db:"client_id"`
	FreelancerID            *uuid.UUID                    `db:"freelancer_id"`
	FreelancerPayoutAccount string                        `db:"freelancer_payout_account"`
	Title                   string                        `db:"title"`
	Description             string                        `db:"description"`
	Category                string                        `db:"category"`
	Budget                  int64                         `db:"budget"`
	Currency                string                        `db:"currency"`
	Deadline                *time.Time                    `db:"deadline"`
	Status                  string                        `db:"status"`
	EscrowStatus            string                        `db:"escrow_status"`
	EscrowTotalHeld         int64                         `db:"escrow_total_held"`
	EscrowTotalReleased     int64                         `db:"escrow_total_released"`
	EscrowTotalRefunded     int64                         `db:"escrow_total_refunded"`
	EscrowRemaining         int64                         `db:"escrow_remaining"`
	PaymentSchedule         JSONB[entity.PaymentSchedule] `db:"payment_schedule"`
	ActivityLog             JSONB[[]entity.ActivityEntry] `db:"activity_log"`
	Claim                   JSONB[*entity.OperationClaim] `db:"claim"`
	DuplicatedFrom          *uuid.UUID                    `db:"duplicated_from"`
	Version                 int64                         `db:"version"`
	CreatedAt               time.Time                     `db:"created_at"`
	UpdatedAt               time.Time                     `db:"updated_at"`
}

type milestoneRow struct {
	ID                 uuid.UUID                       `db:"id"`
	ProjectID          uuid.UUID                       `db:"project_id"`
	Position           int                             `db:"position"`
	Title              string                          `db:"title"`
	Description        string                          `db:"description"`
	AcceptanceCriteria string                          `db:"acceptance_criteria"`
	Amount             int64                           `db:"amount"`
	Currency           string                          `db:"currency"`
	Deadline           *time.Time                      `db:"deadline"`
	Status             string                          `db:"status"`
	Deliverables       JSONB[[]string]                 `db:"deliverables"`
	SubmissionNotes    string                          `db:"submission_notes"`
	RevisionHistory    JSONB[[]entity.RevisionRequest] `db:"revision_history"`
	AutoApproved       bool                            `db:"auto_approved"`
	Released           int64                           `db:"released"`
	Refunded           int64                           `db:"refunded"`
	StartedAt          *time.Time                      `db:"started_at"`
	SubmittedAt        *time.Time                      `db:"submitted_at"`
	ApprovedAt         *time.Time                      `db:"approved_at"`
	CreatedAt          time.Time                       `db:"created_at"`
	UpdatedAt          time.Time                       `db:"updated_at"`
}

const projectColumns = `id, client_id, freelancer_id, freelancer_payout_account, title, description, category,
	budget, currency, deadline, status, escrow_status, escrow_total_held, escrow_total_released,
	escrow_total_refunded, escrow_remaining, payment_schedule, activity_log, claim, duplicated_from,
	version, created_at, updated_at`

const milestoneColumns = `id, project_id, position, title, description, acceptance_criteria, amount, currency,
	deadline, status, deliverables, submission_notes, revision_history, auto_approved, released, refunded,
	started_at, submitted_at, approved_at, created_at, updated_at`

const upsertMilestoneSQL = `
	INSERT INTO milestones (` + milestoneColumns + `)
	VALUES (:id, :project_id, :position, :title, :description, :acceptance_criteria, :amount, :currency,
		:deadline, :status, :deliverables, :submission_notes, :revision_history, :auto_approved, :released,
		:refunded, :started_at, :submitted_at, :approved_at, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		acceptance_criteria = EXCLUDED.acceptance_criteria,
		deadline = EXCLUDED.deadline,
		status = EXCLUDED.status,
		deliverables = EXCLUDED.deliverables,
		submission_notes = EXCLUDED.submission_notes,
		revision_history = EXCLUDED.revision_history,
		auto_approved = EXCLUDED.auto_approved,
		released = EXCLUDED.released,
		refunded = EXCLUDED.refunded,
		started_at = EXCLUDED.started_at,
		submitted_at = EXCLUDED.submitted_at,
		approved_at = EXCLUDED.approved_at,
		updated_at = EXCLUDED.updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *entity.Project) error {
	row := toProjectRow(p)
	row.Version = 1
	err := withTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `INSERT INTO projects (` + projectColumns + `)
			VALUES (:id, :client_id, :freelancer_id, :freelancer_payout_account, :title, :description, :category,
				:budget, :currency, :deadline, :status, :escrow_status, :escrow_total_held, :escrow_total_released,
				:escrow_total_refunded, :escrow_remaining, :payment_schedule, :activity_log, :claim, :duplicated_from,
				:version, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			if isUniqueViolation(err) {
				return apperror.New(apperror.ErrCodeConflict, "проект уже существует")
			}
			return dbError(err, "не удалось создать проект")
		}
		return upsertMilestones(ctx, tx, p.Milestones)
	})
	if err != nil {
		return err
	}
	p.Version = 1
	return nil
}

// Update сохраняет агрегат, только если версия в базе совпадает с p.Version.
func (r *ProjectRepository) Update(ctx context.Context, p *entity.Project) error {
	row := toProjectRow(p)
	err := withTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `UPDATE projects SET
				freelancer_id = :freelancer_id,
				freelancer_payout_account = :freelancer_payout_account,
				title = :title,
				description = :description,
				category = :category,
				budget = :budget,
				deadline = :deadline,
				status = :status,
				escrow_status = :escrow_status,
				escrow_total_held = :escrow_total_held,
				escrow_total_released = :escrow_total_released,
				escrow_total_refunded = :escrow_total_refunded,
				escrow_remaining = :escrow_remaining,
				payment_schedule = :payment_schedule,
				activity_log = :activity_log,
				claim = :claim,
				version = version + 1,
				updated_at = :updated_at
			WHERE id = :id AND version = :version`
		res, err := tx.NamedExecContext(ctx, query, row)
		if err != nil {
			return dbError(err, "не удалось обновить проект")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dbError(err, "не удалось проверить результат обновления проекта")
		}
		if n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, p.ID); err != nil {
				return dbError(err, "не удалось проверить проект")
			}
			if !exists {
				return apperror.ErrProjectNotFound
			}
			return repository.ErrVersionConflict
		}
		return upsertMilestones(ctx, tx, p.Milestones)
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func upsertMilestones(ctx context.Context, tx *sqlx.Tx, milestones []*entity.Milestone) error {
	for _, m := range milestones {
		if _, err := tx.NamedExecContext(ctx, upsertMilestoneSQL, toMilestoneRow(m)); err != nil {
			return dbError(err, "не удалось сохранить этап")
		}
	}
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	var row projectRow
	err := r.db.GetContext(ctx, &row, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, dbError(err, "не удалось получить проект")
	}
	out, err := r.attachMilestones(ctx, []projectRow{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *ProjectRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, filter repository.ProjectFilter) ([]*entity.Project, error) {
	var rows []projectRow
	query := `SELECT ` + projectColumns + ` FROM projects
		WHERE (client_id = $1 OR freelancer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT NULLIF($3::int, 0) OFFSET $4`
	if err := r.db.SelectContext(ctx, &rows, query, userID, filter.Status, filter.Limit, filter.Offset); err != nil {
		return nil, dbError(err, "не удалось получить список проектов")
	}
	return r.attachMilestones(ctx, rows)
}

func (r *ProjectRepository) ListAwaitingReview(ctx context.Context, limit int) ([]*entity.Project, error) {
	var rows []projectRow
	query := `SELECT ` + projectColumns + ` FROM projects p
		WHERE p.status = ANY($1)
		  AND EXISTS (SELECT 1 FROM milestones m WHERE m.project_id = p.id AND m.status = $2)
		ORDER BY p.updated_at
		LIMIT NULLIF($3::int, 0)`
	statuses := pq.StringArray{string(valueobject.ProjectStatusActive), string(valueobject.ProjectStatusDisputed)}
	err := r.db.SelectContext(ctx, &rows, query, statuses, string(valueobject.MilestoneStatusSubmitted), limit)
	if err != nil {
		return nil, dbError(err, "не удалось получить проекты на проверке")
	}
	return r.attachMilestones(ctx, rows)
}

// attachMilestones загружает этапы всех проектов одним запросом.
func (r *ProjectRepository) attachMilestones(ctx context.Context, rows []projectRow) ([]*entity.Project, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var mrows []milestoneRow
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE project_id = ANY($1) ORDER BY project_id, position`
	if err := r.db.SelectContext(ctx, &mrows, query, pq.Array(ids)); err != nil {
		return nil, dbError(err, "не удалось получить этапы")
	}
	byProject := make(map[uuid.UUID][]*entity.Milestone, len(rows))
	for _, m := range mrows {
		byProject[m.ProjectID] = append(byProject[m.ProjectID], m.toEntity())
	}
	out := make([]*entity.Project, 0, len(rows))
	for _, row := range rows {
		p := row.toEntity()
		p.Milestones = byProject[row.ID]
		out = append(out, p)
	}
	return out, nil
}

func toProjectRow(p *entity.Project) projectRow {
	return projectRow{
		ID:                      p.ID,
		ClientID:                p.ClientID,
		FreelancerID:            p.FreelancerID,
		FreelancerPayoutAccount: p.FreelancerPayoutAccount,
		Title:                   p.Title,
		Description:             p.Description,
		Category:                p.Category,
		Budget:                  p.Budget,
		Currency:                string(p.Currency),
		Deadline:                p.Deadline,
		Status:                  string(p.Status),
		EscrowStatus:            string(p.Escrow.Status),
		EscrowTotalHeld:         p.Escrow.TotalHeld,
		EscrowTotalReleased:     p.Escrow.TotalReleased,
		EscrowTotalRefunded:     p.Escrow.TotalRefunded,
		EscrowRemaining:         p.Escrow.Remaining,
		PaymentSchedule:         jsonb(p.PaymentSchedule),
		ActivityLog:             jsonb(p.ActivityLog),
		Claim:                   jsonb(p.Claim),
		DuplicatedFrom:          p.DuplicatedFrom,
		Version:                 p.Version,
		CreatedAt:               p.CreatedAt,
		UpdatedAt:               p.UpdatedAt,
	}
}

func (row projectRow) toEntity() *entity.Project {
	return &entity.Project{
		ID:                      row.ID,
		ClientID:                row.ClientID,
		FreelancerID:            row.FreelancerID,
		FreelancerPayoutAccount: row.FreelancerPayoutAccount,
		Title:                   row.Title,
		Description:             row.Description,
		Category:                row.Category,
		Budget:                  row.Budget,
		Currency:                valueobject.Currency(row.Currency),
		Deadline:                row.Deadline,
		Status:                  valueobject.ProjectStatus(row.Status),
		Escrow: entity.Escrow{
			Status:        valueobject.EscrowStatus(row.EscrowStatus),
			TotalHeld:     row.EscrowTotalHeld,
			TotalReleased: row.EscrowTotalReleased,
			TotalRefunded: row.EscrowTotalRefunded,
			Remaining:     row.EscrowRemaining,
		},
		PaymentSchedule: row.PaymentSchedule.V,
		ActivityLog:     row.ActivityLog.V,
		Claim:           row.Claim.V,
		DuplicatedFrom:  row.DuplicatedFrom,
		Version:         row.Version,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

func toMilestoneRow(m *entity.Milestone) milestoneRow {
	deliverables := m.Deliverables
	if deliverables == nil {
		deliverables = []string{}
	}
	history := m.RevisionHistory
	if history == nil {
		history = []entity.RevisionRequest{}
	}
	return milestoneRow{
		ID:                 m.ID,
		ProjectID:          m.ProjectID,
		Position:           m.Position,
		Title:              m.Title,
		Description:        m.Description,
		AcceptanceCriteria: m.AcceptanceCriteria,
		Amount:             m.Amount,
		Currency:           string(m.Currency),
		Deadline:           m.Deadline,
		Status:             string(m.Status),
		Deliverables:       jsonb(deliverables),
		SubmissionNotes:    m.SubmissionNotes,
		RevisionHistory:    jsonb(history),
		AutoApproved:       m.AutoApproved,
		Released:           m.Released,
		Refunded:           m.Refunded,
		StartedAt:          m.StartedAt,
		SubmittedAt:        m.SubmittedAt,
		ApprovedAt:         m.ApprovedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func (row milestoneRow) toEntity() *entity.Milestone {
	return &entity.Milestone{
		ID:                 row.ID,
		ProjectID:          row.ProjectID,
		Position:           row.Position,
		Title:              row.Title,
		Description:        row.Description,
		AcceptanceCriteria: row.AcceptanceCriteria,
		Amount:             row.Amount,
		Currency:           valueobject.Currency(row.Currency),
		Deadline:           row.Deadline,
		Status:             valueobject.MilestoneStatus(row.Status),
		Deliverables:       row.Deliverables.V,
		SubmissionNotes:    row.SubmissionNotes,
		RevisionHistory:    row.RevisionHistory.V,
		AutoApproved:       row.AutoApproved,
		Released:           row.Released,
		Refunded:           row.Refunded,
		StartedAt:          row.StartedAt,
		SubmittedAt:        row.SubmittedAt,
		ApprovedAt:         row.ApprovedAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}
