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

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

type disputeRow struct {
	ID                   uuid.UUID                      `db:"id"`
	ProjectID            uuid.UUID                      `db:"project_id"`
	MilestoneID          uuid.UUID                      `db:"milestone_id"`
	RaisedBy             uuid.UUID                      `db:"raised_by"`
	Reason               string                         `db:"reason"`
	Status               string                         `db:"status"`
	Evidence             JSONB[[]entity.Evidence]       `db:"evidence"`
	Fee                  JSONB[entity.DisputeFee]       `db:"fee"`
	AIAnalysis           JSONB[*entity.AIAnalysis]      `db:"ai_analysis"`
	MediatorID           *uuid.UUID                     `db:"mediator_id"`
	MediatorAssignedAt   *time.Time                     `db:"mediator_assigned_at"`
	MediationStartedAt   *time.Time                     `db:"mediation_started_at"`
	ArbitratorID         *uuid.UUID                     `db:"arbitrator_id"`
	ArbitratorAssignedAt *time.Time                     `db:"arbitrator_assigned_at"`
	Messages             JSONB[[]entity.DisputeMessage] `db:"messages"`
	Resolution           JSONB[*entity.Resolution]      `db:"resolution"`
	Timeline             JSONB[[]entity.TimelineEntry]  `db:"timeline"`
	Appeal               JSONB[*entity.Appeal]          `db:"appeal"`
	Claim                JSONB[*entity.OperationClaim]  `db:"claim"`
	Version              int64                          `db:"version"`
	CreatedAt            time.Time                      `db:"created_at"`
	UpdatedAt            time.Time                      `db:"updated_at"`
}

const disputeColumns = `id, project_id, milestone_id, raised_by, reason, status, evidence, fee, ai_analysis,
	mediator_id, mediator_assigned_at, mediation_started_at, arbitrator_id, arbitrator_assigned_at,
	messages, resolution, timeline, appeal, claim, version, created_at, updated_at`

// openStatusFilter исключает решённые споры; на нём же построен частичный уникальный индекс.
const openStatusFilter = `status <> 'RESOLVED'`

func (r *DisputeRepository) Create(ctx context.Context, d *entity.Dispute) error {
	row := toDisputeRow(d)
	row.Version = 1
	query := `INSERT INTO disputes (` + disputeColumns + `)
		VALUES (:id, :project_id, :milestone_id, :raised_by, :reason, :status, :evidence, :fee, :ai_analysis,
			:mediator_id, :mediator_assigned_at, :mediation_started_at, :arbitrator_id, :arbitrator_assigned_at,
			:messages, :resolution, :timeline, :appeal, :claim, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "по этапу уже открыт спор")
		}
		return dbError(err, "не удалось создать спор")
	}
	d.Version = 1
	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, d *entity.Dispute) error {
	query := `UPDATE disputes SET
			status = :status,
			evidence = :evidence,
			fee = :fee,
			ai_analysis = :ai_analysis,
			mediator_id = :mediator_id,
			mediator_assigned_at = :mediator_assigned_at,
			mediation_started_at = :mediation_started_at,
			arbitrator_id = :arbitrator_id,
			arbitrator_assigned_at = :arbitrator_assigned_at,
			messages = :messages,
			resolution = :resolution,
			timeline = :timeline,
			appeal = :appeal,
			claim = :claim,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`
	res, err := r.db.NamedExecContext(ctx, query, toDisputeRow(d))
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrCodeConflict, "по этапу уже открыт спор")
		}
		return dbError(err, "не удалось обновить спор")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить результат обновления спора")
	}
	if n == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, d.ID); err != nil {
			return dbError(err, "не удалось проверить спор")
		}
		if !exists {
			return apperror.ErrDisputeNotFound
		}
		return repository.ErrVersionConflict
	}
	d.Version++
	return nil
}

func (r *DisputeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error) {
	return r.getOne(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
}

func (r *DisputeRepository) FindOpenByMilestone(ctx context.Context, milestoneID uuid.UUID) (*entity.Dispute, error) {
	return r.getOne(ctx, `SELECT `+disputeColumns+` FROM disputes
		WHERE milestone_id = $1 AND `+openStatusFilter+` LIMIT 1`, milestoneID)
}

func (r *DisputeRepository) LatestByRaiser(ctx context.Context, milestoneID, raisedBy uuid.UUID) (*entity.Dispute, error) {
	return r.getOne(ctx, `SELECT `+disputeColumns+` FROM disputes
		WHERE milestone_id = $1 AND raised_by = $2
		ORDER BY created_at DESC LIMIT 1`, milestoneID, raisedBy)
}

func (r *DisputeRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.Dispute, error) {
	return r.list(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE project_id = $1 ORDER BY created_at`, projectID)
}

func (r *DisputeRepository) ListByStatus(ctx context.Context, status valueobject.DisputeStatus, limit int) ([]*entity.Dispute, error) {
	statuses := []string{string(status)}
	if status == valueobject.DisputeStatusInArbitration {
		// старые записи могут хранить ESCALATED
		statuses = append(statuses, "ESCALATED")
	}
	return r.list(ctx, `SELECT `+disputeColumns+` FROM disputes
		WHERE status = ANY($1)
		ORDER BY updated_at
		LIMIT NULLIF($2::int, 0)`, pq.Array(statuses), limit)
}

func (r *DisputeRepository) CountOpenByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM disputes WHERE project_id = $1 AND `+openStatusFilter, projectID)
	if err != nil {
		return 0, dbError(err, "не удалось посчитать открытые споры")
	}
	return n, nil
}

func (r *DisputeRepository) getOne(ctx context.Context, query string, args ...any) (*entity.Dispute, error) {
	var row disputeRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, dbError(err, "не удалось получить спор")
	}
	return row.toEntity()
}

func (r *DisputeRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Dispute, error) {
	var rows []disputeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, dbError(err, "не удалось получить список споров")
	}
	out := make([]*entity.Dispute, 0, len(rows))
	for _, row := range rows {
		d, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func toDisputeRow(d *entity.Dispute) disputeRow {
	evidence := d.Evidence
	if evidence == nil {
		evidence = []entity.Evidence{}
	}
	messages := d.Messages
	if messages == nil {
		messages = []entity.DisputeMessage{}
	}
	timeline := d.Timeline
	if timeline == nil {
		timeline = []entity.TimelineEntry{}
	}
	return disputeRow{
		ID:                   d.ID,
		ProjectID:            d.ProjectID,
		MilestoneID:          d.MilestoneID,
		RaisedBy:             d.RaisedBy,
		Reason:               d.Reason,
		Status:               string(d.Status),
		Evidence:             jsonb(evidence),
		Fee:                  jsonb(d.Fee),
		AIAnalysis:           jsonb(d.AIAnalysis),
		MediatorID:           d.MediatorID,
		MediatorAssignedAt:   d.MediatorAssignedAt,
		MediationStartedAt:   d.MediationStartedAt,
		ArbitratorID:         d.ArbitratorID,
		ArbitratorAssignedAt: d.ArbitratorAssignedAt,
		Messages:             jsonb(messages),
		Resolution:           jsonb(d.Resolution),
		Timeline:             jsonb(timeline),
		Appeal:               jsonb(d.Appeal),
		Claim:                jsonb(d.Claim),
		Version:              d.Version,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func (row disputeRow) toEntity() (*entity.Dispute, error) {
	status, err := valueobject.NewDisputeStatus(row.Status)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "в базе некорректный статус спора")
	}
	return &entity.Dispute{
		ID:                   row.ID,
		ProjectID:            row.ProjectID,
		MilestoneID:          row.MilestoneID,
		RaisedBy:             row.RaisedBy,
		Reason:               row.Reason,
		Evidence:             row.Evidence.V,
		Status:               status,
		Fee:                  row.Fee.V,
		AIAnalysis:           row.AIAnalysis.V,
		MediatorID:           row.MediatorID,
		MediatorAssignedAt:   row.MediatorAssignedAt,
		MediationStartedAt:   row.MediationStartedAt,
		ArbitratorID:         row.ArbitratorID,
		ArbitratorAssignedAt: row.ArbitratorAssignedAt,
		Messages:             row.Messages.V,
		Resolution:           row.Resolution.V,
		Timeline:             row.Timeline.V,
		Appeal:               row.Appeal.V,
		Claim:                row.Claim.V,
		Version:              row.Version,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}, nil
}
