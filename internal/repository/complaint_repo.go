package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"citizen-voice/internal/model"
)

const complaintColumns = `id, title, description, category, location, citizen_id, assigned_agency,
	status, responses, history, created_at, updated_at`

type ComplaintRepository struct {
	pool *pgxpool.Pool
}

func NewComplaintRepository(pool *pgxpool.Pool) *ComplaintRepository {
	return &ComplaintRepository{pool: pool}
}

func scanComplaint(row pgx.Row) (model.Complaint, error) {
	var c model.Complaint
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Location, &c.CitizenID,
		&c.AssignedAgency, &c.Status, &c.Responses, &c.History, &c.CreatedAt, &c.UpdatedAt)
	if c.Responses == nil {
		c.Responses = []model.ComplaintResponse{}
	}
	if c.History == nil {
		c.History = []model.ComplaintHistory{}
	}
	return c, err
}

func (r *ComplaintRepository) Create(ctx context.Context, c model.Complaint) (model.Complaint, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Responses == nil {
		c.Responses = []model.ComplaintResponse{}
	}
	if c.History == nil {
		c.History = []model.ComplaintHistory{}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO complaints (`+complaintColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Title, c.Description, c.Category, c.Location, c.CitizenID, c.AssignedAgency,
		c.Status, c.Responses, c.History, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return model.Complaint{}, fmt.Errorf("create complaint: %w", err)
	}
	return c, nil
}

func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (model.Complaint, error) {
	c, err := scanComplaint(r.pool.QueryRow(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Complaint{}, model.ErrComplaintNotFound
	}
	if err != nil {
		return model.Complaint{}, fmt.Errorf("find complaint: %w", err)
	}
	return c, nil
}

func (r *ComplaintRepository) List(ctx context.Context, filter model.ComplaintFilter) ([]model.Complaint, error) {
	where := make([]string, 0)
	args := make([]any, 0)

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.CitizenID != "" {
		add("citizen_id = $%d", filter.CitizenID)
	}
	if filter.AssignedAgency != "" {
		add("assigned_agency = $%d", filter.AssignedAgency)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+complaintColumns+` FROM complaints `+whereClause+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	out := make([]model.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ComplaintRepository) Save(ctx context.Context, c model.Complaint) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE complaints
		 SET assigned_agency = $2, status = $3, responses = $4, history = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, c.AssignedAgency, c.Status, c.Responses, c.History, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save complaint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrComplaintNotFound
	}
	return nil
}

// AssignUnassigned hands every unassigned complaint of a category to agencyID.
func (r *ComplaintRepository) AssignUnassigned(ctx context.Context, category model.Category, agencyID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE complaints SET assigned_agency = $2, updated_at = now()
		 WHERE category = $1 AND assigned_agency = ''`, category, agencyID)
	if err != nil {
		return 0, fmt.Errorf("assign unassigned complaints: %w", err)
	}
	return tag.RowsAffected(), nil
}
