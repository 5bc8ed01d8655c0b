package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchhub/internal/models"
)

const taskColumns = `
	id, title, description, priority, status,
	pickup_address, delivery_address, recipient,
	created_by, assigned_to,
	scheduled_pickup_time, scheduled_delivery_time,
	actual_pickup_time, actual_delivery_time,
	notes, proof_of_delivery, created_at, updated_at
`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// Create stores the task together with its first history entry.
func (r *TaskRepository) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if len(task.StatusHistory) != 1 {
		return models.Task{}, fmt.Errorf("create task: want exactly one initial history entry, got %d", len(task.StatusHistory))
	}
	pickup, delivery, recipient, proof, err := encodeTaskJSON(task)
	if err != nil {
		return models.Task{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Task{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertTask = `
		INSERT INTO tasks (
			id, title, description, priority, status,
			pickup_address, delivery_address, recipient,
			created_by, assigned_to,
			scheduled_pickup_time, scheduled_delivery_time,
			notes, proof_of_delivery, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15
		)
	`
	if _, err := tx.Exec(ctx, insertTask,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		pickup,
		delivery,
		recipient,
		task.CreatedBy,
		task.AssignedTo,
		task.ScheduledPickupTime,
		task.ScheduledDeliveryTime,
		task.Notes,
		proof,
		task.CreatedAt,
	); err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}

	first := task.StatusHistory[0]
	if _, err := tx.Exec(ctx, `
		INSERT INTO task_status_history (task_id, seq, status, updated_by, note, created_at)
		VALUES ($1, 1, $2, $3, $4, $5)
	`, task.ID, first.Status, first.UpdatedBy, first.Note, first.Timestamp); err != nil {
		return models.Task{}, fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, err
	}
	return r.GetByID(ctx, task.ID)
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return models.Task{}, err
	}
	history, err := r.history(ctx, []string{task.ID})
	if err != nil {
		return models.Task{}, err
	}
	task.StatusHistory = history[task.ID]
	return task, nil
}

// List returns matching tasks newest first, each with its full history.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	var ids []string
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		ids = append(ids, task.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return tasks, nil
	}

	history, err := r.history(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].StatusHistory = history[tasks[i].ID]
	}
	return tasks, nil
}

// Update writes the editable fields of task. Status, history and the
// delivery stamps are left alone.
func (r *TaskRepository) Update(ctx context.Context, task models.Task) (models.Task, error) {
	pickup, delivery, recipient, _, err := encodeTaskJSON(task)
	if err != nil {
		return models.Task{}, err
	}
	const query = `
		UPDATE tasks
		SET title = $2,
		    description = $3,
		    priority = $4,
		    pickup_address = $5,
		    delivery_address = $6,
		    recipient = $7,
		    assigned_to = $8,
		    scheduled_pickup_time = $9,
		    scheduled_delivery_time = $10,
		    notes = $11,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Priority,
		pickup,
		delivery,
		recipient,
		task.AssignedTo,
		task.ScheduledPickupTime,
		task.ScheduledDeliveryTime,
		task.Notes,
	)
	if err != nil {
		return models.Task{}, err
	}
	if cmd.RowsAffected() == 0 {
		return models.Task{}, ErrTaskNotFound
	}
	return r.GetByID(ctx, task.ID)
}

// ApplyTransition moves the task from tr.From to tr.To and appends one
// history entry, in a single transaction. The row is only touched while it
// is still in tr.From; otherwise ErrStatusConflict is returned.
func (r *TaskRepository) ApplyTransition(ctx context.Context, tr models.TaskTransition) (models.Task, error) {
	var proof any
	if !tr.ProofOfDelivery.Empty() {
		var err error
		if proof, err = jsonParam(tr.ProofOfDelivery); err != nil {
			return models.Task{}, err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Task{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const update = `
		UPDATE tasks
		SET status = $3,
		    actual_pickup_time = COALESCE(actual_pickup_time, $4),
		    actual_delivery_time = COALESCE(actual_delivery_time, $5),
		    proof_of_delivery = COALESCE($6::jsonb, proof_of_delivery),
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	cmd, err := tx.Exec(ctx, update, tr.TaskID, tr.From, tr.To, tr.ActualPickupTime, tr.ActualDeliveryTime, proof)
	if err != nil {
		return models.Task{}, fmt.Errorf("update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, tr.TaskID).Scan(&exists); err != nil {
			return models.Task{}, err
		}
		if !exists {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, ErrStatusConflict
	}

	const appendHistory = `
		INSERT INTO task_status_history (task_id, seq, status, updated_by, note, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5
		FROM task_status_history
		WHERE task_id = $1
	`
	if _, err := tx.Exec(ctx, appendHistory, tr.TaskID, tr.Change.Status, tr.Change.UpdatedBy, tr.Change.Note, tr.Change.Timestamp); err != nil {
		return models.Task{}, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Task{}, err
	}
	return r.GetByID(ctx, tr.TaskID)
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepository) history(ctx context.Context, taskIDs []string) (map[string][]models.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT task_id, status, updated_by, note, created_at
		FROM task_status_history
		WHERE task_id = ANY($1)
		ORDER BY task_id, seq
	`, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.StatusChange, len(taskIDs))
	for rows.Next() {
		var (
			taskID string
			change models.StatusChange
		)
		if err := rows.Scan(&taskID, &change.Status, &change.UpdatedBy, &change.Note, &change.Timestamp); err != nil {
			return nil, err
		}
		out[taskID] = append(out[taskID], change)
	}
	return out, rows.Err()
}

func encodeTaskJSON(task models.Task) (pickup, delivery, recipient, proof any, err error) {
	if pickup, err = jsonParam(task.PickupAddress); err != nil {
		return
	}
	if delivery, err = jsonParam(task.DeliveryAddress); err != nil {
		return
	}
	if recipient, err = jsonParam(task.Recipient); err != nil {
		return
	}
	if !task.ProofOfDelivery.Empty() {
		proof, err = jsonParam(task.ProofOfDelivery)
	}
	return
}

func scanTask(row pgx.Row) (models.Task, error) {
	var (
		task                        models.Task
		pickup, delivery, recipient []byte
		proof                       []byte
	)
	if err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.Status,
		&pickup,
		&delivery,
		&recipient,
		&task.CreatedBy,
		&task.AssignedTo,
		&task.ScheduledPickupTime,
		&task.ScheduledDeliveryTime,
		&task.ActualPickupTime,
		&task.ActualDeliveryTime,
		&task.Notes,
		&proof,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, ErrTaskNotFound
		}
		return models.Task{}, err
	}

	if err := jsonScan(pickup, &task.PickupAddress); err != nil {
		return models.Task{}, err
	}
	if err := jsonScan(delivery, &task.DeliveryAddress); err != nil {
		return models.Task{}, err
	}
	if err := jsonScan(recipient, &task.Recipient); err != nil {
		return models.Task{}, err
	}
	if len(proof) > 0 {
		task.ProofOfDelivery = &models.ProofOfDelivery{}
		if err := jsonScan(proof, task.ProofOfDelivery); err != nil {
			return models.Task{}, err
		}
	}
	return task, nil
}
