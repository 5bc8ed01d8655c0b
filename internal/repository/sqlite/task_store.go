package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"dispatchhub/internal/models"
	"dispatchhub/internal/repository"
)

const taskColumns = `
	id, title, description, priority, status,
	pickup_address, delivery_address, recipient,
	created_by, assigned_to,
	scheduled_pickup_time, scheduled_delivery_time,
	actual_pickup_time, actual_delivery_time,
	notes, proof_of_delivery, created_at, updated_at
`

type TaskStore struct {
	db *sqlx.DB
}

func (s *TaskStore) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if len(task.StatusHistory) != 1 {
		return models.Task{}, fmt.Errorf("creating task: want exactly one initial history entry, got %d", len(task.StatusHistory))
	}
	pickup, delivery, recipient, err := encodeTaskFields(task)
	if err != nil {
		return models.Task{}, err
	}
	proof, err := encodeProof(task.ProofOfDelivery)
	if err != nil {
		return models.Task{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Task{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	created := task.CreatedAt.UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, priority, status,
			pickup_address, delivery_address, recipient,
			created_by, assigned_to,
			scheduled_pickup_time, scheduled_delivery_time,
			notes, proof_of_delivery, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, string(task.Priority), string(task.Status),
		pickup, delivery, recipient,
		task.CreatedBy, task.AssignedTo,
		utc(task.ScheduledPickupTime), utc(task.ScheduledDeliveryTime),
		task.Notes, proof, created, created,
	); err != nil {
		return models.Task{}, fmt.Errorf("inserting task: %w", err)
	}

	first := task.StatusHistory[0]
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO task_status_history (task_id, seq, status, updated_by, note, created_at)
		VALUES (?, 1, ?, ?, ?, ?)`,
		task.ID, string(first.Status), first.UpdatedBy, first.Note, first.Timestamp.UTC(),
	); err != nil {
		return models.Task{}, fmt.Errorf("inserting history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Task{}, err
	}
	return s.GetByID(ctx, task.ID)
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (models.Task, error) {
	task, err := scanTask(s.db.QueryRowxContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err != nil {
		return models.Task{}, err
	}
	history, err := s.history(ctx, []string{id})
	if err != nil {
		return models.Task{}, err
	}
	task.StatusHistory = history[id]
	return task, nil
}

func (s *TaskStore) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	var conditions []string
	var args []interface{}
	if filter.CreatedBy != nil {
		conditions = append(conditions, "created_by = ?")
		args = append(args, *filter.CreatedBy)
	}
	if filter.AssignedTo != nil {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, *filter.AssignedTo)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
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
	// Release the only connection before the history query.
	rows.Close()
	if len(ids) == 0 {
		return tasks, nil
	}

	history, err := s.history(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].StatusHistory = history[tasks[i].ID]
	}
	return tasks, nil
}

func (s *TaskStore) Update(ctx context.Context, task models.Task) (models.Task, error) {
	pickup, delivery, recipient, err := encodeTaskFields(task)
	if err != nil {
		return models.Task{}, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, priority = ?,
		    pickup_address = ?, delivery_address = ?, recipient = ?,
		    assigned_to = ?, scheduled_pickup_time = ?, scheduled_delivery_time = ?,
		    notes = ?, updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, string(task.Priority),
		pickup, delivery, recipient,
		task.AssignedTo, utc(task.ScheduledPickupTime), utc(task.ScheduledDeliveryTime),
		task.Notes, time.Now().UTC(), task.ID,
	)
	if err != nil {
		return models.Task{}, fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return models.Task{}, repository.ErrTaskNotFound
	}
	return s.GetByID(ctx, task.ID)
}

// ApplyTransition writes the status change and its history entry only if the
// task is still in tr.From.
func (s *TaskStore) ApplyTransition(ctx context.Context, tr models.TaskTransition) (models.Task, error) {
	proof, err := encodeProof(tr.ProofOfDelivery)
	if err != nil {
		return models.Task{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Task{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?,
		    actual_pickup_time = COALESCE(actual_pickup_time, ?),
		    actual_delivery_time = COALESCE(actual_delivery_time, ?),
		    proof_of_delivery = COALESCE(?, proof_of_delivery),
		    updated_at = ?
		WHERE id = ? AND status = ?`,
		string(tr.To), utc(tr.ActualPickupTime), utc(tr.ActualDeliveryTime), proof,
		time.Now().UTC(), tr.TaskID, string(tr.From),
	)
	if err != nil {
		return models.Task{}, fmt.Errorf("updating status of %s: %w", tr.TaskID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM tasks WHERE id = ?", tr.TaskID); err != nil {
			return models.Task{}, err
		}
		if exists == 0 {
			return models.Task{}, repository.ErrTaskNotFound
		}
		return models.Task{}, repository.ErrStatusConflict
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO task_status_history (task_id, seq, status, updated_by, note, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
		FROM task_status_history
		WHERE task_id = ?`,
		tr.TaskID, string(tr.Change.Status), tr.Change.UpdatedBy, tr.Change.Note, tr.Change.Timestamp.UTC(), tr.TaskID,
	); err != nil {
		return models.Task{}, fmt.Errorf("appending history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Task{}, err
	}
	return s.GetByID(ctx, tr.TaskID)
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return repository.ErrTaskNotFound
	}
	return nil
}

func (s *TaskStore) history(ctx context.Context, taskIDs []string) (map[string][]models.StatusChange, error) {
	query, args, err := sqlx.In(`
		SELECT task_id, status, updated_by, note, created_at
		FROM task_status_history
		WHERE task_id IN (?)
		ORDER BY task_id, seq`, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.StatusChange, len(taskIDs))
	for rows.Next() {
		var (
			taskID string
			change models.StatusChange
		)
		if err := rows.Scan(&taskID, &change.Status, &change.UpdatedBy, &change.Note, &change.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		out[taskID] = append(out[taskID], change)
	}
	return out, rows.Err()
}

func encodeTaskFields(task models.Task) (pickup, delivery, recipient string, err error) {
	var b []byte
	if b, err = json.Marshal(task.PickupAddress); err != nil {
		return "", "", "", fmt.Errorf("marshaling pickup address: %w", err)
	}
	pickup = string(b)
	if b, err = json.Marshal(task.DeliveryAddress); err != nil {
		return "", "", "", fmt.Errorf("marshaling delivery address: %w", err)
	}
	delivery = string(b)
	if b, err = json.Marshal(task.Recipient); err != nil {
		return "", "", "", fmt.Errorf("marshaling recipient: %w", err)
	}
	recipient = string(b)
	return pickup, delivery, recipient, nil
}

// encodeProof returns nil for an empty bundle so COALESCE keeps any stored one.
func encodeProof(p *models.ProofOfDelivery) (interface{}, error) {
	if p.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling proof of delivery: %w", err)
	}
	return string(b), nil
}

func scanTask(row scanner) (models.Task, error) {
	var (
		task                        models.Task
		pickup, delivery, recipient string
		proof                       sql.NullString
	)
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.Priority, &task.Status,
		&pickup, &delivery, &recipient,
		&task.CreatedBy, &task.AssignedTo,
		&task.ScheduledPickupTime, &task.ScheduledDeliveryTime,
		&task.ActualPickupTime, &task.ActualDeliveryTime,
		&task.Notes, &proof, &task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, repository.ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	if err := json.Unmarshal([]byte(pickup), &task.PickupAddress); err != nil {
		return models.Task{}, fmt.Errorf("unmarshaling pickup address: %w", err)
	}
	if err := json.Unmarshal([]byte(delivery), &task.DeliveryAddress); err != nil {
		return models.Task{}, fmt.Errorf("unmarshaling delivery address: %w", err)
	}
	if recipient != "" {
		if err := json.Unmarshal([]byte(recipient), &task.Recipient); err != nil {
			return models.Task{}, fmt.Errorf("unmarshaling recipient: %w", err)
		}
	}
	if proof.Valid && proof.String != "" {
		task.ProofOfDelivery = &models.ProofOfDelivery{}
		if err := json.Unmarshal([]byte(proof.String), task.ProofOfDelivery); err != nil {
			return models.Task{}, fmt.Errorf("unmarshaling proof of delivery: %w", err)
		}
	}
	return task, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
