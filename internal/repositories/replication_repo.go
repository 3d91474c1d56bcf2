package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/cardsync/internal/models"
	"github.com/prudhvinik1/cardsync/internal/replication"
)

var errForeignOwner = errors.New("document belongs to another owner")

type PostgresReplicationRepository struct {
	pool  *pgxpool.Pool
	table TableSpec
	now   func() time.Time
}

func NewPostgresReplicationRepository(pool *pgxpool.Pool, table TableSpec) *PostgresReplicationRepository {
	return &PostgresReplicationRepository{pool: pool, table: table, now: time.Now}
}

// NewPostgresReplicationRepositories builds one repository per replicated
// entity.
func NewPostgresReplicationRepositories(pool *pgxpool.Pool) map[replication.EntityType]ReplicationRepository {
	repos := make(map[replication.EntityType]ReplicationRepository, len(Tables))
	for entity, table := range Tables {
		repos[entity] = NewPostgresReplicationRepository(pool, table)
	}
	return repos
}

func (r *PostgresReplicationRepository) Entity() replication.EntityType {
	return r.table.Entity
}

func (r *PostgresReplicationRepository) PullSince(ctx context.Context, ownerID uuid.UUID, checkpoint *replication.Checkpoint, limit int) ([]replication.Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if checkpoint == nil {
		rows, err = r.pool.Query(ctx, r.table.pullQuery(false), ownerID, limit)
	} else {
		rows, err = r.pool.Query(ctx, r.table.pullQuery(true),
			ownerID,
			time.UnixMilli(checkpoint.UpdatedAt),
			checkpoint.ID,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table.Table, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", r.table.Table, err)
	}

	docs := make([]replication.Document, 0, len(maps))
	for _, m := range maps {
		docs = append(docs, r.toDocument(m))
	}
	return docs, nil
}

func (r *PostgresReplicationRepository) Push(ctx context.Context, ownerID uuid.UUID, rows []models.PushRow) (written, conflicts []replication.Document, err error) {
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		written, conflicts = nil, nil
		latest, err := r.lockOwner(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			stamp := nextStamp(r.now(), latest)
			doc, conflict, err := r.pushOne(ctx, tx, ownerID, row, stamp)
			if err != nil {
				return err
			}
			if conflict != nil {
				conflicts = append(conflicts, conflict)
				continue
			}
			latest = &stamp
			written = append(written, doc)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return written, conflicts, nil
}

// lockOwner serializes writers of ownerID on this table until tx ends and
// returns the owner's latest checkpoint timestamp, nil for no rows. Stamps
// handed out under the lock are therefore ordered like the commits.
func (r *PostgresReplicationRepository) lockOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*time.Time, error) {
	if _, err := tx.Exec(ctx, ownerLockQuery, r.table.ownerLockKey(ownerID.String())); err != nil {
		return nil, fmt.Errorf("failed to lock owner on %s: %w", r.table.Table, err)
	}
	var latest *time.Time
	if err := tx.QueryRow(ctx, r.table.latestQuery(), ownerID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest %s checkpoint: %w", r.table.Table, err)
	}
	return latest, nil
}

// nextStamp returns now at millisecond precision, moved past latest when the
// clock is behind it.
func nextStamp(now time.Time, latest *time.Time) time.Time {
	stamp := now.UTC().Truncate(time.Millisecond)
	if latest != nil {
		floor := latest.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
		if stamp.Before(floor) {
			stamp = floor
		}
	}
	return stamp
}

func (r *PostgresReplicationRepository) pushOne(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, row models.PushRow, now time.Time) (replication.Document, replication.Document, error) {
	fields, deleted, err := replication.FromReplicationDoc(row.NewDocumentState, r.table.DateFields())
	if err != nil {
		return nil, nil, err
	}

	id, err := uuid.Parse(row.NewDocumentState.ID())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: id must be a uuid", replication.ErrInvalidDocument)
	}

	current, err := r.lock(ctx, tx, ownerID, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}
	if current != nil && isConflict(r.table.Entity, row.AssumedMasterState, current) {
		return nil, current, nil
	}

	args, err := r.upsertArgs(ownerID, id, fields, deleted, now)
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, r.table.upsertQuery(), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", r.table.Table, err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %v", replication.ErrInvalidDocument, errForeignOwner)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to write %s: %w", r.table.Table, err)
	}

	return r.toDocument(m), nil, nil
}

// lock reads and row-locks the current master state of id.
func (r *PostgresReplicationRepository) lock(ctx context.Context, tx pgx.Tx, ownerID, id uuid.UUID) (replication.Document, error) {
	rows, err := tx.Query(ctx, r.table.lockQuery(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", r.table.Table, err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", r.table.Table, err)
	}

	owner, _ := m["owner_id"].(string)
	delete(m, "owner_id")
	if owner != ownerID.String() {
		return nil, fmt.Errorf("%w: %v", replication.ErrInvalidDocument, errForeignOwner)
	}
	return r.toDocument(m), nil
}

// isConflict reports whether the client's assumed master differs from the
// stored one. Only the ordering key is compared: the server stamps it on
// every write.
func isConflict(entity replication.EntityType, assumed, current replication.Document) bool {
	if assumed == nil {
		return true
	}
	a, err := replication.CheckpointOf(entity, assumed)
	if err != nil {
		return true
	}
	c, err := replication.CheckpointOf(entity, current)
	if err != nil {
		return true
	}
	return replication.Compare(a, c) != 0
}

func (r *PostgresReplicationRepository) upsertArgs(ownerID, id uuid.UUID, fields map[string]any, deleted bool, now time.Time) ([]any, error) {
	args := make([]any, 0, len(r.table.Columns)+1)
	for _, c := range r.table.Columns {
		switch c.Mode {
		case ModeKey:
			if c.Name == "owner_id" {
				args = append(args, ownerID)
			} else {
				args = append(args, id)
			}
		case ModeStamp:
			args = append(args, now)
		case ModeCreated:
			if t, ok := fields[c.Field].(time.Time); ok {
				args = append(args, t)
			} else {
				args = append(args, now)
			}
		default:
			v, err := columnValue(c, fields[c.Field])
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}

	if deleted {
		args = append(args, now)
	} else {
		args = append(args, nil)
	}
	return args, nil
}

func columnValue(c Column, v any) (any, error) {
	if v == nil {
		if !c.Nullable {
			return nil, fmt.Errorf("%w: field %q is required", replication.ErrInvalidDocument, c.Field)
		}
		return nil, nil
	}

	switch c.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a string", replication.ErrInvalidDocument, c.Field)
		}
		return s, nil
	case KindUUID:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a uuid string", replication.ErrInvalidDocument, c.Field)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q must be a uuid string", replication.ErrInvalidDocument, c.Field)
		}
		return id, nil
	case KindInt:
		n, ok := intValue(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%w: field %q must be a 32-bit integer", replication.ErrInvalidDocument, c.Field)
		}
		if c.NonNegative && n < 0 {
			return nil, fmt.Errorf("%w: field %q must not be negative", replication.ErrInvalidDocument, c.Field)
		}
		return n, nil
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a timestamp", replication.ErrInvalidDocument, c.Field)
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported column kind %d", c.Kind)
}

// intValue accepts the integer shapes a JSON decoder can produce.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}

func (r *PostgresReplicationRepository) SoftDeleteAll(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var deleted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		latest, err := r.lockOwner(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		result, err := tx.Exec(ctx, r.table.softDeleteAllQuery(), ownerID, nextStamp(r.now(), latest))
		if err != nil {
			return fmt.Errorf("failed to delete %s: %w", r.table.Table, err)
		}
		deleted = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *PostgresReplicationRepository) toDocument(m map[string]any) replication.Document {
	deleted, _ := m[replication.DeletedField].(bool)
	delete(m, replication.DeletedField)
	return replication.ToReplicationDoc(m, r.table.DateFields(), deleted)
}
