package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-compass/internal/geo"
	"github.com/p-n-ai/pai-compass/internal/solo"
)

const dbTimeout = 5 * time.Second

// PostgresKCStore is a PostgreSQL-backed KCStore.
type PostgresKCStore struct {
	pool *pgxpool.Pool
}

// NewPostgresKCStore creates a KC store on an existing pool.
func NewPostgresKCStore(pool *pgxpool.Pool) (*PostgresKCStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresKCStore{pool: pool}, nil
}

func (s *PostgresKCStore) Put(ctx context.Context, kc KnowledgeComponent) error {
	if kc.KCID == "" {
		return fmt.Errorf("kc_id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_components (kc_id, title, description, target_solo_level, kc_city, approved)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (kc_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     target_solo_level = EXCLUDED.target_solo_level,
		     kc_city = EXCLUDED.kc_city,
		     approved = EXCLUDED.approved,
		     updated_at = NOW()`,
		kc.KCID,
		kc.Title,
		kc.Description,
		string(kc.TargetSOLOLevel),
		nullIfEmpty(kc.KCCity),
		kc.Approved,
	)
	if err != nil {
		return fmt.Errorf("upsert kc: %w", err)
	}
	return nil
}

func (s *PostgresKCStore) Get(ctx context.Context, kcID string) (*KnowledgeComponent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT kc_id, title, description, target_solo_level, kc_city, approved
		 FROM knowledge_components
		 WHERE kc_id = $1`,
		kcID,
	)
	kc, err := scanKC(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("kc %s: %w", kcID, ErrNotFound)
		}
		return nil, fmt.Errorf("get kc: %w", err)
	}
	return kc, nil
}

func (s *PostgresKCStore) List(ctx context.Context) ([]KnowledgeComponent, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT kc_id, title, description, target_solo_level, kc_city, approved
		 FROM knowledge_components
		 ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query kcs: %w", err)
	}
	defer rows.Close()

	out := []KnowledgeComponent{}
	for rows.Next() {
		kc, err := scanKC(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kc: %w", err)
		}
		out = append(out, *kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kcs: %w", err)
	}
	return out, nil
}

func scanKC(row pgx.Row) (*KnowledgeComponent, error) {
	kc := &KnowledgeComponent{}
	var level string
	var city *string
	if err := row.Scan(&kc.KCID, &kc.Title, &kc.Description, &level, &city, &kc.Approved); err != nil {
		return nil, err
	}
	kc.TargetSOLOLevel = solo.Level(level)
	if city != nil {
		kc.KCCity = *city
	}
	return kc, nil
}

// PostgresHistoryLog is a PostgreSQL-backed HistoryLog. Rows are never
// updated or deleted.
type PostgresHistoryLog struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryLog creates a history log on an existing pool.
func NewPostgresHistoryLog(pool *pgxpool.Pool) (*PostgresHistoryLog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresHistoryLog{pool: pool}, nil
}

const historyColumns = `timestamp_text, location, lat, lng, timezone, kc_id, student_id, solo_level,
	student_response, justification, misconceptions, target_solo_level, educational_grade, approved`

func (l *PostgresHistoryLog) Append(ctx context.Context, rec HistoryRecord) error {
	if rec.StudentID == "" || rec.KCID == "" {
		return fmt.Errorf("student_id and kc_id are required")
	}

	var recordedAt any
	if t, err := geo.ParseTimestamp(rec.Timestamp); err == nil {
		recordedAt = t
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := l.pool.Exec(ctx,
		`INSERT INTO student_history (recorded_at, `+historyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		recordedAt,
		rec.Timestamp,
		rec.Location,
		rec.Lat,
		rec.Lng,
		rec.Timezone,
		rec.KCID,
		rec.StudentID,
		string(rec.SOLOLevel),
		rec.StudentResponse,
		rec.Justification,
		rec.Misconceptions,
		rec.TargetSOLOLevel,
		rec.EducationalGrade,
		rec.Approved,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (l *PostgresHistoryLog) QueryByStudent(ctx context.Context, studentID, kcID string, latestOnly bool) ([]HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	query := `SELECT ` + historyColumns + `
		FROM student_history
		WHERE student_id = $1
		  AND ($2 = '' OR kc_id = $2)
		ORDER BY recorded_at DESC NULLS LAST, id DESC`
	if latestOnly {
		query += ` LIMIT 1`
	}

	rows, err := l.pool.Query(ctx, query, studentID, kcID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (l *PostgresHistoryLog) FindLatest(ctx context.Context, studentID, kcID string) (*HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := l.pool.QueryRow(ctx,
		`SELECT `+historyColumns+`
		 FROM student_history
		 WHERE student_id = $1 AND kc_id = $2
		 ORDER BY id DESC
		 LIMIT 1`,
		studentID,
		kcID,
	)
	rec, err := scanHistory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("history for student %s on kc %s: %w", studentID, kcID, ErrNotFound)
		}
		return nil, fmt.Errorf("find latest history: %w", err)
	}
	return rec, nil
}

func scanHistory(row pgx.Row) (*HistoryRecord, error) {
	rec := &HistoryRecord{}
	var level string
	if err := row.Scan(
		&rec.Timestamp,
		&rec.Location,
		&rec.Lat,
		&rec.Lng,
		&rec.Timezone,
		&rec.KCID,
		&rec.StudentID,
		&level,
		&rec.StudentResponse,
		&rec.Justification,
		&rec.Misconceptions,
		&rec.TargetSOLOLevel,
		&rec.EducationalGrade,
		&rec.Approved,
	); err != nil {
		return nil, err
	}
	rec.SOLOLevel = solo.Level(level)
	return rec, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
