package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// claimLockKey serializes dispatcher claims via a transaction-scoped advisory
// lock, so the capacity count and the claim see a consistent queue even when
// trigger calls overlap.
const claimLockKey = 0x71756575 // "queu"

const jobColumns = `id, video_id, project_id, user_id, status, queue_position, retry_count, max_retries,
	 segments_count, error_message, queued_at, processing_started_at, processing_completed_at, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Videos ---

func (s *PostgresStore) GetVideoForUser(ctx context.Context, videoID uuid.UUID, userID uuid.UUID) (*models.Video, error) {
	var v models.Video
	err := s.pool.QueryRow(ctx,
		`SELECT v.id, v.project_id, v.original_name, v.file_path, v.created_at, v.updated_at
		 FROM videos v
		 JOIN projects p ON p.id = v.project_id
		 WHERE v.id = $1 AND p.user_id = $2`, videoID, userID,
	).Scan(&v.ID, &v.ProjectID, &v.OriginalName, &v.FilePath, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video for user: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) GetStoryboardContent(ctx context.Context, projectID uuid.UUID) (string, bool, error) {
	var content string
	err := s.pool.QueryRow(ctx,
		`SELECT text_content FROM storyboard_content WHERE project_id = $1`, projectID,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get storyboard content: %w", err)
	}
	return content, true, nil
}

// --- Analysis jobs ---

func (s *PostgresStore) EnqueueJob(ctx context.Context, videoID, projectID, userID uuid.UUID, maxRetries int) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO analysis_jobs (id, video_id, project_id, user_id, status, queue_position, retry_count, max_retries, queued_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'queued', nextval('analysis_queue_position_seq'), 0, $5, NOW(), NOW(), NOW())
		 ON CONFLICT (video_id) DO UPDATE SET
		   status = 'queued',
		   queue_position = EXCLUDED.queue_position,
		   retry_count = 0,
		   max_retries = EXCLUDED.max_retries,
		   segments_count = 0,
		   error_message = NULL,
		   queued_at = NOW(),
		   processing_started_at = NULL,
		   processing_completed_at = NULL,
		   updated_at = NOW()
		 RETURNING `+jobColumns,
		uuid.New(), videoID, projectID, userID, maxRetries)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) GetJobByVideoID(ctx context.Context, videoID uuid.UUID) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE video_id = $1`, videoID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by video: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ClaimQueuedJobs(ctx context.Context, maxConcurrent int) ([]*models.AnalysisJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, claimLockKey); err != nil {
		return nil, fmt.Errorf("acquire claim lock: %w", err)
	}

	var processing int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis_jobs WHERE status = 'processing'`,
	).Scan(&processing)
	if err != nil {
		return nil, fmt.Errorf("count processing jobs: %w", err)
	}

	slots := maxConcurrent - processing
	if slots <= 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx,
		`UPDATE analysis_jobs SET
		   status = 'processing',
		   processing_started_at = NOW(),
		   updated_at = NOW()
		 WHERE id IN (
		   SELECT id FROM analysis_jobs
		   WHERE status = 'queued'
		   ORDER BY queue_position ASC, created_at ASC
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns, slots)
	if err != nil {
		return nil, fmt.Errorf("claim queued jobs: %w", err)
	}

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}

	// UPDATE ... WHERE id IN (...) does not preserve subquery order
	sortByQueuePosition(jobs)
	return jobs, nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		   status = 'queued',
		   retry_count = retry_count + 1,
		   error_message = $2,
		   updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`, id, errorMessage)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		   status = 'failed',
		   error_message = $2,
		   processing_completed_at = NOW(),
		   updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`, id, errorMessage)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteJobByVideoID(ctx context.Context, videoID uuid.UUID, segmentsCount int) error {
	// Terminal states are absorbing: the predicate leaves completed/failed
	// rows untouched rather than clobbering them.
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		   status = 'completed',
		   segments_count = $2,
		   error_message = NULL,
		   processing_completed_at = NOW(),
		   updated_at = NOW()
		 WHERE video_id = $1 AND status NOT IN ('completed', 'failed')`, videoID, segmentsCount)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.terminalNoop(ctx, videoID)
	}
	return nil
}

func (s *PostgresStore) FailJobByVideoID(ctx context.Context, videoID uuid.UUID, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		   status = 'failed',
		   error_message = $2,
		   processing_completed_at = NOW(),
		   updated_at = NOW()
		 WHERE video_id = $1 AND status NOT IN ('completed', 'failed')`, videoID, errorMessage)
	if err != nil {
		return fmt.Errorf("fail job by video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.terminalNoop(ctx, videoID)
	}
	return nil
}

// terminalNoop distinguishes "job already terminal" (a no-op, nil) from
// "no job for this video" (ErrNotFound) after a guarded update matched no rows.
func (s *PostgresStore) terminalNoop(ctx context.Context, videoID uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM analysis_jobs WHERE video_id = $1)`, videoID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.AnalysisJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM analysis_jobs
		 WHERE status = 'processing' AND processing_started_at < NOW() - $1::interval
		 ORDER BY processing_started_at ASC`,
		fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return scanJobs(rows)
}

func (s *PostgresStore) ListFailedJobsByVideoIDs(ctx context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]*models.AnalysisJob, error) {
	if len(videoIDs) == 0 {
		return []*models.AnalysisJob{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM analysis_jobs
		 WHERE user_id = $1 AND status = 'failed' AND video_id = ANY($2)`,
		userID, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	return scanJobs(rows)
}

// --- Queue stats ---

const statsQuery = `SELECT
	 COUNT(*) FILTER (WHERE status = 'queued'),
	 COUNT(*) FILTER (WHERE status = 'processing'),
	 COUNT(*) FILTER (WHERE status = 'completed' AND processing_completed_at >= date_trunc('day', NOW())),
	 COUNT(*) FILTER (WHERE status = 'failed' AND processing_completed_at >= date_trunc('day', NOW())),
	 AVG(EXTRACT(EPOCH FROM (processing_completed_at - processing_started_at)))
	   FILTER (WHERE status = 'completed')
	 FROM analysis_jobs`

func (s *PostgresStore) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	var st models.QueueStats
	err := s.pool.QueryRow(ctx, statsQuery).Scan(
		&st.QueuedCount, &st.ProcessingCount, &st.CompletedToday, &st.FailedToday, &st.AvgProcessingSeconds)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) QueueStatsForUser(ctx context.Context, userID uuid.UUID) (*models.QueueStats, error) {
	var st models.QueueStats
	err := s.pool.QueryRow(ctx, statsQuery+` WHERE user_id = $1`, userID).Scan(
		&st.QueuedCount, &st.ProcessingCount, &st.CompletedToday, &st.FailedToday, &st.AvgProcessingSeconds)
	if err != nil {
		return nil, fmt.Errorf("queue stats for user: %w", err)
	}
	return &st, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := row.Scan(&j.ID, &j.VideoID, &j.ProjectID, &j.UserID, &j.Status, &j.QueuePosition,
		&j.RetryCount, &j.MaxRetries, &j.SegmentsCount, &j.ErrorMessage, &j.QueuedAt,
		&j.ProcessingStartedAt, &j.ProcessingCompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*models.AnalysisJob, error) {
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func sortByQueuePosition(jobs []*models.AnalysisJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].QueuePosition < jobs[j].QueuePosition
	})
}
