package database

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/security"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/types"
)

// foreignKeyViolation is the Postgres error code raised when an insert
// references a missing parent row.
const foreignKeyViolation = pq.ErrorCode("23503")

// ExperimentRepository handles experiment database operations
type ExperimentRepository struct {
	db *DB
}

// NewExperimentRepository creates a new experiment repository
func NewExperimentRepository(db *DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

// experimentRow mirrors the experiments table. Parameters travel as raw JSON
// so arbitrary protocol settings survive the round trip untouched.
type experimentRow struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	Name           string    `db:"name"`
	ExperimentType string    `db:"experiment_type"`
	Status         string    `db:"status"`
	Parameters     []byte    `db:"parameters"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func newExperimentRow(experiment *types.Experiment) (*experimentRow, error) {
	params := experiment.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.NewValidationError("experiment parameters are not serializable").WithCause(err)
	}

	return &experimentRow{
		ID:             experiment.ID,
		UserID:         experiment.UserID,
		Name:           experiment.Name,
		ExperimentType: experiment.ExperimentType,
		Status:         experiment.Status,
		Parameters:     raw,
		CreatedAt:      experiment.CreatedAt,
		UpdatedAt:      experiment.UpdatedAt,
	}, nil
}

func (r *experimentRow) toExperiment() (*types.Experiment, error) {
	experiment := &types.Experiment{
		ID:             r.ID,
		UserID:         r.UserID,
		Name:           r.Name,
		ExperimentType: r.ExperimentType,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	if len(r.Parameters) > 0 {
		if err := json.Unmarshal(r.Parameters, &experiment.Parameters); err != nil {
			return nil, errors.NewInternalError("failed to decode experiment parameters").WithCause(err)
		}
	}

	return experiment, nil
}

// Create creates a new experiment. Type and status are checked here so a bad
// payload surfaces as a validation error instead of a retryable constraint
// violation from Postgres.
func (r *ExperimentRepository) Create(ctx context.Context, experiment *types.Experiment) error {
	if experiment.UserID == uuid.Nil {
		return errors.NewValidationError("experiment user_id is required")
	}
	if experiment.Name == "" {
		return errors.NewValidationError("experiment name is required")
	}
	if !types.ValidExperimentType(experiment.ExperimentType) {
		return errors.NewValidationError(fmt.Sprintf("unknown experiment type %q", experiment.ExperimentType))
	}
	if experiment.Status == "" {
		experiment.Status = types.ExperimentStatusPending
	}
	if !types.ValidExperimentStatus(experiment.Status) {
		return errors.NewValidationError(fmt.Sprintf("unknown experiment status %q", experiment.Status))
	}

	if experiment.ID == uuid.Nil {
		experiment.ID = uuid.New()
	}
	now := time.Now().UTC()
	experiment.CreatedAt = now
	experiment.UpdatedAt = now

	row, err := newExperimentRow(experiment)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO experiments (id, user_id, name, experiment_type, status, parameters, created_at, updated_at)
		VALUES (:id, :user_id, :name, :experiment_type, :status, :parameters, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.NewDatabaseError("create experiment", err)
	}

	return nil
}

// GetByID retrieves an experiment by ID, scoped to its owner.
func (r *ExperimentRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*types.Experiment, error) {
	var row experimentRow
	query := `SELECT * FROM experiments WHERE id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &row, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("experiment")
		}
		return nil, errors.NewDatabaseError("get experiment", err)
	}

	return row.toExperiment()
}

// Update updates an experiment's name, status, and parameters.
func (r *ExperimentRepository) Update(ctx context.Context, experiment *types.Experiment) error {
	if experiment.Name == "" {
		return errors.NewValidationError("experiment name is required")
	}
	if !types.ValidExperimentStatus(experiment.Status) {
		return errors.NewValidationError(fmt.Sprintf("unknown experiment status %q", experiment.Status))
	}

	row, err := newExperimentRow(experiment)
	if err != nil {
		return err
	}

	query := `
		UPDATE experiments
		SET name = :name, status = :status, parameters = :parameters, updated_at = NOW()
		WHERE id = :id AND user_id = :user_id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.NewDatabaseError("update experiment", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError("experiment")
	}

	experiment.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete deletes an experiment and, via cascade, its results.
func (r *ExperimentRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query := `DELETE FROM experiments WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return errors.NewDatabaseError("delete experiment", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}

	if rowsAffected == 0 {
		return errors.NewNotFoundError("experiment")
	}

	return nil
}

// List lists a user's experiments with filtering and pagination.
func (r *ExperimentRepository) List(ctx context.Context, userID uuid.UUID, filter *ExperimentFilter, pagination *Pagination) ([]*types.Experiment, int64, error) {
	if pagination == nil {
		pagination = &Pagination{}
	}
	pagination.Normalize()

	whereClause := "WHERE user_id = :user_id"
	args := map[string]interface{}{"user_id": userID}

	if filter != nil {
		if filter.ExperimentType != "" {
			whereClause += " AND experiment_type = :experiment_type"
			args["experiment_type"] = filter.ExperimentType
		}
		if filter.Status != "" {
			whereClause += " AND status = :status"
			args["status"] = filter.Status
		}
		if !filter.Since.IsZero() {
			whereClause += " AND created_at >= :since"
			args["since"] = filter.Since
		}
		if !filter.Until.IsZero() {
			whereClause += " AND created_at < :until"
			args["until"] = filter.Until
		}
	}

	var total int64
	countQuery, countArgs, err := sqlx.Named("SELECT COUNT(*) FROM experiments "+whereClause, args)
	if err != nil {
		return nil, 0, errors.NewDatabaseError("count experiments", err)
	}
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, errors.NewDatabaseError("count experiments", err)
	}

	args["limit"] = pagination.PageSize
	args["offset"] = (pagination.Page - 1) * pagination.PageSize
	query := `SELECT * FROM experiments ` + whereClause + ` ORDER BY created_at DESC LIMIT :limit OFFSET :offset`

	rows, err := r.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, 0, errors.NewDatabaseError("list experiments", err)
	}
	defer rows.Close()

	var experiments []*types.Experiment
	for rows.Next() {
		var row experimentRow
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, errors.NewDatabaseError("scan experiment", err)
		}
		experiment, err := row.toExperiment()
		if err != nil {
			return nil, 0, err
		}
		experiments = append(experiments, experiment)
	}

	return experiments, total, nil
}

// ResultRepository handles experiment result database operations
type ResultRepository struct {
	db     *DB
	crypto *security.EncryptionService
}

// NewResultRepository creates a new result repository. When crypto is non-nil
// the data_points payload is sealed with AES-GCM before it reaches Postgres.
func NewResultRepository(db *DB, crypto *security.EncryptionService) *ResultRepository {
	return &ResultRepository{db: db, crypto: crypto}
}

// resultRow mirrors the experiment_results table.
type resultRow struct {
	ID              uuid.UUID `db:"id"`
	ExperimentID    uuid.UUID `db:"experiment_id"`
	DataPoints      []byte    `db:"data_points"`
	Metrics         []byte    `db:"metrics"`
	AnalysisSummary string    `db:"analysis_summary"`
	CreatedAt       time.Time `db:"created_at"`
}

// sealedPayload wraps encrypted data points so the column stays valid JSON
// in both plaintext and encrypted deployments.
type sealedPayload struct {
	Ciphertext string `json:"ciphertext"`
}

func encodeDataPoints(crypto *security.EncryptionService, points []types.DataPoint) ([]byte, error) {
	if points == nil {
		points = []types.DataPoint{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return nil, errors.NewValidationError("result data points are not serializable").WithCause(err)
	}

	if crypto == nil {
		return raw, nil
	}

	ciphertext, err := crypto.Encrypt(string(raw))
	if err != nil {
		return nil, errors.NewInternalError("failed to encrypt result data points").WithCause(err)
	}
	return json.Marshal(sealedPayload{Ciphertext: ciphertext})
}

func decodeDataPoints(crypto *security.EncryptionService, raw []byte) ([]types.DataPoint, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	// A JSON array never unmarshals into the envelope struct, so this probe
	// distinguishes sealed rows from plaintext ones.
	var sealed sealedPayload
	if err := json.Unmarshal(raw, &sealed); err == nil && sealed.Ciphertext != "" {
		if crypto == nil {
			return nil, errors.NewInternalError("result data points are encrypted but no encryption key is configured")
		}
		plaintext, err := crypto.Decrypt(sealed.Ciphertext)
		if err != nil {
			return nil, errors.NewInternalError("failed to decrypt result data points").WithCause(err)
		}
		raw = []byte(plaintext)
	}

	var points []types.DataPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, errors.NewInternalError("failed to decode result data points").WithCause(err)
	}
	return points, nil
}

func (r *resultRow) toResult(crypto *security.EncryptionService) (*types.ExperimentResult, error) {
	result := &types.ExperimentResult{
		ID:              r.ID,
		ExperimentID:    r.ExperimentID,
		AnalysisSummary: r.AnalysisSummary,
		CreatedAt:       r.CreatedAt,
	}

	if len(r.Metrics) > 0 {
		if err := json.Unmarshal(r.Metrics, &result.Metrics); err != nil {
			return nil, errors.NewInternalError("failed to decode result metrics").WithCause(err)
		}
	}

	points, err := decodeDataPoints(crypto, r.DataPoints)
	if err != nil {
		return nil, err
	}
	result.DataPoints = points

	return result, nil
}

func (r *ResultRepository) newResultRow(result *types.ExperimentResult) (*resultRow, error) {
	dataPoints, err := encodeDataPoints(r.crypto, result.DataPoints)
	if err != nil {
		return nil, err
	}

	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return nil, errors.NewValidationError("result metrics are not serializable").WithCause(err)
	}

	return &resultRow{
		ID:              result.ID,
		ExperimentID:    result.ExperimentID,
		DataPoints:      dataPoints,
		Metrics:         metrics,
		AnalysisSummary: result.AnalysisSummary,
		CreatedAt:       result.CreatedAt,
	}, nil
}

// Create stores a new experiment result.
func (r *ResultRepository) Create(ctx context.Context, result *types.ExperimentResult) error {
	if result.ExperimentID == uuid.Nil {
		return errors.NewValidationError("result experiment_id is required")
	}

	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	row, err := r.newResultRow(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO experiment_results (id, experiment_id, data_points, metrics, analysis_summary, created_at)
		VALUES (:id, :experiment_id, :data_points, :metrics, :analysis_summary, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return errors.NewNotFoundError("experiment")
		}
		return errors.NewDatabaseError("create result", err)
	}

	return nil
}

// CreateBatch stores many results in multi-row inserts. Used by bulk ingest
// (device sync uploads) and the seed command.
func (r *ResultRepository) CreateBatch(ctx context.Context, results []*types.ExperimentResult) error {
	if len(results) == 0 {
		return nil
	}

	columns := []string{"id", "experiment_id", "data_points", "metrics", "analysis_summary", "created_at"}
	values := make([][]interface{}, 0, len(results))

	for _, result := range results {
		if result.ExperimentID == uuid.Nil {
			return errors.NewValidationError("result experiment_id is required")
		}
		if result.ID == uuid.Nil {
			result.ID = uuid.New()
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = time.Now().UTC()
		}

		row, err := r.newResultRow(result)
		if err != nil {
			return err
		}
		values = append(values, []interface{}{
			row.ID, row.ExperimentID, row.DataPoints, row.Metrics, row.AnalysisSummary, row.CreatedAt,
		})
	}

	return r.db.BatchInsert(ctx, "experiment_results", columns, values, 500)
}

// GetByID retrieves a result by ID.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*types.ExperimentResult, error) {
	var row resultRow
	query := `SELECT * FROM experiment_results WHERE id = $1`

	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("result")
		}
		return nil, errors.NewDatabaseError("get result", err)
	}

	return row.toResult(r.crypto)
}

// ListByExperiment lists all results for an experiment, newest first.
func (r *ResultRepository) ListByExperiment(ctx context.Context, experimentID uuid.UUID) ([]*types.ExperimentResult, error) {
	var rows []resultRow
	query := `SELECT * FROM experiment_results WHERE experiment_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &rows, query, experimentID); err != nil {
		return nil, errors.NewDatabaseError("list results", err)
	}

	results := make([]*types.ExperimentResult, 0, len(rows))
	for i := range rows {
		result, err := rows[i].toResult(r.crypto)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

// Latest retrieves the most recent result for an experiment.
func (r *ResultRepository) Latest(ctx context.Context, experimentID uuid.UUID) (*types.ExperimentResult, error) {
	var row resultRow
	query := `SELECT * FROM experiment_results WHERE experiment_id = $1 ORDER BY created_at DESC LIMIT 1`

	err := r.db.GetContext(ctx, &row, query, experimentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("result")
		}
		return nil, errors.NewDatabaseError("get latest result", err)
	}

	return row.toResult(r.crypto)
}

// DashboardRepository runs the aggregation queries behind the dashboard
// endpoints. It never touches data_points, so reads stay cheap even on
// encrypted deployments.
type DashboardRepository struct {
	db *DB
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// dashboardQueryTimeout bounds each aggregation query so a slow scan cannot
// hold a request beyond the retry executor's patience.
const dashboardQueryTimeout = 10 * time.Second

type activityRow struct {
	Total      int `db:"total"`
	LastSeven  int `db:"last_seven"`
	LastThirty int `db:"last_thirty"`
	Completed  int `db:"completed"`
}

type statusCountRow struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

type avgMetricRow struct {
	ExperimentType string          `db:"experiment_type"`
	AverageValue   sql.NullFloat64 `db:"average_value"`
}

// Summary aggregates a user's experiment activity into the dashboard summary.
func (r *DashboardRepository) Summary(ctx context.Context, userID uuid.UUID) (*types.DashboardSummary, error) {
	activityQuery := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days') AS last_seven,
			COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days') AS last_thirty,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed
		FROM experiments
		WHERE user_id = $1`

	// The summary runs on every dashboard load, so its statements are
	// prepared once and reused.
	stmt, err := r.db.PrepareStatement(ctx, "dashboard_activity", activityQuery)
	if err != nil {
		return nil, err
	}

	var activity activityRow
	if err := stmt.GetContext(ctx, &activity, userID); err != nil {
		return nil, errors.NewDatabaseError("dashboard activity", err)
	}

	var typeCounts []types.TypeCount
	typeQuery := `SELECT experiment_type, COUNT(*) AS count FROM experiments WHERE user_id = $1 GROUP BY experiment_type`
	if err := r.db.SelectContext(ctx, &typeCounts, typeQuery, userID); err != nil {
		return nil, errors.NewDatabaseError("dashboard type counts", err)
	}

	var statusCounts []statusCountRow
	statusQuery := `SELECT status, COUNT(*) AS count FROM experiments WHERE user_id = $1 GROUP BY status`
	if err := r.db.SelectContext(ctx, &statusCounts, statusQuery, userID); err != nil {
		return nil, errors.NewDatabaseError("dashboard status counts", err)
	}

	var avgMetrics []avgMetricRow
	metricsQuery := `
		SELECT e.experiment_type, AVG((r.metrics->>'mean')::double precision) AS average_value
		FROM experiment_results r
		JOIN experiments e ON e.id = r.experiment_id
		WHERE e.user_id = $1
		GROUP BY e.experiment_type`
	if err := r.db.SelectContext(ctx, &avgMetrics, metricsQuery, userID); err != nil {
		return nil, errors.NewDatabaseError("dashboard average metrics", err)
	}

	summary := &types.DashboardSummary{
		TotalExperiments:    activity.Total,
		ExperimentsByType:   make(map[string]int, len(typeCounts)),
		ExperimentsByStatus: make(map[string]int, len(statusCounts)),
		RecentActivity: types.ActivitySummary{
			LastSevenDays:  activity.LastSeven,
			LastThirtyDays: activity.LastThirty,
		},
		AverageMetrics: make(map[string]float64, len(avgMetrics)),
		LastUpdated:    time.Now().UTC(),
	}

	for _, tc := range typeCounts {
		summary.ExperimentsByType[tc.ExperimentType] = tc.Count
	}
	for _, sc := range statusCounts {
		summary.ExperimentsByStatus[sc.Status] = sc.Count
	}
	for _, am := range avgMetrics {
		if am.AverageValue.Valid {
			summary.AverageMetrics[am.ExperimentType] = am.AverageValue.Float64
		}
	}
	if activity.Total > 0 {
		summary.RecentActivity.CompletionRate = float64(activity.Completed) / float64(activity.Total)
	}

	return summary, nil
}

// Charts builds the dashboard chart series over a trailing window of days.
func (r *DashboardRepository) Charts(ctx context.Context, userID uuid.UUID, days int) (*types.DashboardCharts, error) {
	if days <= 0 {
		days = 30
	}

	var timeline []types.TimelineBucket
	timelineQuery := `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS date, COUNT(*) AS count
		FROM experiments
		WHERE user_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		GROUP BY 1
		ORDER BY 1`
	if err := r.db.SelectContext(ctx, &timeline, timelineQuery, userID, days); err != nil {
		return nil, errors.NewDatabaseError("dashboard timeline", err)
	}

	var distribution []types.TypeCount
	distributionQuery := `
		SELECT experiment_type, COUNT(*) AS count
		FROM experiments
		WHERE user_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		GROUP BY experiment_type
		ORDER BY count DESC`
	if err := r.db.SelectContext(ctx, &distribution, distributionQuery, userID, days); err != nil {
		return nil, errors.NewDatabaseError("dashboard type distribution", err)
	}

	trendsQuery := `
		SELECT to_char(r.created_at, 'YYYY-MM-DD') AS date,
		       e.experiment_type,
		       AVG((r.metrics->>'mean')::double precision) AS average_value
		FROM experiment_results r
		JOIN experiments e ON e.id = r.experiment_id
		WHERE e.user_id = $1
		  AND r.created_at >= NOW() - make_interval(days => $2)
		  AND r.metrics->>'mean' IS NOT NULL
		GROUP BY 1, 2
		ORDER BY 1, 2`
	rows, err := r.db.QueryWithTimeout(ctx, dashboardQueryTimeout, trendsQuery, userID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []types.TrendPoint
	for rows.Next() {
		var point types.TrendPoint
		if err := rows.StructScan(&point); err != nil {
			return nil, errors.NewDatabaseError("scan trend point", err)
		}
		trends = append(trends, point)
	}

	return &types.DashboardCharts{
		Period:            fmt.Sprintf("%dd", days),
		ActivityTimeline:  timeline,
		TypeDistribution:  distribution,
		PerformanceTrends: trends,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// Recent fetches the user's most recent experiments inside a trailing window,
// each paired with its latest result. Data points are deliberately left out
// of the feed.
func (r *DashboardRepository) Recent(ctx context.Context, userID uuid.UUID, limit, days int) (*types.RecentExperiments, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	if days <= 0 {
		days = 7
	}

	var expRows []experimentRow
	experimentsQuery := `
		SELECT * FROM experiments
		WHERE user_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		ORDER BY created_at DESC
		LIMIT $3`
	if err := r.db.SelectContext(ctx, &expRows, experimentsQuery, userID, days, limit); err != nil {
		return nil, errors.NewDatabaseError("recent experiments", err)
	}

	feed := &types.RecentExperiments{
		Experiments: make([]types.ExperimentWithResult, 0, len(expRows)),
		FetchedAt:   time.Now().UTC(),
	}

	if len(expRows) == 0 {
		feed.Insights = buildInsights(feed.Experiments)
		return feed, nil
	}

	ids := make([]string, len(expRows))
	for i := range expRows {
		ids[i] = expRows[i].ID.String()
	}

	var resultRows []resultRow
	latestQuery := `
		SELECT DISTINCT ON (experiment_id)
		       id, experiment_id, metrics, analysis_summary, created_at
		FROM experiment_results
		WHERE experiment_id = ANY($1::uuid[])
		ORDER BY experiment_id, created_at DESC`
	if err := r.db.SelectContext(ctx, &resultRows, latestQuery, pq.Array(ids)); err != nil {
		return nil, errors.NewDatabaseError("recent results", err)
	}

	latest := make(map[uuid.UUID]*types.ExperimentResult, len(resultRows))
	for i := range resultRows {
		result, err := resultRows[i].toResult(nil)
		if err != nil {
			return nil, err
		}
		latest[result.ExperimentID] = result
	}

	for i := range expRows {
		experiment, err := expRows[i].toExperiment()
		if err != nil {
			return nil, err
		}
		feed.Experiments = append(feed.Experiments, types.ExperimentWithResult{
			Experiment:   *experiment,
			LatestResult: latest[experiment.ID],
		})
	}

	feed.Insights = buildInsights(feed.Experiments)
	return feed, nil
}

// buildInsights derives the lightweight headline stats shown above the feed.
func buildInsights(experiments []types.ExperimentWithResult) map[string]interface{} {
	insights := map[string]interface{}{
		"total_in_window": len(experiments),
		"completion_rate": 0.0,
	}

	if len(experiments) == 0 {
		return insights
	}

	completed := 0
	typeCounts := make(map[string]int)
	meanSum := 0.0
	meanCount := 0

	for _, e := range experiments {
		if e.Status == types.ExperimentStatusCompleted {
			completed++
		}
		typeCounts[e.ExperimentType]++
		if e.LatestResult != nil {
			meanSum += e.LatestResult.Metrics.Mean
			meanCount++
		}
	}

	insights["completion_rate"] = float64(completed) / float64(len(experiments))

	mostCommon := ""
	best := 0
	for t, c := range typeCounts {
		if c > best || (c == best && t < mostCommon) {
			mostCommon = t
			best = c
		}
	}
	insights["most_common_type"] = mostCommon

	if meanCount > 0 {
		insights["average_mean"] = meanSum / float64(meanCount)
	}

	return insights
}

// Repositories aggregates the repository instances sharing one connection pool.
type Repositories struct {
	Experiments *ExperimentRepository
	Results     *ResultRepository
	Dashboard   *DashboardRepository
}

// NewRepositories creates the repository set. crypto may be nil, in which
// case result data points are stored as plain JSON.
func NewRepositories(db *DB, crypto *security.EncryptionService) *Repositories {
	return &Repositories{
		Experiments: NewExperimentRepository(db),
		Results:     NewResultRepository(db, crypto),
		Dashboard:   NewDashboardRepository(db),
	}
}
