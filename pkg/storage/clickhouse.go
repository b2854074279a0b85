package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/genai"
)

// ClickHouseConfig locates the analytical storage engine.
type ClickHouseConfig struct {
	Addrs    []string `yaml:"addrs"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// ClickHouseStore implements TelemetryStore, PromotionStore, FixRunStore,
// and DDLExecutor against ClickHouse. The engine owns query execution and
// indexing; this layer only issues DML and the schema executor's DDL.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewClickHouseStore opens a connection and creates the base schema if it is
// not present. All base DDL is additive (CREATE ... IF NOT EXISTS).
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig, logger *slog.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addrs,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	store := &ClickHouseStore{conn: conn, logger: logger}
	if err := store.createSchemaIfNotPresent(ctx); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *ClickHouseStore) Close() error { return s.conn.Close() }

var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS spans (
		trace_id       String,
		span_id        String,
		parent_span_id String,
		session_id     String,
		service_name   String,
		name           String,
		kind           String,
		start_time     DateTime64(9),
		end_time       DateTime64(9),
		status_code    Int8,
		status_message String,
		attributes     String,
		resource       String
	) ENGINE = MergeTree ORDER BY (service_name, start_time)`,
	`CREATE TABLE IF NOT EXISTS logs (
		trace_id        String,
		span_id         String,
		service_name    String,
		timestamp       DateTime64(9),
		severity_number Int32,
		severity_text   String,
		body            String,
		attributes      String,
		resource        String
	) ENGINE = MergeTree ORDER BY (service_name, timestamp)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		name         String,
		service_name String,
		type         String,
		unit         String,
		points       String,
		resource     String
	) ENGINE = MergeTree ORDER BY (service_name, name)`,
	`CREATE TABLE IF NOT EXISTS schema_promotions (
		promotion_id  String,
		requested_by  String,
		change_type   String,
		target_table  String,
		target_column String,
		column_type   String,
		sql_statement String,
		status        String,
		created_at    DateTime64(3),
		applied_at    Nullable(DateTime64(3))
	) ENGINE = MergeTree ORDER BY created_at`,
	`CREATE TABLE IF NOT EXISTS fix_runs (
		run_id       String,
		issue_id     String,
		execution_id String,
		status       String,
		policy       String,
		description  String,
		confidence   Nullable(Float64),
		changes      String,
		created_at   DateTime64(3),
		updated_at   DateTime64(3)
	) ENGINE = MergeTree ORDER BY created_at`,
}

func (s *ClickHouseStore) createSchemaIfNotPresent(ctx context.Context) error {
	for _, stmt := range baseSchema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// spanSessionID reads the stored session column value: the GenAI session
// attribute when present, empty otherwise. No trace-id fallback here; the
// analytical store keeps "no session" queryable as the empty string.
func spanSessionID(span domain.Span) string {
	if v, ok := span.Attributes[genai.AttrSessionID]; ok && v.Kind() == domain.KindString {
		return v.Str()
	}
	return ""
}

// AppendSpans writes a batch in decode order.
func (s *ClickHouseStore) AppendSpans(ctx context.Context, spans []domain.Span) error {
	if len(spans) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO spans")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, span := range spans {
		if err := batch.Append(
			span.TraceID,
			span.SpanID,
			span.ParentSpanID,
			spanSessionID(span),
			span.ServiceName(),
			span.Name,
			span.Kind.String(),
			span.StartTime,
			span.EndTime,
			int8(span.Status.Code),
			span.Status.Message,
			marshalJSON(span.Attributes),
			marshalJSON(span.Resource.Attributes),
		); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// QuerySpans reads spans back. Attribute maps round-trip through their JSON
// projection, which flattens int-typed attributes to doubles; callers that
// need exact wire types should read from the aggregators instead.
func (s *ClickHouseStore) QuerySpans(ctx context.Context, filter SpanFilter) ([]domain.Span, error) {
	query := `SELECT trace_id, span_id, parent_span_id, service_name, name, kind,
		start_time, end_time, status_code, status_message, attributes, resource FROM spans`
	var conds []string
	var args []any
	if filter.TraceID != "" {
		conds = append(conds, "trace_id = ?")
		args = append(args, filter.TraceID)
	}
	if filter.ServiceName != "" {
		conds = append(conds, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "start_time <= ?")
		args = append(args, filter.To)
	}
	if filter.OnlyErrors {
		conds = append(conds, "status_code = 2")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Span
	for rows.Next() {
		var (
			span          domain.Span
			kind          string
			statusCode    int8
			attributes    string
			resourceAttrs string
		)
		if err := rows.Scan(
			&span.TraceID, &span.SpanID, &span.ParentSpanID,
			new(string), // service_name is derivable from the resource snapshot
			&span.Name, &kind, &span.StartTime, &span.EndTime,
			&statusCode, &span.Status.Message, &attributes, &resourceAttrs,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		span.Kind = domain.ParseSpanKind(kind)
		span.Status.Code = domain.StatusCode(statusCode)
		span.Attributes = unmarshalAttributes(attributes)
		span.Resource = domain.Resource{Attributes: unmarshalAttributes(resourceAttrs)}
		out = append(out, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// AppendLogs writes a batch in decode order.
func (s *ClickHouseStore) AppendLogs(ctx context.Context, logs []domain.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO logs")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, record := range logs {
		if err := batch.Append(
			record.TraceID,
			record.SpanID,
			record.ServiceName(),
			record.Timestamp,
			int32(record.SeverityNumber),
			record.SeverityText,
			record.Body.Text(),
			marshalJSON(record.Attributes),
			marshalJSON(record.Resource.Attributes),
		); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// QueryLogs reads log records back.
func (s *ClickHouseStore) QueryLogs(ctx context.Context, filter LogFilter) ([]domain.LogRecord, error) {
	query := `SELECT trace_id, span_id, timestamp, severity_number, severity_text, body, attributes, resource FROM logs`
	var conds []string
	var args []any
	if filter.TraceID != "" {
		conds = append(conds, "trace_id = ?")
		args = append(args, filter.TraceID)
	}
	if filter.ServiceName != "" {
		conds = append(conds, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if filter.MinSeverity > 0 {
		conds = append(conds, "severity_number >= ?")
		args = append(args, int32(filter.MinSeverity))
	}
	if !filter.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.To)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.LogRecord
	for rows.Next() {
		var (
			record        domain.LogRecord
			severity      int32
			body          string
			attributes    string
			resourceAttrs string
		)
		if err := rows.Scan(&record.TraceID, &record.SpanID, &record.Timestamp,
			&severity, &record.SeverityText, &body, &attributes, &resourceAttrs); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		record.SeverityNumber = int(severity)
		record.Body = domain.StringValue(body)
		record.Attributes = unmarshalAttributes(attributes)
		record.Resource = domain.Resource{Attributes: unmarshalAttributes(resourceAttrs)}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// AppendMetrics writes a batch in decode order. Points are stored as a JSON
// column; the engine's analytical queries unpack them server-side.
func (s *ClickHouseStore) AppendMetrics(ctx context.Context, metrics []domain.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO metrics")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	for _, metric := range metrics {
		if err := batch.Append(
			metric.Name,
			metric.ServiceName(),
			string(metric.Type),
			metric.Unit,
			marshalJSON(metric.Points),
			marshalJSON(metric.Resource.Attributes),
		); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// QueryMetrics reads metric rows back without unpacking points.
func (s *ClickHouseStore) QueryMetrics(ctx context.Context, filter MetricFilter) ([]domain.Metric, error) {
	query := `SELECT name, type, unit, points, resource FROM metrics`
	var conds []string
	var args []any
	if filter.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.ServiceName != "" {
		conds = append(conds, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.Metric
	for rows.Next() {
		var (
			metric        domain.Metric
			metricType    string
			points        string
			resourceAttrs string
		)
		if err := rows.Scan(&metric.Name, &metricType, &metric.Unit, &points, &resourceAttrs); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		metric.Type = domain.MetricType(metricType)
		if err := json.Unmarshal([]byte(points), &metric.Points); err != nil {
			s.logger.Warn("unreadable metric points", "metric", metric.Name, "error", err)
		}
		metric.Resource = domain.Resource{Attributes: unmarshalAttributes(resourceAttrs)}
		out = append(out, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// Stats reports row counts and the span time bounds.
func (s *ClickHouseStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.conn.QueryRow(ctx, `SELECT
		(SELECT count() FROM spans),
		(SELECT count() FROM logs),
		(SELECT count() FROM metrics)`)
	var spanCount, logCount, metricCount uint64
	if err := row.Scan(&spanCount, &logCount, &metricCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	stats.SpanCount = int64(spanCount)
	stats.LogCount = int64(logCount)
	stats.MetricCount = int64(metricCount)

	if spanCount > 0 {
		var oldest, newest time.Time
		row = s.conn.QueryRow(ctx, `SELECT min(start_time), max(start_time) FROM spans`)
		if err := row.Scan(&oldest, &newest); err != nil {
			return Stats{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		stats.OldestSpan = &oldest
		stats.NewestSpan = &newest
	}
	return stats, nil
}

// ExecuteDDL runs one schema statement against the engine.
func (s *ClickHouseStore) ExecuteDDL(ctx context.Context, sql string) error {
	if err := s.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// InsertPromotion stores a new promotion record.
func (s *ClickHouseStore) InsertPromotion(ctx context.Context, record domain.SchemaPromotion) error {
	err := s.conn.Exec(ctx, `INSERT INTO schema_promotions
		(promotion_id, requested_by, change_type, target_table, target_column, column_type, sql_statement, status, created_at, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.PromotionID, record.RequestedBy, string(record.ChangeType),
		record.TargetTable, record.TargetColumn, record.ColumnType,
		record.SQL, string(record.Status), record.CreatedAt, record.AppliedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetPromotion looks a promotion up by id, newest row winning in case the
// status transition appended a fresh version.
func (s *ClickHouseStore) GetPromotion(ctx context.Context, promotionID string) (domain.SchemaPromotion, error) {
	rows, err := s.conn.Query(ctx, `SELECT promotion_id, requested_by, change_type, target_table,
		target_column, column_type, sql_statement, status, created_at, applied_at
		FROM schema_promotions WHERE promotion_id = ?
		ORDER BY applied_at DESC NULLS LAST LIMIT 1`, promotionID)
	if err != nil {
		return domain.SchemaPromotion{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.SchemaPromotion{}, domain.ErrNotFound
	}
	return scanPromotion(rows)
}

// ListPromotionsByStatus returns promotions in the given status, newest first.
func (s *ClickHouseStore) ListPromotionsByStatus(ctx context.Context, status domain.PromotionStatus) ([]domain.SchemaPromotion, error) {
	rows, err := s.conn.Query(ctx, `SELECT promotion_id, requested_by, change_type, target_table,
		target_column, column_type, sql_statement, status, created_at, applied_at
		FROM schema_promotions WHERE status = ? ORDER BY created_at DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	var out []domain.SchemaPromotion
	for rows.Next() {
		record, err := scanPromotion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// UpdatePromotionStatus applies the one-way status transition. MergeTree has
// no in-place update; the mutation form matches how the engine expects
// administrative corrections to be issued.
func (s *ClickHouseStore) UpdatePromotionStatus(ctx context.Context, promotionID string, status domain.PromotionStatus, appliedAt *time.Time) error {
	err := s.conn.Exec(ctx,
		`ALTER TABLE schema_promotions UPDATE status = ?, applied_at = ? WHERE promotion_id = ?`,
		string(status), appliedAt, promotionID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// InsertFixRun stores a new fix run record.
func (s *ClickHouseStore) InsertFixRun(ctx context.Context, run domain.FixRun) error {
	err := s.conn.Exec(ctx, `INSERT INTO fix_runs
		(run_id, issue_id, execution_id, status, policy, description, confidence, changes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.IssueID, run.ExecutionID, run.Status, run.Policy,
		run.Description, run.Confidence, run.Changes, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetFixRun looks a fix run up by id.
func (s *ClickHouseStore) GetFixRun(ctx context.Context, runID string) (domain.FixRun, error) {
	rows, err := s.conn.Query(ctx, `SELECT run_id, issue_id, execution_id, status, policy,
		description, confidence, changes, created_at, updated_at
		FROM fix_runs WHERE run_id = ? LIMIT 1`, runID)
	if err != nil {
		return domain.FixRun{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.FixRun{}, domain.ErrNotFound
	}
	var run domain.FixRun
	if err := rows.Scan(&run.RunID, &run.IssueID, &run.ExecutionID, &run.Status, &run.Policy,
		&run.Description, &run.Confidence, &run.Changes, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return domain.FixRun{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return run, nil
}

// UpdateFixRunStatus updates a fix run's status and touch time.
func (s *ClickHouseStore) UpdateFixRunStatus(ctx context.Context, runID, status string) error {
	err := s.conn.Exec(ctx,
		`ALTER TABLE fix_runs UPDATE status = ?, updated_at = ? WHERE run_id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func scanPromotion(rows driver.Rows) (domain.SchemaPromotion, error) {
	var (
		record     domain.SchemaPromotion
		changeType string
		status     string
		appliedAt  *time.Time
	)
	if err := rows.Scan(&record.PromotionID, &record.RequestedBy, &changeType,
		&record.TargetTable, &record.TargetColumn, &record.ColumnType,
		&record.SQL, &status, &record.CreatedAt, &appliedAt); err != nil {
		return domain.SchemaPromotion{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	record.ChangeType = domain.ChangeType(changeType)
	record.Status = domain.PromotionStatus(status)
	record.AppliedAt = appliedAt
	return record, nil
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// unmarshalAttributes rebuilds an attribute map from its JSON projection.
// JSON has no int/double distinction, so numeric attributes come back as
// doubles; the coercing accessors absorb that for downstream readers.
func unmarshalAttributes(data string) map[string]domain.AttributeValue {
	if data == "" || data == "{}" || data == "null" {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil
	}
	attrs := make(map[string]domain.AttributeValue, len(raw))
	for k, v := range raw {
		attrs[k] = attributeFromAny(v)
	}
	return attrs
}

func attributeFromAny(v any) domain.AttributeValue {
	switch val := v.(type) {
	case string:
		return domain.StringValue(val)
	case float64:
		return domain.DoubleValue(val)
	case bool:
		return domain.BoolValue(val)
	case []any:
		items := make([]domain.AttributeValue, 0, len(val))
		for _, item := range val {
			items = append(items, attributeFromAny(item))
		}
		return domain.ArrayValue(items)
	case map[string]any:
		m := make(map[string]domain.AttributeValue, len(val))
		for k, item := range val {
			m[k] = attributeFromAny(item)
		}
		return domain.MapValue(m)
	default:
		return domain.StringValue(fmt.Sprintf("%v", v))
	}
}
