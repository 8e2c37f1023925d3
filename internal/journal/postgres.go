package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/storage"
)

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is the Postgres-backed journal, using the same
// connection/transaction shape as the rest of this codebase's storage layer.
type PostgresStore struct {
	conn      *storage.Connection
	logger    *slog.Logger
	publisher Publisher
}

// Publisher broadcasts an appended report fire-and-forget to an external
// pub/sub channel keyed by "report.<lowercase_level>" (spec.md §4.2). A
// nil Publisher is a valid no-op (dev/test environments without a broker).
type Publisher interface {
	Publish(ctx context.Context, topic string, report handoverspec.Report) error
}

// NewPostgresStore constructs a PostgresStore. publisher may be nil.
func NewPostgresStore(conn *storage.Connection, publisher Publisher, logger *slog.Logger) (*PostgresStore, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{conn: conn, logger: logger, publisher: publisher}, nil
}

// Append implements Appender.
func (s *PostgresStore) Append(ctx context.Context, report handoverspec.Report) error {
	params, err := json.Marshal(report.Params)
	if err != nil {
		return fmt.Errorf("%w: marshal params: %w", ErrJournalFailed, err)
	}

	const insert = `
		INSERT INTO reports (report_type, report_time, message, source, handover_token, database, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.conn.ExecContext(ctx, insert,
		string(report.ReportType),
		report.ReportTime,
		report.Message,
		report.Source,
		report.Params.HandoverToken,
		report.Params.Database,
		params,
	)
	if err != nil {
		return fmt.Errorf("%w: insert report: %w", ErrJournalFailed, err)
	}

	s.broadcast(ctx, report)

	return nil
}

// broadcast publishes report to the pub/sub channel, logging (not
// returning) any failure: per spec.md §4.2 the broadcast is fire-and-forget
// and must never block or fail the append itself.
func (s *PostgresStore) broadcast(ctx context.Context, report handoverspec.Report) {
	if s.publisher == nil {
		return
	}

	topic := "report." + lowercase(string(report.ReportType))

	if err := s.publisher.Publish(ctx, topic, report); err != nil {
		s.logger.Warn("journal: broadcast failed",
			slog.String("topic", topic), slog.String("error", err.Error()))
	}
}

func lowercase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}

// LatestByToken implements Reader.
func (s *PostgresStore) LatestByToken(ctx context.Context, token string) (handoverspec.Report, bool, error) {
	const query = `
		SELECT report_type, report_time, message, source, params
		FROM reports
		WHERE handover_token = $1 AND report_type IN ('INFO', 'ERROR')
		ORDER BY report_time DESC
		LIMIT 1`

	report, ok, err := s.scanOne(ctx, query, token)
	if err != nil {
		return handoverspec.Report{}, false, fmt.Errorf("%w: latest_by_token: %w", ErrJournalFailed, err)
	}

	return report, ok, nil
}

// AggregateByRelease implements Reader. Database names embed the release
// as "..._<release>(_<N>)?" (spec.md §4.2 regex).
func (s *PostgresStore) AggregateByRelease(ctx context.Context, release int) ([]ReleaseBucket, error) {
	const query = `
		SELECT DISTINCT ON (handover_token)
			handover_token, report_type, report_time, message, source, params,
			MIN(report_time) OVER (PARTITION BY handover_token) AS submission_time
		FROM reports
		WHERE database ~ ('_' || $1::text || '(_[0-9]+)?$')
		ORDER BY handover_token, report_time DESC`

	rows, err := s.conn.QueryContext(ctx, query, release)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate_by_release: %w", ErrJournalFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var buckets []ReleaseBucket

	for rows.Next() {
		var (
			token          string
			paramsJSON     []byte
			report         handoverspec.Report
			submissionTime pq.NullTime
		)

		if err := rows.Scan(&token, &report.ReportType, &report.ReportTime, &report.Message,
			&report.Source, &paramsJSON, &submissionTime); err != nil {
			return nil, fmt.Errorf("%w: scan aggregate row: %w", ErrJournalFailed, err)
		}

		if err := json.Unmarshal(paramsJSON, &report.Params); err != nil {
			return nil, fmt.Errorf("%w: unmarshal params: %w", ErrJournalFailed, err)
		}

		bucket := ReleaseBucket{
			Token:       token,
			Latest:      report,
			LastMessage: report.Message,
		}
		bucket.SubmissionTime.ReportTime = submissionTime.Time

		buckets = append(buckets, bucket)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJournalFailed, err)
	}

	return buckets, nil
}

const latestByDatabaseQuery = `
	SELECT report_type, report_time, message, source, params
	FROM reports
	WHERE database = $1
	ORDER BY report_time DESC
	LIMIT 1`

// InFlightForDatabase implements Reader.
func (s *PostgresStore) InFlightForDatabase(ctx context.Context, database string) (bool, error) {
	report, ok, err := s.scanOne(ctx, latestByDatabaseQuery, database)
	if err != nil {
		return false, fmt.Errorf("%w: in_flight_for_database: %w", ErrJournalFailed, err)
	}

	if !ok {
		return false, nil
	}

	return !handoverspec.IsTerminalMessage(report.Message), nil
}

// LatestByDatabase implements Reader.
func (s *PostgresStore) LatestByDatabase(ctx context.Context, database string) (handoverspec.Report, bool, error) {
	report, ok, err := s.scanOne(ctx, latestByDatabaseQuery, database)
	if err != nil {
		return handoverspec.Report{}, false, fmt.Errorf("%w: latest_by_database: %w", ErrJournalFailed, err)
	}

	return report, ok, nil
}

// DeleteByToken implements Reader.
func (s *PostgresStore) DeleteByToken(ctx context.Context, token string) error {
	const del = `DELETE FROM reports WHERE handover_token = $1`

	if _, err := s.conn.ExecContext(ctx, del, token); err != nil {
		return fmt.Errorf("%w: delete_by_token: %w", ErrJournalFailed, err)
	}

	return nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg any) (handoverspec.Report, bool, error) {
	var (
		report     handoverspec.Report
		paramsJSON []byte
	)

	row := s.conn.QueryRowContext(ctx, query, arg)

	err := row.Scan(&report.ReportType, &report.ReportTime, &report.Message, &report.Source, &paramsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return handoverspec.Report{}, false, nil
		}

		return handoverspec.Report{}, false, err
	}

	if err := json.Unmarshal(paramsJSON, &report.Params); err != nil {
		return handoverspec.Report{}, false, err
	}

	return report, true, nil
}
