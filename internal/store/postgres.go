package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/apihub/pkg/models"
)

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

// --- API Keys ---

const apiKeyColumns = `id, name, key_prefix, key_hash, created_at, last_used_at, request_count, is_active`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyPrefix, &k.KeyHash, &k.CreatedAt,
			&k.LastUsedAt, &k.RequestCount, &k.IsActive); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_prefix, key_hash, created_at, request_count, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyPrefix, key.KeyHash, key.CreatedAt, key.RequestCount, key.IsActive)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns active keys, newest first.
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

// GetAPIKeysByPrefix returns active and revoked keys alike; callers decide
// between "unknown" and "disabled".
func (s *PostgresStore) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api keys by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RecordAPIKeyUsage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), request_count = request_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAPIKey deactivates a key. Revoking an already inactive key succeeds;
// only an unknown id returns ErrNotFound.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Usage ledger ---

// RecordUsage writes the history row, the stats merge and the log row of one
// request in a single transaction. Nil parts are skipped.
func (s *PostgresStore) RecordUsage(ctx context.Context, rec models.UsageRecord) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if rec.History != nil {
			if err := appendHistory(ctx, tx, rec.History); err != nil {
				return err
			}
		}
		if rec.Stats != nil {
			if err := accumulateTokenStats(ctx, tx, *rec.Stats); err != nil {
				return err
			}
		}
		if rec.Log != nil {
			if err := appendLog(ctx, tx, rec.Log); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, e *models.HistoryEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO request_history (endpoint, method, model, prompt_tokens, completion_tokens, total_tokens,
		   duration_ms, status_code, user_message, ai_response, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.Endpoint, e.Method, CleanText(e.Model), e.Tokens.Prompt, e.Tokens.Completion, e.Tokens.Total,
		e.DurationMs, e.StatusCode, CleanText(e.UserMessage), CleanText(e.AIResponse), cleanTextPtr(e.ErrorMessage), createdAt)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// accumulateTokenStats merges one request into the (date, model) row with a
// single upsert so concurrent merges never lose an increment.
func accumulateTokenStats(ctx context.Context, tx pgx.Tx, d models.TokenStatsDelta) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO token_stats (date, model, total_requests, total_tokens, prompt_tokens, completion_tokens)
		 VALUES ($1, $2, 1, $3, $4, $5)
		 ON CONFLICT (date, model) DO UPDATE SET
		   total_requests = token_stats.total_requests + 1,
		   total_tokens = token_stats.total_tokens + EXCLUDED.total_tokens,
		   prompt_tokens = token_stats.prompt_tokens + EXCLUDED.prompt_tokens,
		   completion_tokens = token_stats.completion_tokens + EXCLUDED.completion_tokens,
		   updated_at = NOW()`,
		utcDate(d.Date), CleanText(d.Model), d.Counts.Total, d.Counts.Prompt, d.Counts.Completion)
	if err != nil {
		return fmt.Errorf("accumulate token stats: %w", err)
	}
	return nil
}

func appendLog(ctx context.Context, tx pgx.Tx, e *models.LogEntry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO api_logs (level, method, endpoint, status_code, message, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Level, e.Method, e.Endpoint, e.StatusCode, CleanText(e.Message), e.DurationMs, createdAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// --- Usage reads ---

func (s *PostgresStore) ListHistory(ctx context.Context, limit int) ([]*models.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint, method, model, prompt_tokens, completion_tokens, total_tokens,
		   duration_ms, status_code, user_message, ai_response, error_message, created_at
		 FROM request_history ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []*models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Endpoint, &e.Method, &e.Model, &e.Tokens.Prompt,
			&e.Tokens.Completion, &e.Tokens.Total, &e.DurationMs, &e.StatusCode,
			&e.UserMessage, &e.AIResponse, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ModelUsageSince sums token_stats per model from since (inclusive), largest consumers first.
func (s *PostgresStore) ModelUsageSince(ctx context.Context, since time.Time) ([]*models.ModelUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT model,
		   SUM(total_requests)::bigint, SUM(total_tokens)::bigint,
		   SUM(prompt_tokens)::bigint, SUM(completion_tokens)::bigint
		 FROM token_stats WHERE date >= $1::date
		 GROUP BY model ORDER BY 3 DESC, model`, utcDate(since))
	if err != nil {
		return nil, fmt.Errorf("model usage: %w", err)
	}
	defer rows.Close()

	usage := []*models.ModelUsage{}
	for rows.Next() {
		var u models.ModelUsage
		if err := rows.Scan(&u.Model, &u.TotalRequests, &u.TotalTokens,
			&u.PromptTokens, &u.CompletionTokens); err != nil {
			return nil, fmt.Errorf("scan model usage: %w", err)
		}
		usage = append(usage, &u)
	}
	return usage, rows.Err()
}

// DailyUsageSince returns total tokens per day from since (inclusive), oldest first.
func (s *PostgresStore) DailyUsageSince(ctx context.Context, since time.Time) ([]*models.DailyUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, SUM(total_tokens)::bigint
		 FROM token_stats WHERE date >= $1::date
		 GROUP BY date ORDER BY date`, utcDate(since))
	if err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	defer rows.Close()

	daily := []*models.DailyUsage{}
	for rows.Next() {
		var (
			day    time.Time
			tokens int64
		)
		if err := rows.Scan(&day, &tokens); err != nil {
			return nil, fmt.Errorf("scan daily usage: %w", err)
		}
		daily = append(daily, &models.DailyUsage{Date: day.Format(time.DateOnly), Tokens: tokens})
	}
	return daily, rows.Err()
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter LogFilter) ([]*models.LogEntry, error) {
	query := `SELECT id, level, method, endpoint, status_code, message, duration_ms, created_at FROM api_logs`
	args := []any{}
	if filter.Level != "" {
		args = append(args, filter.Level)
		query += fmt.Sprintf(" WHERE level = $%d", len(args))
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	entries := []*models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Level, &e.Method, &e.Endpoint, &e.StatusCode,
			&e.Message, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Webhooks ---

const webhookColumns = `id, url, events, is_enabled, created_at, last_delivery_at, success_count, failure_count`

func scanWebhook(row pgx.Row) (*models.Webhook, error) {
	var wh models.Webhook
	err := row.Scan(&wh.ID, &wh.URL, &wh.Events, &wh.IsEnabled, &wh.CreatedAt,
		&wh.LastDeliveryAt, &wh.SuccessCount, &wh.FailureCount)
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, wh *models.Webhook) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhooks (id, url, events, is_enabled, created_at) VALUES ($1, $2, $3, $4, $5)`,
		wh.ID, wh.URL, wh.Events, wh.IsEnabled, wh.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	hooks := []*models.Webhook{}
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, wh)
	}
	return hooks, rows.Err()
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	wh, err := scanWebhook(s.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordWebhookDelivery bumps the success or failure counter. Only a success
// moves last_delivery_at.
func (s *PostgresStore) RecordWebhookDelivery(ctx context.Context, id string, success bool, at time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if success {
		tag, err = s.pool.Exec(ctx,
			`UPDATE webhooks SET success_count = success_count + 1, last_delivery_at = $2 WHERE id = $1`, id, at)
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = $1`, id)
	}
	if err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanText makes caller or provider supplied text storable in a Postgres text
// column: NUL bytes are dropped and invalid UTF-8 becomes U+FFFD. The result
// never has more characters than s.
func CleanText(s string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
}

func cleanTextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := CleanText(*s)
	return &c
}

// utcDate truncates t to midnight of its UTC calendar day.
func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
