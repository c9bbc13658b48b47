package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/agendazap/dispatcher/pkg/logger"
	"github.com/agendazap/dispatcher/svc/dispatch"
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL repository behind the scheduler and the sender.
// Rows are parsed into dispatch types here; definitions that do not parse
// are logged and left out.
type Store struct {
	db  DB
	log *slog.Logger
}

var (
	_ dispatch.Store              = (*Store)(nil)
	_ dispatch.QuotaStore         = (*Store)(nil)
	_ dispatch.CredentialResolver = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped rows. Nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a store on top of db.
func New(db DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	s := &Store{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("store"))
	return s, nil
}

const definitionColumns = `id, owner_id, campaign_id, sequence, send_dates, send_time, recipients,
	interval_seconds, body, send_mode, ordering, media_id, button_label, button_url`

// ListDue returns the definitions scheduled on day at the given minute.
func (s *Store) ListDue(ctx context.Context, day dispatch.Date, at dispatch.TimeOfDay) ([]dispatch.Definition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+definitionColumns+`
		FROM message_definitions
		WHERE date_part('hour', send_time)::int = $2
			AND date_part('minute', send_time)::int = $3
			AND send_dates ? $1
		ORDER BY id`,
		day.String(), at.Hour, at.Minute,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due definitions: %w", err)
	}
	defer rows.Close()

	var defs []dispatch.Definition
	for rows.Next() {
		var row definitionRow
		if err := rows.Scan(
			&row.ID, &row.OwnerID, &row.CampaignID, &row.Sequence, &row.Dates, &row.Time,
			&row.Recipients, &row.IntervalSeconds, &row.Body, &row.Mode, &row.Order,
			&row.MediaID, &row.ButtonLabel, &row.ButtonURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		def, invalid, err := row.definition()
		if len(invalid) > 0 {
			s.log.WarnContext(ctx, "dropped invalid recipients",
				logger.DefinitionID(row.ID),
				slog.Int("count", len(invalid)),
			)
		}
		if err != nil {
			s.log.ErrorContext(ctx, "skipping unparseable definition",
				logger.DefinitionID(row.ID),
				logger.Owner(row.OwnerID),
				logger.Error(err),
			)
			continue
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read due definitions: %w", err)
	}

	return defs, nil
}

// CreateSendRecord stores rec and files it under the local calendar day of CreatedAt.
func (s *Store) CreateSendRecord(ctx context.Context, rec dispatch.SendRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO send_records (owner_id, description, sent_on, created_at)
		VALUES ($1, $2, $3::date, $4)`,
		rec.OwnerID, rec.Description, dispatch.DateOf(rec.CreatedAt).String(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert send record for owner %d: %w", rec.OwnerID, err)
	}
	return nil
}

func (s *Store) CountSentOn(ctx context.Context, ownerID int64, day dispatch.Date) (int, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM send_records WHERE owner_id = $1 AND sent_on = $2::date`,
		ownerID, day.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sends for owner %d: %w", ownerID, err)
	}
	return int(n), nil
}

func (s *Store) GetQuotaPolicy(ctx context.Context, ownerID int64) (dispatch.QuotaPolicy, error) {
	p := dispatch.QuotaPolicy{OwnerID: ownerID}
	err := s.db.QueryRow(ctx,
		`SELECT daily_limit FROM quota_policies WHERE owner_id = $1`, ownerID,
	).Scan(&p.DailyLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.QuotaPolicy{}, dispatch.ErrPolicyNotFound
	}
	if err != nil {
		return dispatch.QuotaPolicy{}, fmt.Errorf("failed to load quota policy for owner %d: %w", ownerID, err)
	}
	return p, nil
}

// ResolveCredentials joins the owner's active API settings with their instance.
func (s *Store) ResolveCredentials(ctx context.Context, ownerID int64) (dispatch.Credentials, error) {
	var c dispatch.Credentials
	err := s.db.QueryRow(ctx, `
		SELECT a.api_host, a.api_key, i.name
		FROM api_settings a
		JOIN instances i ON i.owner_id = a.owner_id
		WHERE a.owner_id = $1 AND a.is_active`,
		ownerID,
	).Scan(&c.Host, &c.APIKey, &c.Instance)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.Credentials{}, fmt.Errorf("%w: owner %d", dispatch.ErrConfigurationMissing, ownerID)
	}
	if err != nil {
		return dispatch.Credentials{}, fmt.Errorf("failed to resolve credentials for owner %d: %w", ownerID, err)
	}
	if strings.TrimSpace(c.Host) == "" || c.APIKey == "" || c.Instance == "" {
		return dispatch.Credentials{}, fmt.Errorf("%w: owner %d has incomplete settings", dispatch.ErrConfigurationMissing, ownerID)
	}
	return c, nil
}

func (s *Store) GetMedia(ctx context.Context, id int64) (dispatch.Media, error) {
	var (
		m    dispatch.Media
		kind string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_id, kind, name, coalesce(mime_type, ''), storage_key
		FROM media WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.OwnerID, &kind, &m.Name, &m.MimeType, &m.Key)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.Media{}, fmt.Errorf("%w: %d", dispatch.ErrMediaNotFound, id)
	}
	if err != nil {
		return dispatch.Media{}, fmt.Errorf("failed to load media %d: %w", id, err)
	}
	m.Kind = dispatch.MediaKind(kind)
	return m, nil
}

type definitionRow struct {
	ID              int64
	OwnerID         int64
	CampaignID      uuid.UUID
	Sequence        int32
	Dates           []string
	Time            pgtype.Time
	Recipients      []string
	IntervalSeconds int32
	Body            string
	Mode            string
	Order           string
	MediaID         *int64
	ButtonLabel     *string
	ButtonURL       *string
}

// definition parses the row. invalid lists recipients dropped by phone normalisation.
func (r definitionRow) definition() (def dispatch.Definition, invalid []string, err error) {
	def = dispatch.Definition{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		CampaignID: r.CampaignID,
		Sequence:   int(r.Sequence),
		Interval:   time.Duration(r.IntervalSeconds) * time.Second,
		Body:       r.Body,
		Mode:       dispatch.SendMode(r.Mode),
		Order:      dispatch.Ordering(r.Order),
		MediaID:    r.MediaID,
	}

	if !r.Time.Valid {
		return def, nil, fmt.Errorf("%w: send time missing", dispatch.ErrInvalidTime)
	}
	minutes := r.Time.Microseconds / int64(time.Minute/time.Microsecond)
	def.Time = dispatch.TimeOfDay{Hour: int(minutes / 60), Minute: int(minutes % 60)}

	for _, raw := range r.Dates {
		d, err := dispatch.ParseDate(raw)
		if err != nil {
			return def, nil, err
		}
		def.Dates = append(def.Dates, d)
	}

	def.Recipients, invalid = dispatch.NormalizeRecipients(r.Recipients)

	if label, link := deref(r.ButtonLabel), deref(r.ButtonURL); label != "" || link != "" {
		def.Button = &dispatch.Button{Label: label, URL: link}
	}

	return def, invalid, def.Validate()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
