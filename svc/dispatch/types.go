package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of recipients a single definition carries
// when an authored request is split into a campaign.
const DefaultBatchSize = 65

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// TimeOfDay is an hour and minute. Seconds are ignored everywhere.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts HH:MM and HH:MM:SS; seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// TimeOf returns the hour and minute of t in t's location.
func TimeOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// NormalizePhone converts a Brazilian phone number to +55 E.164 form.
// Numbers already carrying the country code keep it; bare 10 or 11 digit
// numbers get +55 prepended.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, strings.TrimSpace(raw))

	switch n := len(cleaned); {
	case strings.HasPrefix(cleaned, "+55") && n >= 13 && n <= 14 && digitsOnly(cleaned[1:]):
		return cleaned, nil
	case strings.HasPrefix(cleaned, "55") && n >= 12 && n <= 13 && digitsOnly(cleaned):
		return "+" + cleaned, nil
	}

	digits := strings.ReplaceAll(cleaned, "+", "")
	if n := len(digits); n >= 10 && n <= 11 {
		return "+55" + digits, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
}

// NormalizeRecipients normalises every number, drops duplicates and keeps
// the first-seen order. Invalid numbers are returned separately.
func NormalizeRecipients(raw []string) (recipients, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		phone, err := NormalizePhone(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if _, ok := seen[phone]; ok {
			continue
		}
		seen[phone] = struct{}{}
		recipients = append(recipients, phone)
	}
	return recipients, invalid
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// SendMode selects which payloads a definition delivers.
type SendMode string

const (
	ModeText  SendMode = "text"
	ModeMedia SendMode = "media"
	ModeBoth  SendMode = "both"
)

// Ordering decides which payload goes first when SendMode is ModeBoth.
type Ordering string

const (
	TextFirst  Ordering = "text_first"
	MediaFirst Ordering = "media_first"
)

// Button is a link button attached to a text message.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

func (b *Button) complete() bool {
	return b != nil && b.Label != "" && b.URL != ""
}

// Definition is one schedulable campaign unit. The scheduler only reads it.
type Definition struct {
	ID         int64
	OwnerID    int64
	CampaignID uuid.UUID
	Sequence   int
	Dates      []Date
	Time       TimeOfDay
	Recipients []string
	Interval   time.Duration
	Body       string
	Mode       SendMode
	Order      Ordering
	MediaID    *int64
	Button     *Button
}

// Validate checks the invariants every stored definition must satisfy.
func (d *Definition) Validate() error {
	var errs []error
	if !d.Time.valid() {
		errs = append(errs, fmt.Errorf("time of day %s out of range", d.Time))
	}
	if len(d.Recipients) == 0 {
		errs = append(errs, errors.New("at least one recipient is required"))
	}
	for _, r := range d.Recipients {
		if phone, err := NormalizePhone(r); err != nil || phone != r {
			errs = append(errs, fmt.Errorf("recipient %q is not normalised", r))
		}
	}
	if d.Interval < time.Second {
		errs = append(errs, errors.New("interval must be at least one second"))
	}
	switch d.Mode {
	case ModeText:
		if strings.TrimSpace(d.Body) == "" {
			errs = append(errs, errors.New("text mode requires a body"))
		}
	case ModeMedia:
	case ModeBoth:
		if d.Order != TextFirst && d.Order != MediaFirst {
			errs = append(errs, fmt.Errorf("unknown ordering %q", d.Order))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown send mode %q", d.Mode))
	}
	if d.Button != nil && !d.Button.complete() {
		errs = append(errs, errors.New("button requires both label and url"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDefinition}, errs...)...)
	}
	return nil
}

// ScheduledOn reports whether day is one of the definition's trigger dates.
func (d *Definition) ScheduledOn(day Date) bool {
	return slices.Contains(d.Dates, day)
}

// SplitCampaign splits def into definitions of at most size recipients.
// All parts share a fresh campaign id and are numbered in order.
// It serves the authoring side that writes definitions; the scheduler
// only reads what that side stored.
func SplitCampaign(def Definition, size int) ([]Definition, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}

	campaign := uuid.New()
	parts := make([]Definition, 0, (len(def.Recipients)+size-1)/size)
	for chunk := range slices.Chunk(def.Recipients, size) {
		part := def
		part.ID = 0
		part.CampaignID = campaign
		part.Sequence = len(parts)
		part.Recipients = slices.Clone(chunk)
		part.Dates = slices.Clone(def.Dates)
		parts = append(parts, part)
	}
	return parts, nil
}

// SendRecord is one quota accounting entry per submitted contact.
type SendRecord struct {
	OwnerID     int64
	Description string
	CreatedAt   time.Time
}

// QuotaPolicy is the per-owner daily ceiling.
type QuotaPolicy struct {
	OwnerID    int64
	DailyLimit int
}

// Credentials address an owner's messaging instance.
type Credentials struct {
	Host     string
	APIKey   string
	Instance string
}

// MediaKind is the transport media type.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaDocument, MediaAudio:
		return true
	}
	return false
}

// Media is a stored media record.
type Media struct {
	ID       int64
	OwnerID  int64
	Kind     MediaKind
	Name     string
	MimeType string
	Key      string
}

// OperationKind tags a SendOperation variant.
type OperationKind string

const (
	OpText   OperationKind = "text"
	OpButton OperationKind = "button"
	OpMedia  OperationKind = "media"
)

func (k OperationKind) suffix() string {
	switch k {
	case OpText:
		return "txt"
	case OpButton:
		return "btn"
	case OpMedia:
		return "mid"
	}
	return string(k)
}

// SendOperation is one planned delivery to one recipient. It is the task
// queue payload consumed by the sender.
type SendOperation struct {
	Kind          OperationKind `json:"kind"`
	OwnerID       int64         `json:"owner_id"`
	DefinitionID  int64         `json:"definition_id"`
	CampaignID    uuid.UUID     `json:"campaign_id"`
	ContactIndex  int           `json:"contact_index"`
	Recipient     string        `json:"recipient"`
	Body          string        `json:"body,omitempty"`
	Button        *Button       `json:"button,omitempty"`
	MediaID       *int64        `json:"media_id,omitempty"`
	Delay         time.Duration `json:"delay"`
	CorrelationID string        `json:"correlation_id"`
}

// CorrelationID builds the per-operation id used in logs.
func CorrelationID(definitionID int64, campaign uuid.UUID, contactIndex int, kind OperationKind) string {
	return fmt.Sprintf("%d-%s-%d-%s", definitionID, campaign, contactIndex, kind.suffix())
}
