package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dscengine/core/events"
)

// Record is one committed engine event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type       string    `gorm:"size:64;index"`
	Account    string    `gorm:"size:128;index"`
	Asset      string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table regardless of gorm naming strategy.
func (Record) TableName() string { return "stablecoin_audit_records" }

// AttributeMap decodes the stored attributes.
func (r Record) AttributeMap() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return out, nil
}

// AutoMigrate performs the schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Open connects to the journal database. Supported drivers are sqlite and
// postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("audit: postgres dsn required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("audit: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return db, nil
}

// Journal writes engine events to the database. It implements events.Emitter;
// write failures are logged because emitters cannot return errors.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  func() time.Time
}

// NewJournal wraps db.
func NewJournal(db *gorm.DB, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log, clock: time.Now}
}

// SetClock overrides the record timestamp source.
func (j *Journal) SetClock(clock func() time.Time) {
	if clock == nil {
		clock = time.Now
	}
	j.clock = clock
}

// Emit implements events.Emitter.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if err := j.Record(context.Background(), evt); err != nil {
		j.logger.Error("audit write failed", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt.
func (j *Journal) Record(ctx context.Context, evt events.Event) error {
	rendered := evt.Event()
	if rendered == nil {
		return fmt.Errorf("audit: event %s rendered nothing", evt.EventType())
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return fmt.Errorf("audit: encode attributes: %w", err)
	}
	record := Record{
		ID:         uuid.New(),
		Type:       rendered.Type,
		Account:    subject(rendered.Attributes),
		Asset:      rendered.Attr("asset"),
		Attributes: string(attrs),
		CreatedAt:  j.clock().UTC(),
	}
	return j.db.WithContext(ctx).Create(&record).Error
}

// subject picks the position owner an event is about.
func subject(attrs map[string]string) string {
	for _, key := range []string{"account", "onBehalfOf", "from"} {
		if value := attrs[key]; value != "" {
			return value
		}
	}
	return ""
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Account string
	Type    string
	Limit   int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// List returns records newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := j.db.WithContext(ctx).Model(&Record{})
	if account := strings.TrimSpace(filter.Account); account != "" {
		query = query.Where("account = ?", account)
	}
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		query = query.Where("type = ?", typ)
	}
	var records []Record
	if err := query.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}
