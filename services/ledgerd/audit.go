package ledgerd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuditRecord is an append-only entry describing a committed mutation.
type AuditRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RequestID string    `gorm:"size:64;index"`
	Operation string    `gorm:"size:32;index"`
	Subject   string    `gorm:"size:42;index"`
	Payload   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName pins the audit table name.
func (AuditRecord) TableName() string { return "ledger_audit" }

// AuditLog writes committed ledger outcomes to a relational store.
type AuditLog struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenAuditLog connects to the configured backend and migrates the schema.
func OpenAuditLog(cfg AuditConfig) (*AuditLog, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return NewAuditLog(db)
}

// NewAuditLog wraps an existing gorm handle.
func NewAuditLog(db *gorm.DB) (*AuditLog, error) {
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	return &AuditLog{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends an entry. The payload is stored as JSON.
func (a *AuditLog) Record(ctx context.Context, requestID, op, subject string, payload any) error {
	if a == nil {
		return nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	record := AuditRecord{
		ID:        uuid.New(),
		RequestID: requestID,
		Operation: op,
		Subject:   subject,
		Payload:   string(encoded),
		CreatedAt: a.now().UTC(),
	}
	return a.db.WithContext(ctx).Create(&record).Error
}

// Recent returns up to limit entries for op, newest first. An empty op
// matches every operation.
func (a *AuditLog) Recent(ctx context.Context, op string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := a.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if op != "" {
		query = query.Where("operation = ?", op)
	}
	var out []AuditRecord
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
