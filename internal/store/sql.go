package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/nodeflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRecord 对应 workflow_documents 表
type documentRecord struct {
	Name      string `gorm:"primaryKey;size:128"`
	Data      string `gorm:"type:text;not null"`
	Checksum  string `gorm:"size:64;not null"`
	Revision  int64  `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (documentRecord) TableName() string { return "workflow_documents" }

// revisionRecord 对应 workflow_revisions 表，每次内容变化追加一行
type revisionRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;not null;uniqueIndex:idx_workflow_revisions_name_revision"`
	Revision  int64  `gorm:"not null;uniqueIndex:idx_workflow_revisions_name_revision"`
	Data      string `gorm:"type:text;not null"`
	Checksum  string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

func (revisionRecord) TableName() string { return "workflow_revisions" }

// Revision is one saved version of the document.
type Revision struct {
	Revision  int64     `json:"revision"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLOptions configures the SQL backend.
type SQLOptions struct {
	// Name is the document row key.
	Name string
	// AutoMigrate creates the tables with GORM on open.
	AutoMigrate bool
	// SaveRetries bounds retries of a save transaction on deadlocks.
	SaveRetries int
}

// SQL stores the document in a relational database through GORM.
type SQL struct {
	pool   *database.PoolManager
	opts   SQLOptions
	logger *zap.Logger
}

// NewSQL wraps an open pool. The pool is owned by the store afterwards.
func NewSQL(pool *database.PoolManager, opts SQLOptions, logger *zap.Logger) (*SQL, error) {
	if pool == nil {
		return nil, errors.New("sql store requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.SaveRetries <= 0 {
		opts.SaveRetries = 3
	}
	s := &SQL{
		pool:   pool,
		opts:   opts,
		logger: logger.With(zap.String("component", "sql_store"), zap.String("dialect", pool.Dialect())),
	}
	if opts.AutoMigrate {
		if err := pool.DB().AutoMigrate(&documentRecord{}, &revisionRecord{}); err != nil {
			return nil, fmt.Errorf("auto migrate workflow tables: %w", err)
		}
	}
	return s, nil
}

func (s *SQL) Driver() string { return "database" }

func (s *SQL) Load(ctx context.Context) ([]byte, error) {
	var rec documentRecord
	err := s.pool.DB().WithContext(ctx).Where("name = ?", s.opts.Name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load workflow document %q: %w", s.opts.Name, err)
	}
	return []byte(rec.Data), nil
}

// Save writes the document and appends a revision. Saving identical
// content is a no-op.
func (s *SQL) Save(ctx context.Context, data []byte) error {
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	var revision int64
	err := s.pool.WithTransactionRetry(ctx, s.opts.SaveRetries, func(tx *gorm.DB) error {
		var current documentRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", s.opts.Name).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			revision = 1
			if err := tx.Create(&documentRecord{
				Name:     s.opts.Name,
				Data:     string(data),
				Checksum: checksum,
				Revision: revision,
			}).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		case current.Checksum == checksum:
			revision = 0
			return nil
		default:
			revision = current.Revision + 1
			if err := tx.Model(&documentRecord{}).Where("name = ?", s.opts.Name).Updates(map[string]any{
				"data":       string(data),
				"checksum":   checksum,
				"revision":   revision,
				"updated_at": time.Now(),
			}).Error; err != nil {
				return err
			}
		}
		return tx.Create(&revisionRecord{
			Name:     s.opts.Name,
			Revision: revision,
			Data:     string(data),
			Checksum: checksum,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("save workflow document %q: %w", s.opts.Name, err)
	}
	if revision > 0 {
		s.logger.Info("workflow document saved",
			zap.String("name", s.opts.Name),
			zap.Int64("revision", revision))
	}
	return nil
}

// Revisions lists saved versions, newest first.
func (s *SQL) Revisions(ctx context.Context, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []revisionRecord
	err := s.pool.DB().WithContext(ctx).
		Select("revision", "checksum", "created_at").
		Where("name = ?", s.opts.Name).
		Order("revision DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	out := make([]Revision, len(recs))
	for i, r := range recs {
		out[i] = Revision{Revision: r.Revision, Checksum: r.Checksum, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

// LoadRevision returns the content of one revision.
func (s *SQL) LoadRevision(ctx context.Context, revision int64) ([]byte, error) {
	var rec revisionRecord
	err := s.pool.DB().WithContext(ctx).
		Where("name = ? AND revision = ?", s.opts.Name, revision).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load revision %d: %w", revision, err)
	}
	return []byte(rec.Data), nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *SQL) Close() error                   { return s.pool.Close() }
