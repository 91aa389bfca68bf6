// Package repository persists model records and their prediction statistics.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite" // registers "sqlite"

	"github.com/okian/gesture/internal/domain/model"
	"github.com/okian/gesture/pkg/logger"
)

// Store is a bun-backed model repository.
type Store struct {
	db     *bun.DB
	driver string
	log    logger.Logger

	maxOpenConns    int
	connMaxLifetime time.Duration
}

// Open connects to driver (sqlite, postgres or mysql), creates the schema if
// missing and returns the store.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	s := &Store{driver: driver, maxOpenConns: 10, connMaxLifetime: 5 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}

	driverName := driver
	switch driver {
	case "sqlite":
	case "postgres":
		driverName = "pgx"
	case "mysql":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	maxOpen := s.maxOpenConns
	if driver == "sqlite" && (dsn == ":memory:" || dsn == "file::memory:") {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(s.connMaxLifetime)

	s.db = bun.NewDB(sqlDB, dialectFor(driver))
	if err := s.db.PingContext(ctx); err != nil {
		_ = s.db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := s.createSchema(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	s.log.Info(ctx, "database ready", logger.String("driver", driver))
	return s, nil
}

func dialectFor(driver string) schema.Dialect {
	switch driver {
	case "postgres":
		return pgdialect.New()
	case "mysql":
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*modelRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table models: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*statsRow)(nil)).IfNotExists().
		ForeignKey("(model_id) REFERENCES models (id) ON DELETE CASCADE").
		Exec(ctx); err != nil {
		return fmt.Errorf("create table model_statistics: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListModelRecords returns every model ordered by id.
func (s *Store) ListModelRecords(ctx context.Context) ([]model.ModelRecord, error) {
	var rows []modelRow
	if err := s.db.NewSelect().Model(&rows).OrderExpr("m.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]model.ModelRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

// GetModel returns one model record.
func (s *Store) GetModel(ctx context.Context, id int) (model.ModelRecord, error) {
	var row modelRow
	err := s.db.NewSelect().Model(&row).Where("m.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ModelRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.ModelRecord{}, fmt.Errorf("get model %d: %w", id, err)
	}
	return row.toRecord(), nil
}

// ListModelsWithStats returns every model with its statistics row.
func (s *Store) ListModelsWithStats(ctx context.Context) ([]model.ModelWithStats, error) {
	var rows []modelRow
	if err := s.db.NewSelect().Model(&rows).Relation("Statistics").OrderExpr("m.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list models with statistics: %w", err)
	}
	out := make([]model.ModelWithStats, len(rows))
	for i, r := range rows {
		out[i].ModelRecord = r.toRecord()
		if r.Statistics != nil {
			out[i].Statistics = model.Statistics{
				TotalPredictions: r.Statistics.TotalPredictions,
				WrongPredictions: r.Statistics.WrongPredictions,
			}
		}
	}
	return out, nil
}

// IncrementStatistics counts one rated prediction for modelID, and a wrong
// one when wrong is set.
func (s *Store) IncrementStatistics(ctx context.Context, modelID int, wrong bool) error {
	wrongInc := 0
	if wrong {
		wrongInc = 1
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*modelRow)(nil)).Where("m.id = ?", modelID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check model %d: %w", modelID, err)
		}
		if !exists {
			return fmt.Errorf("%w: %d", ErrNotFound, modelID)
		}
		res, err := tx.NewUpdate().Model((*statsRow)(nil)).
			Set("total_predictions = total_predictions + 1").
			Set("wrong_predictions = wrong_predictions + ?", wrongInc).
			Where("model_id = ?", modelID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update statistics %d: %w", modelID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		row := &statsRow{ModelID: modelID, TotalPredictions: 1, WrongPredictions: int64(wrongInc)}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert statistics %d: %w", modelID, err)
		}
		return nil
	})
}

// InsertModels stores records with zeroed statistics. Records with ID 0 get
// one assigned; the returned slice carries the final ids.
func (s *Store) InsertModels(ctx context.Context, recs []model.ModelRecord) ([]model.ModelRecord, error) {
	out := make([]model.ModelRecord, 0, len(recs))
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rec := range recs {
			row := fromRecord(rec)
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return fmt.Errorf("insert model %q: %w", rec.Name, err)
			}
			stats := &statsRow{ModelID: row.ID}
			if _, err := tx.NewInsert().Model(stats).Exec(ctx); err != nil {
				return fmt.Errorf("insert statistics for %q: %w", rec.Name, err)
			}
			out = append(out, row.toRecord())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored models.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*modelRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count models: %w", err)
	}
	return n, nil
}
