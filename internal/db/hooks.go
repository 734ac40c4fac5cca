package db

import (
	"time"

	"gorm.io/gorm"

	"example.com/premeepro/production/internal/metrics"
)

const startTimeKey = "metrics:start_time"

// Database query types
const (
	QueryTypeSelect = "select"
	QueryTypeInsert = "insert"
	QueryTypeUpdate = "update"
	QueryTypeDelete = "delete"
	QueryTypeRaw    = "raw"
)

// RegisterMetricsHooks records a timer and an error rate per query type
func RegisterMetricsHooks(db *gorm.DB, m *metrics.Metrics) error {
	record := func(queryType string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			name := "db_" + queryType
			m.RecordTimer(name, getDuration(tx))
			if tx.Error != nil && !IsRecordNotFoundError(tx.Error) {
				m.RecordError(name)
				return
			}
			m.RecordSuccess(name)
		}
	}

	cb := db.Callback()
	if err := cb.Create().After("gorm:create").Register("metrics:create", record(QueryTypeInsert)); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("metrics:query", record(QueryTypeSelect)); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("metrics:update", record(QueryTypeUpdate)); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("metrics:delete", record(QueryTypeDelete)); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("metrics:raw", record(QueryTypeRaw))
}

// RegisterDurationHooks stamps the start time of every statement
func RegisterDurationHooks(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("duration:create", stampStart); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("duration:query", stampStart); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("duration:update", stampStart); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("duration:delete", stampStart); err != nil {
		return err
	}
	return cb.Raw().Before("gorm:raw").Register("duration:raw", stampStart)
}

func stampStart(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func getDuration(tx *gorm.DB) time.Duration {
	if start, ok := tx.InstanceGet(startTimeKey); ok {
		if t, ok := start.(time.Time); ok {
			return time.Since(t)
		}
	}
	return 0
}
