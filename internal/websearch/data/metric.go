package data

import (
	"context"
	"time"

	"github.com/lk2023060901/ai-search-backend/internal/websearch/analytics"
	"gorm.io/gorm"
)

// SearchMetricPO represents one recorded search in the database.
type SearchMetricPO struct {
	ID            string    `gorm:"type:uuid;primarykey"`
	Query         string    `gorm:"type:text;not null"`
	Provider      string    `gorm:"size:64;not null;index"`
	Success       bool      `gorm:"not null"`
	ResultCount   int       `gorm:"not null;default:0"`
	ResponseTime  float64   `gorm:"not null"`
	ErrorMessage  string    `gorm:"type:text"`
	CacheHit      bool      `gorm:"not null;default:false"`
	FilteredCount int       `gorm:"not null;default:0"`
	Timestamp     time.Time `gorm:"not null;index"`
}

func (SearchMetricPO) TableName() string {
	return "search_metrics"
}

// MetricRepo implements analytics.Store on PostgreSQL.
type MetricRepo struct {
	db *gorm.DB
}

var _ analytics.Store = (*MetricRepo)(nil)

func NewMetricRepo(db *gorm.DB) *MetricRepo {
	return &MetricRepo{db: db}
}

func (r *MetricRepo) Save(ctx context.Context, m *analytics.Metric) error {
	return r.db.WithContext(ctx).Create(toMetricPO(m)).Error
}

// Prune deletes metrics recorded before the cutoff.
func (r *MetricRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp < ?", before).Delete(&SearchMetricPO{})
	return res.RowsAffected, res.Error
}

// Recent returns the newest metrics, oldest first.
func (r *MetricRepo) Recent(ctx context.Context, limit int) ([]*analytics.Metric, error) {
	var pos []SearchMetricPO
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&pos).Error; err != nil {
		return nil, err
	}

	metrics := make([]*analytics.Metric, len(pos))
	for i := range pos {
		metrics[len(pos)-1-i] = toMetric(&pos[i])
	}
	return metrics, nil
}

func toMetricPO(m *analytics.Metric) *SearchMetricPO {
	return &SearchMetricPO{
		ID:            m.ID,
		Query:         m.Query,
		Provider:      m.Provider,
		Success:       m.Success,
		ResultCount:   m.ResultCount,
		ResponseTime:  m.ResponseTime,
		ErrorMessage:  m.ErrorMessage,
		CacheHit:      m.CacheHit,
		FilteredCount: m.FilteredCount,
		Timestamp:     m.Timestamp,
	}
}

func toMetric(po *SearchMetricPO) *analytics.Metric {
	return &analytics.Metric{
		ID:            po.ID,
		Query:         po.Query,
		Provider:      po.Provider,
		Success:       po.Success,
		ResultCount:   po.ResultCount,
		ResponseTime:  po.ResponseTime,
		ErrorMessage:  po.ErrorMessage,
		CacheHit:      po.CacheHit,
		FilteredCount: po.FilteredCount,
		Timestamp:     po.Timestamp,
	}
}
