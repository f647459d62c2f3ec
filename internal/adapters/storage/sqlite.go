// Package storage persists the vulnerability projection using GORM and
// SQLite.
package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
)

// SQLiteAdapter implements ports.VulnerabilityStore using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// VulnerabilityModel is the GORM model for stored vulnerabilities.
type VulnerabilityModel struct {
	CVEID            string `gorm:"primaryKey;column:cve_id"`
	Description      string
	CVSSScore        float64 `gorm:"column:cvss_score"`
	CVSSVector       string  `gorm:"column:cvss_vector"`
	HasCVSS          bool    `gorm:"column:has_cvss"`
	EPSSScore        float64 `gorm:"column:epss_score"`
	EPSSPercentile   float64 `gorm:"column:epss_percentile"`
	InKEV            bool    `gorm:"column:in_kev"`
	KEVDueDate       string  `gorm:"column:kev_due_date"`
	KnownRansomware  bool
	RiskScore        float64
	Severity         string
	Components       string // JSON encoded domain.ScoreComponents
	DetailIncomplete bool
	Degraded         bool
	Status           string
	Notes            string
	FirstSeen        time.Time
	LastSeen         time.Time
	LastEnrichedAt   time.Time
}

// upsertColumns are the fields refreshed on re-enrichment. FirstSeen,
// Status and Notes are operator-owned state and survive upserts.
var upsertColumns = []string{
	"description", "cvss_score", "cvss_vector", "has_cvss",
	"epss_score", "epss_percentile", "in_kev", "kev_due_date",
	"known_ransomware", "risk_score", "severity", "components",
	"detail_incomplete", "degraded", "last_seen", "last_enriched_at",
}

// NewSQLiteAdapter initializes the database and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&VulnerabilityModel{}); err != nil {
		return nil, err
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_vulns_risk_score ON vulnerability_models(risk_score)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_vulns_severity ON vulnerability_models(severity)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_vulns_status ON vulnerability_models(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_vulns_in_kev ON vulnerability_models(in_kev)")

	return &SQLiteAdapter{db: db}, nil
}

// UpsertVulnerability saves or refreshes one record.
func (a *SQLiteAdapter) UpsertVulnerability(ctx context.Context, rec domain.VulnerabilityRecord) error {
	model := toModel(rec)
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cve_id"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&model).Error
}

// UpsertVulnerabilitiesBatch saves multiple records in one transaction.
func (a *SQLiteAdapter) UpsertVulnerabilitiesBatch(ctx context.Context, recs []domain.VulnerabilityRecord) error {
	if len(recs) == 0 {
		return nil
	}

	models := make([]VulnerabilityModel, len(recs))
	for i, r := range recs {
		models[i] = toModel(r)
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cve_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).CreateInBatches(models, 100).Error
	})
}

// GetVulnerability retrieves one record, (nil, nil) when unknown.
func (a *SQLiteAdapter) GetVulnerability(ctx context.Context, cveID string) (*domain.VulnerabilityRecord, error) {
	var model VulnerabilityModel
	err := a.db.WithContext(ctx).First(&model, "cve_id = ?", cveID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := toDomain(model)
	return &rec, nil
}

// sortColumns whitelists caller-supplied sort keys.
var sortColumns = map[string]string{
	"risk_score":    "risk_score",
	"cvss_v3_score": "cvss_score",
	"epss_score":    "epss_score",
	"first_seen":    "first_seen",
}

// ListVulnerabilities retrieves records matching the filter.
func (a *SQLiteAdapter) ListVulnerabilities(ctx context.Context, filter domain.VulnerabilityFilter) ([]domain.VulnerabilityRecord, error) {
	query := a.db.WithContext(ctx).Model(&VulnerabilityModel{})

	if filter.Severity != "" {
		query = query.Where("severity = ?", string(filter.Severity))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.InKEV != nil {
		query = query.Where("in_kev = ?", *filter.InKEV)
	}
	if filter.MinRiskScore != nil {
		query = query.Where("risk_score >= ?", *filter.MinRiskScore)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "risk_score"
	}
	direction := "ASC"
	if filter.SortDesc || filter.SortBy == "" {
		direction = "DESC"
	}
	query = query.Order(column + " " + direction)

	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []VulnerabilityModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	recs := make([]domain.VulnerabilityRecord, len(models))
	for i, m := range models {
		recs[i] = toDomain(m)
	}
	return recs, nil
}

// ListCVEIDs returns every stored identifier.
func (a *SQLiteAdapter) ListCVEIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).Pluck("cve_id", &ids).Error
	return ids, err
}

// UpdateStatus moves a vulnerability through its remediation lifecycle.
func (a *SQLiteAdapter) UpdateStatus(ctx context.Context, cveID string, status domain.VulnerabilityStatus, notes string) error {
	res := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).
		Where("cve_id = ?", cveID).
		Updates(map[string]interface{}{"status": string(status), "notes": notes})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Stats summarizes the stored set.
func (a *SQLiteAdapter) Stats(ctx context.Context) (domain.VulnerabilityStats, error) {
	stats := domain.VulnerabilityStats{
		BySeverity: make(map[domain.Severity]int64),
		ByStatus:   make(map[domain.VulnerabilityStatus]int64),
	}

	db := a.db.WithContext(ctx).Model(&VulnerabilityModel{})
	if err := db.Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	if stats.Total == 0 {
		return stats, nil
	}

	type group struct {
		Key   string
		Count int64
	}

	var bySeverity []group
	if err := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).
		Select("severity AS key, COUNT(*) AS count").Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return stats, err
	}
	for _, g := range bySeverity {
		stats.BySeverity[domain.Severity(g.Key)] = g.Count
	}

	var byStatus []group
	if err := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).
		Select("status AS key, COUNT(*) AS count").Group("status").
		Scan(&byStatus).Error; err != nil {
		return stats, err
	}
	for _, g := range byStatus {
		stats.ByStatus[domain.VulnerabilityStatus(g.Key)] = g.Count
	}

	if err := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).
		Select("COALESCE(AVG(risk_score), 0)").Scan(&stats.AvgRiskScore).Error; err != nil {
		return stats, err
	}

	if err := a.db.WithContext(ctx).Model(&VulnerabilityModel{}).
		Where("in_kev = ?", true).Count(&stats.KEVCount).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

// Close closes the underlying database.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.VulnerabilityStore = (*SQLiteAdapter)(nil)
