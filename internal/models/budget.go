package models

import "time"

// BudgetPeriod represents the period type for a budget
type BudgetPeriod string

const (
	BudgetPeriodMonthly BudgetPeriod = "monthly"
	BudgetPeriodYearly  BudgetPeriod = "yearly"
)

// HealthStatus classifies a budget by how far actual spend exceeds planned
// spend: healthy at or below 110% of the planned total, warning above 110%
// up to 120%, critical above 120%.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// Budget is the owning plan a set of categories belongs to. Which budget a
// spending category maps to is supplied externally; this subsystem only
// applies approved amounts and recomputes variance.
type Budget struct {
	Base
	OwnerID   string       `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name      string       `gorm:"not null" json:"name"`
	Period    BudgetPeriod `gorm:"not null;default:'monthly'" json:"period"`
	StartDate time.Time    `json:"start_date"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	IsActive  bool         `gorm:"default:true" json:"is_active"`

	// Relationships
	Categories []BudgetCategory `gorm:"foreignKey:BudgetID" json:"categories,omitempty"`
}

// BudgetCategory is one allocation bucket inside a budget. ActualAmount is
// the running total accumulated by reconciliation; the budget rows are the
// source of truth for running totals, not the reconciler.
type BudgetCategory struct {
	Base
	BudgetID      string  `gorm:"type:uuid;not null;index" json:"budget_id"`
	OwnerID       string  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name          string  `gorm:"not null" json:"name"`
	PlannedAmount float64 `gorm:"not null" json:"planned_amount"`
	ActualAmount  float64 `gorm:"not null;default:0" json:"actual_amount"`

	// Relationships
	Budget Budget `gorm:"foreignKey:BudgetID" json:"-"`
}

// Variance returns actual minus planned for this category.
func (c *BudgetCategory) Variance() float64 {
	return c.ActualAmount - c.PlannedAmount
}
