package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"tributary/internal/classifier"
	"tributary/internal/models"
	"tributary/internal/provider"
	"tributary/internal/uuid"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewOwnerID returns a fresh owner UUID so fixtures never collide across
// tests sharing the cached in-memory database.
func NewOwnerID() string {
	return uuid.New()
}

// ExternalTransaction builds a raw aggregator record with a unique external
// ID. Negative amounts are money out.
func ExternalTransaction(amount float64, description string) models.ExternalTransaction {
	n := nextID()
	return models.ExternalTransaction{
		ExternalID:   fmt.Sprintf("ext-%d", n),
		AccountID:    "acct-1",
		Amount:       amount,
		Currency:     "USD",
		Date:         time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Description:  description,
		MerchantName: description,
	}
}

// CreateTestBatch creates an import batch in the given status.
func CreateTestBatch(t *testing.T, db *gorm.DB, ownerID string, status models.BatchStatus) *models.ImportBatch {
	t.Helper()

	batch := &models.ImportBatch{
		OwnerID:        ownerID,
		AccountIDs:     models.StringSlice{"acct-1"},
		FromDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ToDate:         time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:         status,
		AutoCategorize: true,
	}
	if err := db.Create(batch).Error; err != nil {
		t.Fatalf("failed to create test batch: %v", err)
	}
	return batch
}

// CreateTestStaged creates a pending staged transaction in the batch.
func CreateTestStaged(t *testing.T, db *gorm.DB, batch *models.ImportBatch, amount float64, description string) *models.StagedTransaction {
	t.Helper()

	n := nextID()
	staged := &models.StagedTransaction{
		BatchID:           batch.ID,
		OwnerID:           batch.OwnerID,
		ExternalID:        fmt.Sprintf("ext-%d", n),
		ExternalAccountID: "acct-1",
		Kind:              models.TransactionKindDebit,
		Amount:            amount,
		Currency:          "USD",
		Date:              time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Description:       description,
		MerchantName:      description,
		ReviewStatus:      models.ReviewStatusPending,
		RawPayload:        models.JSONMap{"description": description},
	}
	if err := db.Create(staged).Error; err != nil {
		t.Fatalf("failed to create test staged transaction: %v", err)
	}
	return staged
}

// CreateTestBudget creates a budget with a single category of the given
// planned amount, returning both.
func CreateTestBudget(t *testing.T, db *gorm.DB, ownerID string, plannedAmount float64) (*models.Budget, *models.BudgetCategory) {
	t.Helper()

	budget := &models.Budget{
		OwnerID:   ownerID,
		Name:      fmt.Sprintf("Budget %d", nextID()),
		Period:    models.BudgetPeriodMonthly,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}

	category := &models.BudgetCategory{
		BudgetID:      budget.ID,
		OwnerID:       ownerID,
		Name:          "Groceries",
		PlannedAmount: plannedAmount,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test budget category: %v", err)
	}
	return budget, category
}

// LinkStagedToBudget points a staged transaction at a budget category.
func LinkStagedToBudget(t *testing.T, db *gorm.DB, staged *models.StagedTransaction, category *models.BudgetCategory) {
	t.Helper()

	err := db.Model(staged).Updates(map[string]interface{}{
		"budget_id":          category.BudgetID,
		"budget_category_id": category.ID,
	}).Error
	if err != nil {
		t.Fatalf("failed to link staged transaction to budget: %v", err)
	}
	staged.BudgetID = &category.BudgetID
	staged.BudgetCategoryID = &category.ID
}

// FakeAggregator is a provider.Aggregator returning canned transactions or
// a fixed error.
type FakeAggregator struct {
	Transactions []models.ExternalTransaction
	Err          error
	Calls        int
}

// FetchTransactions implements provider.Aggregator.
func (f *FakeAggregator) FetchTransactions(_ context.Context, _ provider.Connection, _, _ time.Time) ([]models.ExternalTransaction, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Transactions, nil
}

// FakeClassifier is a classifier.BatchClassifier returning canned
// suggestions or a fixed error.
type FakeClassifier struct {
	Suggestions []classifier.Suggestion
	Err         error
	Calls       int
}

// ClassifyBatch implements classifier.BatchClassifier.
func (f *FakeClassifier) ClassifyBatch(_ context.Context, _ []models.StagedTransaction, _ []string, _ []models.CorrectionRecord) ([]classifier.Suggestion, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Suggestions, nil
}
