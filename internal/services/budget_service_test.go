package services

import (
	"testing"
	"time"

	"tributary/internal/models"
	"tributary/internal/pagination"
	"tributary/internal/testutil"
	"tributary/internal/uuid"
)

func TestCreateBudgetWithCategories(t *testing.T) {
	t.Run("creates_budget_and_categories", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()

		budget, err := svc.CreateBudget(owner, "March", models.BudgetPeriodMonthly,
			time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), nil,
			[]BudgetCategoryInput{
				{Name: "Groceries", PlannedAmount: 500},
				{Name: "Transport", PlannedAmount: 200},
			})
		testutil.AssertNoError(t, err)

		if len(budget.Categories) != 2 {
			t.Fatalf("expected 2 categories, got %d", len(budget.Categories))
		}
		if !budget.IsActive {
			t.Error("expected budget to be active")
		}

		var count int64
		db.Model(&models.BudgetCategory{}).Where("budget_id = ?", budget.ID).Count(&count)
		if count != 2 {
			t.Errorf("expected 2 persisted categories, got %d", count)
		}
	})
}

func TestGetBudgetHealth(t *testing.T) {
	t.Run("sums_all_categories", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()
		budget, category := testutil.CreateTestBudget(t, db, owner, 500)

		db.Model(category).Update("actual_amount", 575.0)

		health, err := svc.GetBudgetHealth(owner, budget.ID)
		testutil.AssertNoError(t, err)
		if health.PlannedAmount != 500 || health.ActualAmount != 575 {
			t.Errorf("expected 575 against 500, got %v against %v", health.ActualAmount, health.PlannedAmount)
		}
		if health.Variance != 75 {
			t.Errorf("expected variance 75, got %v", health.Variance)
		}
		if health.Status != models.HealthStatusWarning {
			t.Errorf("expected warning, got %s", health.Status)
		}
	})

	t.Run("unknown_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)

		_, err := svc.GetBudgetHealth(testutil.NewOwnerID(), uuid.New())
		testutil.AssertAppError(t, err, "BUDGET_NOT_FOUND")
	})
}

func TestListBudgets(t *testing.T) {
	t.Run("returns_owner_budgets_only", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()

		testutil.CreateTestBudget(t, db, owner, 100)
		testutil.CreateTestBudget(t, db, owner, 200)
		testutil.CreateTestBudget(t, db, testutil.NewOwnerID(), 300)

		resp, err := svc.ListBudgets(owner, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if resp.TotalItems != 2 {
			t.Errorf("expected 2 budgets, got %d", resp.TotalItems)
		}
	})
}

func TestLinkTransaction(t *testing.T) {
	t.Run("links_pending_transaction", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		budget, category := testutil.CreateTestBudget(t, db, owner, 500)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")

		testutil.AssertNoError(t, svc.LinkTransaction(owner, staged.ID, budget.ID, category.ID))

		var got models.StagedTransaction
		db.First(&got, "id = ?", staged.ID)
		if got.BudgetID == nil || *got.BudgetID != budget.ID {
			t.Error("budget linkage not set")
		}
		if got.BudgetCategoryID == nil || *got.BudgetCategoryID != category.ID {
			t.Error("category linkage not set")
		}
	})

	t.Run("category_must_belong_to_budget", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		budgetA, _ := testutil.CreateTestBudget(t, db, owner, 500)
		_, categoryB := testutil.CreateTestBudget(t, db, owner, 300)
		staged := testutil.CreateTestStaged(t, db, batch, 10, "Shop")

		err := svc.LinkTransaction(owner, staged.ID, budgetA.ID, categoryB.ID)
		testutil.AssertAppError(t, err, "BUDGET_CATEGORY_NOT_FOUND")
	})

	t.Run("terminal_transaction_cannot_be_linked", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewBudgetService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		budget, category := testutil.CreateTestBudget(t, db, owner, 500)
		staged := testutil.CreateTestStaged(t, db, batch, 10, "Shop")
		db.Model(staged).Update("review_status", models.ReviewStatusRejected)

		err := svc.LinkTransaction(owner, staged.ID, budget.ID, category.ID)
		testutil.AssertAppError(t, err, "INVALID_REVIEW_TRANSITION")
	})
}
