package services

import (
	"testing"

	"tributary/internal/models"
	"tributary/internal/testutil"
	"tributary/internal/uuid"
)

func TestReconcile(t *testing.T) {
	t.Run("unlinked_transaction_is_soft_skip", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewReconcilerService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)

		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")
		result, err := svc.Reconcile(db, staged, uuid.New())
		testutil.AssertNoError(t, err)
		if result.Reconciled {
			t.Error("unlinked transaction must not reconcile")
		}
	})

	t.Run("applies_amount_and_computes_variance", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewReconcilerService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		_, category := testutil.CreateTestBudget(t, db, owner, 500)

		staged := testutil.CreateTestStaged(t, db, batch, 600, "Whole Foods")
		testutil.LinkStagedToBudget(t, db, staged, category)

		result, err := svc.Reconcile(db, staged, uuid.New())
		testutil.AssertNoError(t, err)
		if !result.Reconciled {
			t.Fatal("expected reconciliation")
		}
		if result.PreviousActual != 0 || result.NewActual != 600 {
			t.Errorf("expected actual 0 -> 600, got %v -> %v", result.PreviousActual, result.NewActual)
		}
		if result.VarianceAfter != 100 {
			t.Errorf("expected variance 100 for 600 posted against 500 planned, got %v", result.VarianceAfter)
		}

		var got models.BudgetCategory
		db.First(&got, "id = ?", category.ID)
		if got.ActualAmount != 600 {
			t.Errorf("running total not persisted: %v", got.ActualAmount)
		}
	})

	t.Run("totals_accumulate_across_reconciliations", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewReconcilerService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		_, category := testutil.CreateTestBudget(t, db, owner, 500)

		first := testutil.CreateTestStaged(t, db, batch, 200, "Shop A")
		testutil.LinkStagedToBudget(t, db, first, category)
		second := testutil.CreateTestStaged(t, db, batch, 150, "Shop B")
		testutil.LinkStagedToBudget(t, db, second, category)

		_, err := svc.Reconcile(db, first, uuid.New())
		testutil.AssertNoError(t, err)
		result, err := svc.Reconcile(db, second, uuid.New())
		testutil.AssertNoError(t, err)

		if result.PreviousActual != 200 || result.NewActual != 350 {
			t.Errorf("expected actual 200 -> 350, got %v -> %v", result.PreviousActual, result.NewActual)
		}
	})

	t.Run("missing_category_is_hard_failure", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewReconcilerService(db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)

		staged := testutil.CreateTestStaged(t, db, batch, 50, "Shop")
		budgetID := uuid.New()
		categoryID := uuid.New()
		db.Model(staged).Updates(map[string]interface{}{
			"budget_id": budgetID, "budget_category_id": categoryID,
		})
		staged.BudgetID = &budgetID
		staged.BudgetCategoryID = &categoryID

		_, err := svc.Reconcile(db, staged, uuid.New())
		testutil.AssertAppError(t, err, "BUDGET_CATEGORY_NOT_FOUND")
	})
}

func TestClassifyBudgetHealth(t *testing.T) {
	cases := []struct {
		name    string
		planned float64
		actual  float64
		want    models.HealthStatus
	}{
		{"under_plan", 500, 400, models.HealthStatusHealthy},
		{"at_plan", 500, 500, models.HealthStatusHealthy},
		{"at_hundred_ten_percent", 500, 550, models.HealthStatusHealthy},
		{"above_hundred_ten_percent", 500, 575, models.HealthStatusWarning},
		{"at_hundred_twenty_percent", 500, 600, models.HealthStatusWarning},
		{"above_hundred_twenty_percent", 500, 601, models.HealthStatusCritical},
		{"zero_plan_is_healthy", 0, 100, models.HealthStatusHealthy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyBudgetHealth(tc.planned, tc.actual)
			if got != tc.want {
				t.Errorf("classifyBudgetHealth(%v, %v) = %s, want %s", tc.planned, tc.actual, got, tc.want)
			}
		})
	}
}

func TestReconcileHealthUsesWholeBudget(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewReconcilerService(db)
	owner := testutil.NewOwnerID()
	batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
	budget, category := testutil.CreateTestBudget(t, db, owner, 500)

	// A sibling category with headroom keeps the whole budget healthy even
	// though the first category overshoots.
	sibling := &models.BudgetCategory{
		BudgetID:      budget.ID,
		OwnerID:       owner,
		Name:          "Transport",
		PlannedAmount: 500,
	}
	testutil.AssertNoError(t, db.Create(sibling).Error)

	staged := testutil.CreateTestStaged(t, db, batch, 600, "Whole Foods")
	testutil.LinkStagedToBudget(t, db, staged, category)

	result, err := svc.Reconcile(db, staged, uuid.New())
	testutil.AssertNoError(t, err)
	if result.HealthStatus != models.HealthStatusHealthy {
		t.Errorf("expected healthy across the whole budget, got %s", result.HealthStatus)
	}
}
