package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"tributary/internal/models"
	"tributary/internal/provider"
	"tributary/internal/testutil"
)

func newTestPipeline(db *gorm.DB, aggregator provider.Aggregator) PipelineServicer {
	return NewPipelineService(
		db,
		aggregator,
		NewDuplicateService(db),
		NewCategorizerService(db, &testutil.FakeClassifier{}),
		NewEventService(db),
		NewReconcilerService(db),
		nil,
	)
}

func testImportRequest(ownerID string) ImportRequest {
	return ImportRequest{
		OwnerID:        ownerID,
		Connection:     provider.Connection{AccessToken: "token", AccountIDs: []string{"acct-1"}},
		FromDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ToDate:         time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		AutoCategorize: true,
	}
}

func TestExecuteImport(t *testing.T) {
	t.Run("stages_new_and_duplicate_transactions", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()

		known := testutil.ExternalTransaction(-42.10, "Grocery store")
		txs := []models.ExternalTransaction{
			known,
			testutil.ExternalTransaction(-12.50, "Coffee shop"),
			testutil.ExternalTransaction(1500.00, "Payroll"),
		}
		duplicates := NewDuplicateService(db)
		testutil.AssertNoError(t, duplicates.Register(owner, known))

		svc := newTestPipeline(db, &testutil.FakeAggregator{Transactions: txs})
		batch, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertNoError(t, err)

		if batch.Status != models.BatchStatusReviewing {
			t.Errorf("expected reviewing, got %s", batch.Status)
		}
		if batch.TotalTransactions != 3 || batch.NewTransactions != 2 || batch.DuplicateTransactions != 1 {
			t.Errorf("expected 3/2/1 counters, got %d/%d/%d",
				batch.TotalTransactions, batch.NewTransactions, batch.DuplicateTransactions)
		}

		var staged []models.StagedTransaction
		db.Where("batch_id = ?", batch.ID).Find(&staged)
		if len(staged) != 3 {
			t.Fatalf("expected 3 staged rows, got %d", len(staged))
		}
		var dupes int
		for _, s := range staged {
			if s.IsDuplicate {
				dupes++
				if s.ReviewStatus != models.ReviewStatusNeedsAttention {
					t.Errorf("expected duplicate flagged needs_attention, got %s", s.ReviewStatus)
				}
				if s.DuplicateConfidence != 100 {
					t.Errorf("expected confidence 100 for exact duplicate, got %v", s.DuplicateConfidence)
				}
				continue
			}
			if s.ReviewStatus != models.ReviewStatusPending {
				t.Errorf("expected pending review, got %s", s.ReviewStatus)
			}
		}
		if dupes != 1 {
			t.Errorf("expected 1 duplicate staged row, got %d", dupes)
		}

		// Fresh transactions become visible to future duplicate detection.
		var fingerprints int64
		db.Model(&models.TransactionFingerprint{}).Where("owner_id = ?", owner).Count(&fingerprints)
		if fingerprints != 3 {
			t.Errorf("expected 3 fingerprints, got %d", fingerprints)
		}
	})

	t.Run("empty_fetch_completes_immediately", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		batch, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertNoError(t, err)

		if batch.Status != models.BatchStatusCompleted {
			t.Errorf("expected completed, got %s", batch.Status)
		}
		if batch.TotalTransactions != 0 {
			t.Errorf("expected 0 transactions, got %d", batch.TotalTransactions)
		}
		if batch.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("fetch_failure_marks_batch_errored", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()

		svc := newTestPipeline(db, &testutil.FakeAggregator{Err: context.DeadlineExceeded})
		_, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertAppError(t, err, "FETCH_FAILED")

		var batch models.ImportBatch
		testutil.AssertNoError(t, db.First(&batch, "owner_id = ?", owner).Error)
		if batch.Status != models.BatchStatusError {
			t.Errorf("expected error status, got %s", batch.Status)
		}
		if batch.ErrorMessage == "" {
			t.Error("expected error message to be recorded")
		}
	})

	t.Run("rejects_concurrent_import_for_same_owner", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		testutil.CreateTestBatch(t, db, owner, models.BatchStatusStaging)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertAppError(t, err, "IMPORT_IN_PROGRESS")
	})

	t.Run("reviewing_batch_does_not_block_new_import", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		batch, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertNoError(t, err)
		if batch.Status != models.BatchStatusCompleted {
			t.Errorf("expected empty import to complete, got %s", batch.Status)
		}
	})

	t.Run("emits_forward_progress_stages", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()

		svc := newTestPipeline(db, &testutil.FakeAggregator{Transactions: []models.ExternalTransaction{
			testutil.ExternalTransaction(-9.99, "Streaming service"),
		}})
		progress, _, cancel := svc.Subscribe()
		defer cancel()

		batch, err := svc.ExecuteImport(context.Background(), testImportRequest(owner))
		testutil.AssertNoError(t, err)

		var updates []ProgressUpdate
	drain:
		for {
			select {
			case u := <-progress:
				updates = append(updates, u)
			default:
				break drain
			}
		}

		if len(updates) == 0 {
			t.Fatal("expected progress updates")
		}
		lastPercent := -1
		for _, u := range updates {
			if u.BatchID != batch.ID {
				t.Errorf("unexpected batch id %s", u.BatchID)
			}
			if u.Percent < lastPercent {
				t.Errorf("progress went backwards: %d after %d", u.Percent, lastPercent)
			}
			lastPercent = u.Percent
		}
		final := updates[len(updates)-1]
		if final.Stage != string(models.BatchStatusReviewing) {
			t.Errorf("expected final stage reviewing, got %s", final.Stage)
		}
	})
}

func TestApproveTransaction(t *testing.T) {
	t.Run("creates_event_and_reconciles", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		_, category := testutil.CreateTestBudget(t, db, owner, 500)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")
		testutil.LinkStagedToBudget(t, db, staged, category)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		result, err := svc.ApproveTransaction(owner, staged.ID)
		testutil.AssertNoError(t, err)

		if result.Event == nil {
			t.Fatal("expected an event")
		}
		if result.Reconciliation == nil || !result.Reconciliation.Reconciled {
			t.Error("expected a reconciled result")
		}
		if result.Reconciliation.NewActual != 42.10 {
			t.Errorf("expected actual 42.10, got %v", result.Reconciliation.NewActual)
		}

		var got models.StagedTransaction
		db.First(&got, "id = ?", staged.ID)
		if got.ReviewStatus != models.ReviewStatusApproved {
			t.Errorf("expected approved, got %s", got.ReviewStatus)
		}
		if got.EconomicEventID == nil || *got.EconomicEventID != result.Event.ID {
			t.Error("staged transaction not linked to event")
		}

		var gotBatch models.ImportBatch
		db.First(&gotBatch, "id = ?", batch.ID)
		if gotBatch.ApprovedCount != 1 {
			t.Errorf("expected approved_count 1, got %d", gotBatch.ApprovedCount)
		}
	})

	t.Run("second_approval_is_idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		staged := testutil.CreateTestStaged(t, db, batch, 15.00, "Book store")

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		first, err := svc.ApproveTransaction(owner, staged.ID)
		testutil.AssertNoError(t, err)
		second, err := svc.ApproveTransaction(owner, staged.ID)
		testutil.AssertNoError(t, err)

		if !second.AlreadyApproved {
			t.Error("expected already-approved marker")
		}
		if second.Event.ID != first.Event.ID {
			t.Error("expected the same event on repeat approval")
		}

		var got models.StagedTransaction
		db.First(&got, "id = ?", staged.ID)
		if got.EconomicEventID == nil || *got.EconomicEventID != first.Event.ID {
			t.Error("expected the staged transaction to stay linked to the first event")
		}
		var events int64
		db.Model(&models.EconomicEvent{}).Where("created_by = ?", owner).Count(&events)
		if events != 1 {
			t.Errorf("expected exactly 1 event, got %d", events)
		}
	})

	t.Run("duplicate_cannot_be_approved", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")
		db.Model(staged).Updates(map[string]interface{}{"is_duplicate": true, "duplicate_confidence": 95.0})

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ApproveTransaction(owner, staged.ID)
		testutil.AssertAppError(t, err, "DUPLICATE_TRANSACTION")
	})

	t.Run("rejected_cannot_be_approved", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")
		db.Model(staged).Update("review_status", models.ReviewStatusRejected)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ApproveTransaction(owner, staged.ID)
		testutil.AssertAppError(t, err, "INVALID_REVIEW_TRANSITION")
	})

	t.Run("unknown_transaction", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ApproveTransaction(testutil.NewOwnerID(), "00000000-0000-0000-0000-000000000000")
		testutil.AssertAppError(t, err, "STAGED_TRANSACTION_NOT_FOUND")
	})
}

func TestRejectTransaction(t *testing.T) {
	t.Run("records_reason_and_completes_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		testutil.AssertNoError(t, svc.RejectTransaction(owner, staged.ID, "not my charge"))

		var got models.StagedTransaction
		db.First(&got, "id = ?", staged.ID)
		if got.ReviewStatus != models.ReviewStatusRejected {
			t.Errorf("expected rejected, got %s", got.ReviewStatus)
		}
		if got.ReviewNote != "not my charge" {
			t.Errorf("expected review note, got %q", got.ReviewNote)
		}

		// Last pending transaction reviewed, so the batch closes.
		var gotBatch models.ImportBatch
		db.First(&gotBatch, "id = ?", batch.ID)
		if gotBatch.Status != models.BatchStatusCompleted {
			t.Errorf("expected completed batch, got %s", gotBatch.Status)
		}
		if gotBatch.RejectedCount != 1 {
			t.Errorf("expected rejected_count 1, got %d", gotBatch.RejectedCount)
		}
	})

	t.Run("repeat_rejection_is_noop", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		staged := testutil.CreateTestStaged(t, db, batch, 42.10, "Grocery store")

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		testutil.AssertNoError(t, svc.RejectTransaction(owner, staged.ID, ""))
		testutil.AssertNoError(t, svc.RejectTransaction(owner, staged.ID, ""))

		var gotBatch models.ImportBatch
		db.First(&gotBatch, "id = ?", batch.ID)
		if gotBatch.RejectedCount != 1 {
			t.Errorf("expected rejected_count 1 after repeat, got %d", gotBatch.RejectedCount)
		}
	})
}

func TestApproveBatch(t *testing.T) {
	t.Run("approves_all_pending_and_reports_failures", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		testutil.CreateTestStaged(t, db, batch, 10, "Coffee shop")
		testutil.CreateTestStaged(t, db, batch, 20, "Book store")
		dup := testutil.CreateTestStaged(t, db, batch, 10, "Coffee shop")
		db.Model(dup).Updates(map[string]interface{}{"is_duplicate": true, "duplicate_confidence": 100.0})

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		result, err := svc.ApproveBatch(owner, batch.ID, nil)
		testutil.AssertNoError(t, err)

		if result.Approved != 2 || result.Failed != 1 {
			t.Errorf("expected 2 approved / 1 failed, got %d/%d", result.Approved, result.Failed)
		}
		if len(result.EventIDs) != 2 {
			t.Errorf("expected 2 event ids, got %d", len(result.EventIDs))
		}
		if len(result.Errors) != 1 {
			t.Errorf("expected 1 error entry, got %d", len(result.Errors))
		}
	})

	t.Run("explicit_ids_limit_the_approval", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		first := testutil.CreateTestStaged(t, db, batch, 10, "Coffee shop")
		second := testutil.CreateTestStaged(t, db, batch, 20, "Book store")

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		result, err := svc.ApproveBatch(owner, batch.ID, []string{first.ID})
		testutil.AssertNoError(t, err)

		if result.Approved != 1 {
			t.Errorf("expected 1 approved, got %d", result.Approved)
		}
		var got models.StagedTransaction
		db.First(&got, "id = ?", second.ID)
		if got.ReviewStatus != models.ReviewStatusPending {
			t.Errorf("expected second transaction untouched, got %s", got.ReviewStatus)
		}
	})

	t.Run("completes_batch_when_nothing_pending", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		owner := testutil.NewOwnerID()
		batch := testutil.CreateTestBatch(t, db, owner, models.BatchStatusReviewing)
		testutil.CreateTestStaged(t, db, batch, 10, "Coffee shop")

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ApproveBatch(owner, batch.ID, nil)
		testutil.AssertNoError(t, err)

		var gotBatch models.ImportBatch
		db.First(&gotBatch, "id = ?", batch.ID)
		if gotBatch.Status != models.BatchStatusCompleted {
			t.Errorf("expected completed, got %s", gotBatch.Status)
		}
		if gotBatch.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
	})

	t.Run("unknown_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)

		svc := newTestPipeline(db, &testutil.FakeAggregator{})
		_, err := svc.ApproveBatch(testutil.NewOwnerID(), "00000000-0000-0000-0000-000000000000", nil)
		testutil.AssertAppError(t, err, "BATCH_NOT_FOUND")
	})
}
