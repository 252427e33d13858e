package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	apperrors "tributary/internal/errors"
	"tributary/internal/jobs"
	"tributary/internal/logger"
	"tributary/internal/models"
	"tributary/internal/pagination"
	"tributary/internal/provider"
	"tributary/internal/uuid"
)

// activeBatchStatuses are the stages a run occupies while ExecuteImport is
// still working on it. Batches in review or later do not block new imports.
var activeBatchStatuses = []models.BatchStatus{
	models.BatchStatusCreated,
	models.BatchStatusFetching,
	models.BatchStatusNormalizing,
	models.BatchStatusDeduplicating,
	models.BatchStatusStaging,
	models.BatchStatusCategorizing,
}

// stagePercent maps each pipeline stage to its position on the progress
// stream. Approval-phase stages are reported per operation, not per run.
var stagePercent = map[models.BatchStatus]int{
	models.BatchStatusCreated:       0,
	models.BatchStatusFetching:      10,
	models.BatchStatusNormalizing:   30,
	models.BatchStatusDeduplicating: 50,
	models.BatchStatusStaging:       70,
	models.BatchStatusCategorizing:  85,
	models.BatchStatusReviewing:     95,
	models.BatchStatusCompleted:     100,
}

// progressSubscriber is one attached listener. Sends never block: a slow
// listener drops updates instead of stalling the pipeline.
type progressSubscriber struct {
	progress chan ProgressUpdate
	errs     chan ErrorUpdate
}

type pipelineService struct {
	db          *gorm.DB
	aggregator  provider.Aggregator
	duplicates  DuplicateServicer
	categorizer CategorizerServicer
	events      EventServicer
	reconciler  ReconcilerServicer
	publisher   jobs.Publisher

	mu          sync.Mutex
	subscribers map[string]*progressSubscriber
}

// NewPipelineService creates a pipeline orchestrator over the given stage
// services. The publisher may be nil, in which case categorization runs
// synchronously inside ExecuteImport.
func NewPipelineService(
	db *gorm.DB,
	aggregator provider.Aggregator,
	duplicates DuplicateServicer,
	categorizer CategorizerServicer,
	events EventServicer,
	reconciler ReconcilerServicer,
	publisher jobs.Publisher,
) PipelineServicer {
	return &pipelineService{
		db:          db,
		aggregator:  aggregator,
		duplicates:  duplicates,
		categorizer: categorizer,
		events:      events,
		reconciler:  reconciler,
		publisher:   publisher,
		subscribers: make(map[string]*progressSubscriber),
	}
}

// Subscribe attaches a listener to the progress and error streams. The
// returned cancel function must be called to release the channels.
func (s *pipelineService) Subscribe() (<-chan ProgressUpdate, <-chan ErrorUpdate, func()) {
	sub := &progressSubscriber{
		progress: make(chan ProgressUpdate, 32),
		errs:     make(chan ErrorUpdate, 8),
	}
	id := uuid.New()

	s.mu.Lock()
	s.subscribers[id] = sub
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub.progress)
			close(sub.errs)
		}
		s.mu.Unlock()
	}
	return sub.progress, sub.errs, cancel
}

func (s *pipelineService) broadcastProgress(batchID string, stage models.BatchStatus, message string) {
	update := ProgressUpdate{
		BatchID: batchID,
		Stage:   string(stage),
		Percent: stagePercent[stage],
		Message: message,
	}
	s.mu.Lock()
	for _, sub := range s.subscribers {
		select {
		case sub.progress <- update:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *pipelineService) broadcastError(batchID string, stage models.BatchStatus, message string) {
	update := ErrorUpdate{BatchID: batchID, Stage: string(stage), Message: message}
	s.mu.Lock()
	for _, sub := range s.subscribers {
		select {
		case sub.errs <- update:
		default:
		}
	}
	s.mu.Unlock()
}

// advance moves the batch to the next stage, persists it, and announces the
// transition on the progress stream.
func (s *pipelineService) advance(batch *models.ImportBatch, target models.BatchStatus, message string) error {
	if !batch.CanAdvanceTo(target) {
		return apperrors.WithMessage(apperrors.ErrInvalidStatusTransition,
			fmt.Sprintf("batch cannot move from %s to %s", batch.Status, target))
	}
	batch.Status = target
	if err := s.db.Model(batch).Update("status", target).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.broadcastProgress(batch.ID, target, message)
	return nil
}

// fail marks the batch as errored, records the message, and tags the error
// stream with the stage that raised it.
func (s *pipelineService) fail(batch *models.ImportBatch, stage models.BatchStatus, cause error) {
	s.broadcastError(batch.ID, stage, cause.Error())
	batch.Status = models.BatchStatusError
	batch.ErrorMessage = cause.Error()
	if err := s.db.Model(batch).Updates(map[string]interface{}{
		"status":        models.BatchStatusError,
		"error_message": cause.Error(),
	}).Error; err != nil {
		logger.Get().Errorw("marking batch as errored", "batch_id", batch.ID, "error", err)
	}
}

// ExecuteImport runs the staged import flow: fetch, normalize, deduplicate,
// stage, then hand the batch off for categorization and review. The batch
// is reviewable as soon as this returns; categorization finishes in the
// background.
func (s *pipelineService) ExecuteImport(ctx context.Context, req ImportRequest) (*models.ImportBatch, error) {
	var active int64
	err := s.db.Model(&models.ImportBatch{}).
		Where("owner_id = ? AND status IN ?", req.OwnerID, activeBatchStatuses).
		Count(&active).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if active > 0 {
		return nil, apperrors.ErrImportAlreadyInProgress
	}

	batch := &models.ImportBatch{
		OwnerID:        req.OwnerID,
		AccountIDs:     models.StringSlice(req.Connection.AccountIDs),
		FromDate:       req.FromDate,
		ToDate:         req.ToDate,
		Status:         models.BatchStatusCreated,
		AutoCategorize: req.AutoCategorize,
	}
	if err := s.db.Create(batch).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	s.broadcastProgress(batch.ID, models.BatchStatusCreated, "import batch created")

	if err := s.advance(batch, models.BatchStatusFetching, "fetching transactions from aggregator"); err != nil {
		return nil, err
	}
	raws, err := s.aggregator.FetchTransactions(ctx, req.Connection, req.FromDate, req.ToDate)
	if err != nil {
		wrapped := apperrors.Wrap(apperrors.ErrFetchFailed, err)
		s.fail(batch, models.BatchStatusFetching, wrapped)
		return nil, wrapped
	}

	if len(raws) == 0 {
		now := time.Now()
		batch.Status = models.BatchStatusCompleted
		batch.CompletedAt = &now
		if err := s.db.Model(batch).Updates(map[string]interface{}{
			"status":       models.BatchStatusCompleted,
			"completed_at": now,
		}).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		s.broadcastProgress(batch.ID, models.BatchStatusCompleted, "no transactions in the requested range")
		return batch, nil
	}

	if err := s.advance(batch, models.BatchStatusNormalizing, fmt.Sprintf("normalizing %d transactions", len(raws))); err != nil {
		return nil, err
	}
	normalized := NormalizeAll(raws)
	byExternalID := make(map[string]NormalizedTransaction, len(normalized))
	for _, n := range normalized {
		byExternalID[n.Raw.ExternalID] = n
	}

	if err := s.advance(batch, models.BatchStatusDeduplicating, "detecting duplicates"); err != nil {
		return nil, err
	}
	fresh, duplicates, err := s.duplicates.FilterBatch(req.OwnerID, raws)
	if err != nil {
		s.fail(batch, models.BatchStatusDeduplicating, err)
		return nil, err
	}

	if err := s.advance(batch, models.BatchStatusStaging, fmt.Sprintf("staging %d new, %d duplicate", len(fresh), len(duplicates))); err != nil {
		return nil, err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, raw := range fresh {
			staged := s.buildStaged(batch, byExternalID[raw.ExternalID], false, 0)
			if err := tx.Create(staged).Error; err != nil {
				return err
			}
			if err := s.duplicates.RegisterTx(tx, req.OwnerID, raw); err != nil {
				return err
			}
		}
		for _, dup := range duplicates {
			staged := s.buildStaged(batch, byExternalID[dup.Transaction.ExternalID], true, dup.Match.Confidence)
			if err := tx.Create(staged).Error; err != nil {
				return err
			}
		}
		return tx.Model(batch).Updates(map[string]interface{}{
			"total_transactions":     len(fresh) + len(duplicates),
			"new_transactions":       len(fresh),
			"duplicate_transactions": len(duplicates),
		}).Error
	})
	if err != nil {
		s.fail(batch, models.BatchStatusStaging, err)
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	batch.TotalTransactions = len(fresh) + len(duplicates)
	batch.NewTransactions = len(fresh)
	batch.DuplicateTransactions = len(duplicates)

	if err := s.advance(batch, models.BatchStatusCategorizing, "categorizing staged transactions"); err != nil {
		return nil, err
	}
	if batch.AutoCategorize {
		s.dispatchCategorization(ctx, batch)
	}

	if err := s.advance(batch, models.BatchStatusReviewing, "batch ready for review"); err != nil {
		return nil, err
	}
	return batch, nil
}

// dispatchCategorization publishes a categorization job, falling back to a
// synchronous run when no queue is wired. Categorization failures never
// fail the batch; uncategorized rows just need manual review.
func (s *pipelineService) dispatchCategorization(ctx context.Context, batch *models.ImportBatch) {
	if s.publisher == nil {
		if err := s.categorizer.CategorizeBatch(ctx, batch.ID); err != nil {
			logger.Get().Warnw("synchronous categorization failed", "batch_id", batch.ID, "error", err)
			s.broadcastError(batch.ID, models.BatchStatusCategorizing, err.Error())
		}
		return
	}
	job := &jobs.CategorizeBatchJob{
		JobID:      uuid.New(),
		BatchID:    batch.ID,
		OwnerID:    batch.OwnerID,
		Status:     jobs.JobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: 3,
	}
	if err := s.publisher.PublishCategorizeBatch(ctx, job); err != nil {
		logger.Get().Warnw("publishing categorization job failed", "batch_id", batch.ID, "error", err)
		s.broadcastError(batch.ID, models.BatchStatusCategorizing, err.Error())
	}
}

// CategorizeJobHandler returns the worker-side handler for categorization
// jobs. Wire it into the queue consumer at startup.
func (s *pipelineService) CategorizeJobHandler() jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		cj, ok := job.(*jobs.CategorizeBatchJob)
		if !ok {
			return fmt.Errorf("unexpected job type %s", job.GetType())
		}
		if err := s.categorizer.CategorizeBatch(ctx, cj.BatchID); err != nil {
			s.broadcastError(cj.BatchID, models.BatchStatusCategorizing, err.Error())
			return err
		}
		s.broadcastProgress(cj.BatchID, models.BatchStatusCategorizing, "categorization finished")
		return nil
	}
}

func (s *pipelineService) buildStaged(batch *models.ImportBatch, n NormalizedTransaction, isDuplicate bool, duplicateConfidence float64) *models.StagedTransaction {
	reviewStatus := models.ReviewStatusPending
	if isDuplicate {
		reviewStatus = models.ReviewStatusNeedsAttention
	}
	return &models.StagedTransaction{
		BatchID:             batch.ID,
		OwnerID:             batch.OwnerID,
		ExternalID:          n.Raw.ExternalID,
		ExternalAccountID:   n.Raw.AccountID,
		Kind:                n.Kind,
		Amount:              n.Amount,
		Currency:            n.Raw.Currency,
		Date:                n.Raw.Date,
		Description:         n.Raw.Description,
		MerchantName:        n.Raw.MerchantName,
		IsDuplicate:         isDuplicate,
		DuplicateConfidence: duplicateConfidence,
		ReviewStatus:        reviewStatus,
		RawPayload: models.JSONMap{
			"external_id":   n.Raw.ExternalID,
			"account_id":    n.Raw.AccountID,
			"amount":        n.Raw.Amount,
			"currency":      n.Raw.Currency,
			"date":          n.Raw.Date.Format(time.RFC3339),
			"description":   n.Raw.Description,
			"merchant_name": n.Raw.MerchantName,
		},
	}
}

// GetBatch fetches one import batch owned by the caller.
func (s *pipelineService) GetBatch(ownerID, batchID string) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := s.db.Where("id = ? AND owner_id = ?", batchID, ownerID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBatchNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &batch, nil
}

// GetStagedTransactionsForBatch lists the batch's staged transactions,
// oldest transaction date first.
func (s *pipelineService) GetStagedTransactionsForBatch(ownerID, batchID string, page pagination.PageRequest) (*pagination.PageResponse[models.StagedTransaction], error) {
	if _, err := s.GetBatch(ownerID, batchID); err != nil {
		return nil, err
	}
	page.Defaults()

	query := s.db.Model(&models.StagedTransaction{}).
		Where("batch_id = ? AND owner_id = ?", batchID, ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var staged []models.StagedTransaction
	err := query.Order("date ASC, created_at ASC").
		Scopes(pagination.Paginate(page)).
		Find(&staged).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(staged, page.Page, page.PageSize, total)
	return &resp, nil
}

// ApproveTransaction approves one staged transaction, creates its ledger
// event, and reconciles it against the linked budget, all in one database
// transaction. Approving an already-approved transaction is an idempotent
// no-op.
func (s *pipelineService) ApproveTransaction(ownerID, stagedTransactionID string) (*ApprovalResult, error) {
	var result ApprovalResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var staged models.StagedTransaction
		err := tx.Where("id = ? AND owner_id = ?", stagedTransactionID, ownerID).First(&staged).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrStagedTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if staged.ReviewStatus == models.ReviewStatusApproved && staged.EconomicEventID != nil {
			event, err := s.events.GetEventByID(*staged.EconomicEventID)
			if err != nil {
				return err
			}
			result = ApprovalResult{Transaction: &staged, Event: event, AlreadyApproved: true}
			return nil
		}
		if staged.IsDuplicate {
			return apperrors.ErrDuplicateTransaction
		}
		if !staged.CanTransitionTo(models.ReviewStatusApproved) {
			return apperrors.ErrInvalidReviewTransition
		}

		if err := tx.Model(&staged).Update("review_status", models.ReviewStatusApproved).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		staged.ReviewStatus = models.ReviewStatusApproved

		event, err := s.events.CreateFromStaged(tx, &staged, ownerID)
		if err != nil {
			return err
		}
		recon, err := s.reconciler.Reconcile(tx, &staged, event.ID)
		if err != nil {
			return err
		}

		err = tx.Model(&models.ImportBatch{}).Where("id = ?", staged.BatchID).
			Update("approved_count", gorm.Expr("approved_count + 1")).Error
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		result = ApprovalResult{Transaction: &staged, Event: event, Reconciliation: recon}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyApproved {
		s.maybeCompleteBatch(result.Transaction.BatchID)
	}
	return &result, nil
}

// RejectTransaction rejects one staged transaction with an optional reason.
// Rejecting an already-rejected transaction is a no-op.
func (s *pipelineService) RejectTransaction(ownerID, stagedTransactionID, reason string) error {
	var batchID string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var staged models.StagedTransaction
		err := tx.Where("id = ? AND owner_id = ?", stagedTransactionID, ownerID).First(&staged).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrStagedTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if staged.ReviewStatus == models.ReviewStatusRejected {
			return nil
		}
		if !staged.CanTransitionTo(models.ReviewStatusRejected) {
			return apperrors.ErrInvalidReviewTransition
		}

		updates := map[string]interface{}{"review_status": models.ReviewStatusRejected}
		if reason != "" {
			updates["review_note"] = reason
		}
		if err := tx.Model(&staged).Updates(updates).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		batchID = staged.BatchID
		return tx.Model(&models.ImportBatch{}).Where("id = ?", staged.BatchID).
			Update("rejected_count", gorm.Expr("rejected_count + 1")).Error
	})
	if err != nil {
		return err
	}

	if batchID != "" {
		s.maybeCompleteBatch(batchID)
	}
	return nil
}

// ApproveBatch approves staged transactions in bulk. Individual failures
// are recorded and skipped; they never roll back earlier approvals.
func (s *pipelineService) ApproveBatch(ownerID, batchID string, ids []string) (*BulkApprovalResult, error) {
	batch, err := s.GetBatch(ownerID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.CanAdvanceTo(models.BatchStatusApproving) {
		if err := s.advance(batch, models.BatchStatusApproving, "bulk approval started"); err != nil {
			return nil, err
		}
	}

	if len(ids) == 0 {
		err := s.db.Model(&models.StagedTransaction{}).
			Where("batch_id = ? AND owner_id = ? AND review_status = ?", batchID, ownerID, models.ReviewStatusPending).
			Order("date ASC").
			Pluck("id", &ids).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	result := &BulkApprovalResult{}
	for _, id := range ids {
		approval, err := s.ApproveTransaction(ownerID, id)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, err.Error()))
			continue
		}
		result.Approved++
		if approval.Event != nil {
			result.EventIDs = append(result.EventIDs, approval.Event.ID)
		}
	}

	s.maybeCompleteBatch(batchID)
	return result, nil
}

// maybeCompleteBatch closes the batch once no pending staged transactions
// remain. Best effort; a failure here leaves the batch in approving and is
// only logged.
func (s *pipelineService) maybeCompleteBatch(batchID string) {
	var batch models.ImportBatch
	if err := s.db.First(&batch, "id = ?", batchID).Error; err != nil {
		logger.Get().Warnw("loading batch after review", "batch_id", batchID, "error", err)
		return
	}
	if !batch.CanAdvanceTo(models.BatchStatusCompleted) {
		return
	}

	var pending int64
	err := s.db.Model(&models.StagedTransaction{}).
		Where("batch_id = ? AND review_status = ?", batchID, models.ReviewStatusPending).
		Count(&pending).Error
	if err != nil {
		logger.Get().Warnw("counting pending transactions", "batch_id", batchID, "error", err)
		return
	}
	if pending > 0 {
		return
	}

	now := time.Now()
	err = s.db.Model(&batch).Updates(map[string]interface{}{
		"status":       models.BatchStatusCompleted,
		"completed_at": now,
	}).Error
	if err != nil {
		logger.Get().Warnw("completing batch", "batch_id", batchID, "error", err)
		return
	}
	s.broadcastProgress(batchID, models.BatchStatusCompleted, "all staged transactions reviewed")
}
