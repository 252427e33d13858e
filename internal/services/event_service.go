package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "tributary/internal/errors"
	"tributary/internal/logger"
	"tributary/internal/models"
	"tributary/internal/pagination"
)

// Placeholder agent identities used when the external counterparty is not
// known by name.
const (
	agentExternalParty   = "external-party"
	agentExternalAccount = "external-account"
	agentFeeCollector    = "fee-collector"
)

// eventService converts approved staged transactions into immutable ledger
// events and records corrective events.
type eventService struct {
	db *gorm.DB
}

// NewEventService creates a new EventServicer.
func NewEventService(db *gorm.DB) EventServicer {
	return &eventService{db: db}
}

// CreateFromStaged creates the ledger event for an approved staged
// transaction inside the caller's transaction and links the staged row to
// it. The precondition check and the creation share the caller's critical
// section, so at most one event is ever created per staged transaction.
func (s *eventService) CreateFromStaged(db *gorm.DB, staged *models.StagedTransaction, createdBy string) (*models.EconomicEvent, error) {
	if staged.ReviewStatus != models.ReviewStatusApproved {
		return nil, apperrors.WithMessage(apperrors.ErrTransactionNotApproved,
			"staged transaction "+staged.ID+" has status "+string(staged.ReviewStatus)+", only approved transactions can become ledger events")
	}
	if staged.EconomicEventID != nil {
		return nil, apperrors.ErrEventAlreadyCreated
	}

	eventType := models.EventTypeTransfer
	action := "transfer"
	if staged.Kind == models.TransactionKindFee {
		// Fees are consumed, not transferred.
		eventType = models.EventTypeRetire
		action = "consume"
	}

	provider, receiver := eventAgents(staged)

	event := &models.EconomicEvent{
		EventType: eventType,
		Occurred:  staged.Date,
		Provider:  provider,
		Receiver:  receiver,
		Quantity:  staged.Amount,
		Unit:      staged.Currency,
		Action:    action,
		Note:      staged.Description,
		Metadata:  eventMetadata(staged),
		State:     models.EventStateValidated,
		CreatedBy: createdBy,
	}

	if err := db.Create(event).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := db.Model(staged).Update("economic_event_id", event.ID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	staged.EconomicEventID = &event.ID

	return event, nil
}

// eventAgents determines provider and receiver per transaction kind: money
// in flows from the external party to the owner, money out the other way.
func eventAgents(staged *models.StagedTransaction) (provider, receiver string) {
	external := staged.MerchantName
	if external == "" {
		external = agentExternalParty
	}

	switch staged.Kind {
	case models.TransactionKindCredit:
		return external, staged.OwnerID
	case models.TransactionKindDebit:
		return staged.OwnerID, external
	case models.TransactionKindFee:
		if staged.MerchantName != "" {
			return staged.OwnerID, staged.MerchantName
		}
		return staged.OwnerID, agentFeeCollector
	case models.TransactionKindTransfer:
		return staged.OwnerID, agentExternalAccount
	default:
		return staged.OwnerID, external
	}
}

// eventMetadata builds the mandatory reconciliation trail back to the
// external source.
func eventMetadata(staged *models.StagedTransaction) models.JSONMap {
	meta := models.JSONMap{
		models.MetaExternalTransactionID: staged.ExternalID,
		models.MetaExternalAccountID:     staged.ExternalAccountID,
		models.MetaCategory:              staged.Category,
		models.MetaCategoryConfidence:    staged.CategoryConfidence,
		models.MetaCategorySource:        string(staged.CategorySource),
		models.MetaImportBatchID:         staged.BatchID,
		models.MetaMerchantName:          staged.MerchantName,
		models.MetaRawPayload:            map[string]interface{}(staged.RawPayload),
	}
	if staged.BudgetID != nil {
		meta[models.MetaBudgetID] = *staged.BudgetID
	}
	if staged.BudgetCategoryID != nil {
		meta[models.MetaBudgetCategoryID] = *staged.BudgetCategoryID
	}
	return meta
}

// CreateMultipleFromStaged converts a list of approved staged transactions.
// Individual failures are logged and skipped; only the events actually
// created are returned.
func (s *eventService) CreateMultipleFromStaged(stagedIDs []string, createdBy string) ([]models.EconomicEvent, error) {
	events := make([]models.EconomicEvent, 0, len(stagedIDs))

	for _, id := range stagedIDs {
		var created *models.EconomicEvent
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var staged models.StagedTransaction
			if err := tx.Where("id = ?", id).First(&staged).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.ErrStagedTransactionNotFound
				}
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			var txErr error
			created, txErr = s.CreateFromStaged(tx, &staged, createdBy)
			return txErr
		})
		if err != nil {
			logger.Get().Warnw("skipping staged transaction in batch event creation",
				"staged_transaction_id", id, "error", err)
			continue
		}
		events = append(events, *created)
	}
	return events, nil
}

// CreateCorrection records a corrective event for a previously created,
// erroneous event. The original is never edited: it transitions to the
// corrected state and the new event references it with a reason.
func (s *eventService) CreateCorrection(originalEventID, reason string, quantity *float64, note, createdBy string) (*models.EconomicEvent, error) {
	if reason == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "correction reason is required")
	}

	var correction *models.EconomicEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var original models.EconomicEvent
		if err := tx.Where("id = ?", originalEventID).First(&original).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrEventNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if original.State == models.EventStateCorrected {
			return apperrors.ErrEventAlreadyCorrected
		}

		correctedQuantity := original.Quantity
		if quantity != nil {
			correctedQuantity = *quantity
		}

		correction = &models.EconomicEvent{
			EventType:        original.EventType,
			Occurred:         time.Now(),
			Provider:         original.Provider,
			Receiver:         original.Receiver,
			Quantity:         correctedQuantity,
			Unit:             original.Unit,
			Action:           original.Action,
			Note:             note,
			Metadata:         original.Metadata,
			State:            models.EventStateValidated,
			CreatedBy:        createdBy,
			CorrectsEventID:  &original.ID,
			CorrectionReason: reason,
		}
		if err := tx.Create(correction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if err := tx.Model(&original).Update("state", models.EventStateCorrected).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return correction, nil
}

// GetEventByID retrieves an event by ID.
func (s *eventService) GetEventByID(eventID string) (*models.EconomicEvent, error) {
	var event models.EconomicEvent
	if err := s.db.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &event, nil
}

// ListEvents returns a paginated list of events created by the given owner.
func (s *eventService) ListEvents(createdBy string, page pagination.PageRequest) (*pagination.PageResponse[models.EconomicEvent], error) {
	page.Defaults()

	base := s.db.Model(&models.EconomicEvent{}).Where("created_by = ?", createdBy)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var events []models.EconomicEvent
	if err := base.Scopes(pagination.Paginate(page)).
		Order("occurred DESC").
		Find(&events).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(events, page.Page, page.PageSize, totalItems)
	return &result, nil
}
