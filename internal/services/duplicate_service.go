package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/agext/levenshtein"
	"gorm.io/gorm"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
)

// Matching thresholds and confidence scaling windows for the fuzzy tier.
const (
	fuzzyAmountTolerance = 0.01
	fuzzyDateTolerance   = 2 * 24 * time.Hour
	fuzzyEditTolerance   = 3

	fuzzyBaseConfidence = 75.0
	fuzzyAmountWindow   = 1.00
	fuzzyDateWindow     = 7 * 24 * time.Hour
	fuzzyEditWindow     = 10.0

	// Candidate lookup uses coarse windows; the strict tolerances above are
	// applied per candidate.
	candidateAmountWindow = fuzzyAmountWindow
	candidateDateWindow   = fuzzyDateWindow
)

// duplicateService implements three escalating matching tiers over the
// fingerprint registry: exact external ID, content hash, then fuzzy.
type duplicateService struct {
	db *gorm.DB
}

// NewDuplicateService creates a new DuplicateServicer.
func NewDuplicateService(db *gorm.DB) DuplicateServicer {
	return &duplicateService{db: db}
}

// ContentHash computes the tier-2 digest of account|amount|date|description.
// Amount is rounded to 2 decimals so aggregator float noise cannot split
// otherwise identical transactions.
func ContentHash(accountID string, amount float64, date time.Time, description string) string {
	payload := fmt.Sprintf("%s|%.2f|%s|%s", accountID, amount, date.Format("2006-01-02"), description)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Detect runs the matching tiers against registered transactions; the first
// tier that matches wins.
func (s *duplicateService) Detect(ownerID string, tx models.ExternalTransaction) (*DuplicateMatch, error) {
	// Tier 1: exact external ID
	var count int64
	if err := s.db.Model(&models.TransactionFingerprint{}).
		Where("owner_id = ? AND external_id = ?", ownerID, tx.ExternalID).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return &DuplicateMatch{IsDuplicate: true, Confidence: 100, MatchTier: "exact"}, nil
	}

	// Tier 2: content hash
	hash := ContentHash(tx.AccountID, tx.Amount, tx.Date, tx.Description)
	if err := s.db.Model(&models.TransactionFingerprint{}).
		Where("owner_id = ? AND content_hash = ?", ownerID, hash).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return &DuplicateMatch{IsDuplicate: true, Confidence: 95, MatchTier: "hash"}, nil
	}

	// Tier 3: fuzzy over candidates sharing the account within a coarse
	// amount/date window
	var candidates []models.TransactionFingerprint
	if err := s.db.
		Where("owner_id = ? AND account_id = ?", ownerID, tx.AccountID).
		Where("amount BETWEEN ? AND ?", tx.Amount-candidateAmountWindow, tx.Amount+candidateAmountWindow).
		Where("date BETWEEN ? AND ?", tx.Date.Add(-candidateDateWindow), tx.Date.Add(candidateDateWindow)).
		Find(&candidates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	best := DuplicateMatch{MatchTier: "none"}
	for _, cand := range candidates {
		confidence, ok := fuzzyConfidence(tx, cand)
		if ok && confidence > best.Confidence {
			best = DuplicateMatch{IsDuplicate: true, Confidence: confidence, MatchTier: "fuzzy"}
		}
	}
	return &best, nil
}

// fuzzyConfidence scores one candidate. All three closeness conditions must
// hold simultaneously; a score below the base confidence is not a duplicate.
func fuzzyConfidence(tx models.ExternalTransaction, cand models.TransactionFingerprint) (float64, bool) {
	amountDiff := math.Abs(tx.Amount - cand.Amount)
	if amountDiff > fuzzyAmountTolerance {
		return 0, false
	}

	dateDiff := tx.Date.Sub(cand.Date)
	if dateDiff < 0 {
		dateDiff = -dateDiff
	}
	if dateDiff > fuzzyDateTolerance {
		return 0, false
	}

	editDist := levenshtein.Distance(tx.Description, cand.Description, nil)
	if editDist > fuzzyEditTolerance {
		return 0, false
	}

	confidence := fuzzyBaseConfidence
	confidence += 15 * (1 - amountDiff/fuzzyAmountWindow)
	confidence += 5 * (1 - float64(dateDiff)/float64(fuzzyDateWindow))
	confidence += 5 * (1 - float64(editDist)/fuzzyEditWindow)
	if confidence > 100 {
		confidence = 100
	}
	if confidence < fuzzyBaseConfidence {
		return 0, false
	}
	return confidence, true
}

// Register adds a transaction to the fingerprint registry so future
// detections see it.
func (s *duplicateService) Register(ownerID string, tx models.ExternalTransaction) error {
	return s.RegisterTx(s.db, ownerID, tx)
}

// RegisterTx registers inside the caller's transaction. Re-registering the
// same external ID is a no-op.
func (s *duplicateService) RegisterTx(db *gorm.DB, ownerID string, tx models.ExternalTransaction) error {
	var existing models.TransactionFingerprint
	err := db.Where("owner_id = ? AND external_id = ?", ownerID, tx.ExternalID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	fingerprint := &models.TransactionFingerprint{
		OwnerID:     ownerID,
		ExternalID:  tx.ExternalID,
		AccountID:   tx.AccountID,
		ContentHash: ContentHash(tx.AccountID, tx.Amount, tx.Date, tx.Description),
		Amount:      tx.Amount,
		Date:        tx.Date,
		Description: tx.Description,
	}
	if err := db.Create(fingerprint).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// FilterBatch splits the transactions into fresh entries and duplicates.
// A local seen set catches repeats within the same batch, by external ID and
// by content hash, during the same filter call.
func (s *duplicateService) FilterBatch(ownerID string, txs []models.ExternalTransaction) ([]models.ExternalTransaction, []DuplicateDetection, error) {
	seenIDs := make(map[string]bool, len(txs))
	seenHashes := make(map[string]bool, len(txs))

	fresh := make([]models.ExternalTransaction, 0, len(txs))
	var duplicates []DuplicateDetection

	for _, tx := range txs {
		hash := ContentHash(tx.AccountID, tx.Amount, tx.Date, tx.Description)
		if seenIDs[tx.ExternalID] || seenHashes[hash] {
			duplicates = append(duplicates, DuplicateDetection{
				Transaction: tx,
				Match:       DuplicateMatch{IsDuplicate: true, Confidence: 100, MatchTier: "exact"},
			})
			continue
		}

		match, err := s.Detect(ownerID, tx)
		if err != nil {
			return nil, nil, err
		}
		if match.IsDuplicate {
			duplicates = append(duplicates, DuplicateDetection{Transaction: tx, Match: *match})
			continue
		}

		seenIDs[tx.ExternalID] = true
		seenHashes[hash] = true
		fresh = append(fresh, tx)
	}

	return fresh, duplicates, nil
}
