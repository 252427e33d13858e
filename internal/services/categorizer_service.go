package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"tributary/internal/classifier"
	apperrors "tributary/internal/errors"
	"tributary/internal/logger"
	"tributary/internal/models"
)

const (
	// UncategorizedCategory is assigned when no rule, pattern, or
	// classifier response matches.
	UncategorizedCategory = "Uncategorized"

	directMatchConfidence = 75.0
	minBandConfidence     = 50.0

	// Classifier-failure fallback re-applies the keyword table at
	// reduced confidence.
	fallbackScale = 0.8

	// Learning thresholds: a merchant needs this many agreeing corrections
	// with better than 90% agreement before the pattern table is updated.
	learnMinCorrections = 5
	learnAgreementRatio = 0.9

	fewShotExampleLimit = 20
)

// seedPatterns are the common merchant -> category defaults the pattern
// table starts with.
var seedPatterns = map[string]string{
	"starbucks":   "Dining",
	"coffee":      "Dining",
	"restaurant":  "Dining",
	"mcdonald":    "Dining",
	"uber":        "Transportation",
	"lyft":        "Transportation",
	"shell":       "Transportation",
	"chevron":     "Transportation",
	"parking":     "Transportation",
	"amazon":      "Shopping",
	"walmart":     "Shopping",
	"target":      "Shopping",
	"whole foods": "Groceries",
	"kroger":      "Groceries",
	"safeway":     "Groceries",
	"trader joe":  "Groceries",
	"netflix":     "Entertainment",
	"spotify":     "Entertainment",
	"cinema":      "Entertainment",
	"pharmacy":    "Health",
	"cvs":         "Health",
	"walgreens":   "Health",
	"rent":        "Housing",
	"mortgage":    "Housing",
	"electric":    "Utilities",
	"water":       "Utilities",
	"comcast":     "Utilities",
	"payroll":     "Income",
	"salary":      "Income",
}

// SeedMerchantPatterns inserts the default merchant patterns, skipping any
// pattern already present so learned entries are never overwritten.
func SeedMerchantPatterns(db *gorm.DB) error {
	for pattern, category := range seedPatterns {
		var count int64
		if err := db.Model(&models.MerchantPattern{}).Where("pattern = ?", pattern).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		row := &models.MerchantPattern{
			Pattern:    pattern,
			Category:   category,
			Confidence: directMatchConfidence,
			Source:     models.PatternSourceSeed,
		}
		if err := db.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}

// categorizerService assigns categories via the pattern table, the external
// classifier, and the correction learning loop.
type categorizerService struct {
	db         *gorm.DB
	classifier classifier.BatchClassifier
}

// NewCategorizerService creates a new CategorizerServicer.
func NewCategorizerService(db *gorm.DB, batchClassifier classifier.BatchClassifier) CategorizerServicer {
	return &categorizerService{db: db, classifier: batchClassifier}
}

// SuggestCategory runs the merchant/keyword pattern table. Bands: direct
// merchant match at the pattern's confidence, partial merchant substring at
// max(50, base-20), description keyword at max(50, base-30), otherwise nil.
func (s *categorizerService) SuggestCategory(merchantName, description string) *CategorySuggestion {
	var patterns []models.MerchantPattern
	if err := s.db.Find(&patterns).Error; err != nil {
		logger.Get().Errorw("loading merchant patterns", "error", err)
		return nil
	}
	return suggestFromPatterns(patterns, merchantName, description)
}

func suggestFromPatterns(patterns []models.MerchantPattern, merchantName, description string) *CategorySuggestion {
	merchant := strings.ToLower(strings.TrimSpace(merchantName))
	desc := strings.ToLower(description)

	var best *CategorySuggestion
	for _, p := range patterns {
		suggestion := matchPattern(p, merchant, desc)
		if suggestion == nil {
			continue
		}
		if best == nil || suggestion.Confidence > best.Confidence {
			best = suggestion
		}
	}
	return best
}

func matchPattern(p models.MerchantPattern, merchant, desc string) *CategorySuggestion {
	source := models.CategorySourceRule
	if p.Source == models.PatternSourceLearned {
		source = models.CategorySourceLearned
	}

	if merchant != "" && merchant == p.Pattern {
		return &CategorySuggestion{
			Category:   p.Category,
			Confidence: p.Confidence,
			Reasoning:  "merchant matches pattern " + p.Pattern,
			Source:     source,
		}
	}
	if merchant != "" && (strings.Contains(merchant, p.Pattern) || strings.Contains(p.Pattern, merchant)) {
		return &CategorySuggestion{
			Category:   p.Category,
			Confidence: bandConfidence(p.Confidence, 20),
			Reasoning:  "merchant partially matches pattern " + p.Pattern,
			Source:     source,
		}
	}
	if desc != "" && strings.Contains(desc, p.Pattern) {
		return &CategorySuggestion{
			Category:   p.Category,
			Confidence: bandConfidence(p.Confidence, 30),
			Reasoning:  "description contains keyword " + p.Pattern,
			Source:     source,
		}
	}
	return nil
}

func bandConfidence(base, penalty float64) float64 {
	c := base - penalty
	if c < minBandConfidence {
		return minBandConfidence
	}
	return c
}

// CategorizeBatch categorizes every uncategorized, pending staged
// transaction in the batch. Pattern-table matches are taken first; the rest
// go to the external classifier with recent corrections as few-shot
// examples; on classifier failure the keyword table is re-applied
// per-transaction at reduced confidence.
func (s *categorizerService) CategorizeBatch(ctx context.Context, batchID string) error {
	var staged []models.StagedTransaction
	if err := s.db.
		Where("batch_id = ? AND review_status = ? AND category = ''", batchID, models.ReviewStatusPending).
		Find(&staged).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(staged) == 0 {
		return nil
	}

	var patterns []models.MerchantPattern
	if err := s.db.Find(&patterns).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var unmatched []models.StagedTransaction
	for i := range staged {
		suggestion := suggestFromPatterns(patterns, staged[i].MerchantName, staged[i].Description)
		if suggestion != nil {
			if err := s.applySuggestion(&staged[i], suggestion); err != nil {
				return err
			}
			continue
		}
		unmatched = append(unmatched, staged[i])
	}
	if len(unmatched) == 0 {
		return nil
	}

	suggestions, err := s.classifyExternally(ctx, unmatched)
	if err != nil {
		logger.Get().Warnw("external classifier failed, falling back to keyword rules",
			"batch_id", batchID, "error", err)
		return s.fallbackCategorize(unmatched, patterns)
	}

	byID := make(map[string]classifier.Suggestion, len(suggestions))
	for _, sg := range suggestions {
		byID[sg.TransactionID] = sg
	}

	var uncovered []models.StagedTransaction
	for i := range unmatched {
		sg, ok := byID[unmatched[i].ID]
		if !ok || sg.Category == "" {
			uncovered = append(uncovered, unmatched[i])
			continue
		}
		if err := s.applySuggestion(&unmatched[i], &CategorySuggestion{
			Category:   sg.Category,
			Confidence: sg.Confidence,
			Reasoning:  sg.Reasoning,
			Source:     models.CategorySourceClassifier,
		}); err != nil {
			return err
		}
	}

	// The classifier may answer for only part of the batch.
	return s.fallbackCategorize(uncovered, patterns)
}

func (s *categorizerService) classifyExternally(ctx context.Context, staged []models.StagedTransaction) ([]classifier.Suggestion, error) {
	categories, err := s.knownCategories()
	if err != nil {
		return nil, err
	}

	var examples []models.CorrectionRecord
	if err := s.db.Order("created_at DESC").Limit(fewShotExampleLimit).Find(&examples).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.classifier.ClassifyBatch(ctx, staged, categories, examples)
}

// fallbackCategorize re-applies the keyword table per transaction at reduced
// confidence; anything still unmatched becomes Uncategorized at zero.
func (s *categorizerService) fallbackCategorize(staged []models.StagedTransaction, patterns []models.MerchantPattern) error {
	for i := range staged {
		suggestion := suggestFromPatterns(patterns, staged[i].MerchantName, staged[i].Description)
		if suggestion != nil {
			suggestion.Confidence = suggestion.Confidence * fallbackScale
		} else {
			suggestion = &CategorySuggestion{
				Category:   UncategorizedCategory,
				Confidence: 0,
				Source:     models.CategorySourceRule,
			}
		}
		if err := s.applySuggestion(&staged[i], suggestion); err != nil {
			return err
		}
	}
	return nil
}

func (s *categorizerService) applySuggestion(staged *models.StagedTransaction, suggestion *CategorySuggestion) error {
	updates := map[string]interface{}{
		"category":            suggestion.Category,
		"category_confidence": suggestion.Confidence,
		"category_source":     suggestion.Source,
	}
	if err := s.db.Model(staged).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// knownCategories collects the category vocabulary for the classifier from
// the pattern table and the budget allocations.
func (s *categorizerService) knownCategories() ([]string, error) {
	seen := map[string]bool{UncategorizedCategory: true}
	out := []string{}

	var patternCategories []string
	if err := s.db.Model(&models.MerchantPattern{}).Distinct("category").Pluck("category", &patternCategories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var budgetCategories []string
	if err := s.db.Model(&models.BudgetCategory{}).Distinct("name").Pluck("name", &budgetCategories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for _, c := range append(patternCategories, budgetCategories...) {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	out = append(out, UncategorizedCategory)
	return out, nil
}

// RecordCorrection absorbs a human category override: the staged transaction
// is set to the corrected category at full confidence, the correction is
// recorded, and the merchant pattern table is updated once the merchant has
// enough agreeing corrections.
func (s *categorizerService) RecordCorrection(ownerID, stagedTransactionID, correctedCategory string) (*CorrectionResult, error) {
	if correctedCategory == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "corrected category is required")
	}

	var staged models.StagedTransaction
	if err := s.db.Where("id = ? AND owner_id = ?", stagedTransactionID, ownerID).First(&staged).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrStagedTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &CorrectionResult{MerchantName: staged.MerchantName, Category: correctedCategory}
	originalCategory := staged.Category

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&staged).Updates(map[string]interface{}{
			"category":            correctedCategory,
			"category_confidence": 100.0,
			"category_source":     models.CategorySourceManual,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		correction := &models.CorrectionRecord{
			OwnerID:           ownerID,
			MerchantName:      staged.MerchantName,
			Description:       staged.Description,
			OriginalCategory:  originalCategory,
			CorrectedCategory: correctedCategory,
		}
		if err := tx.Create(correction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return s.learnFromCorrections(tx, ownerID, staged.MerchantName, correctedCategory, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// learnFromCorrections updates the pattern table when a merchant has
// accumulated enough agreeing corrections, and flags auto-rule eligibility.
// Rule creation itself stays an external policy decision: the rule row is
// created disabled.
func (s *categorizerService) learnFromCorrections(tx *gorm.DB, ownerID, merchantName, category string, result *CorrectionResult) error {
	merchant := strings.ToLower(strings.TrimSpace(merchantName))
	if merchant == "" {
		return nil
	}

	var agree, total int64
	if err := tx.Model(&models.CorrectionRecord{}).
		Where("merchant_name = ? AND corrected_category = ?", merchantName, category).
		Count(&agree).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := tx.Model(&models.CorrectionRecord{}).
		Where("merchant_name = ?", merchantName).
		Count(&total).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if agree < learnMinCorrections || total == 0 {
		return nil
	}
	if float64(agree)/float64(total) <= learnAgreementRatio {
		return nil
	}

	confidence := 80.0 + float64(agree)
	if confidence > 95 {
		confidence = 95
	}

	var pattern models.MerchantPattern
	err := tx.Where("pattern = ?", merchant).First(&pattern).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pattern = models.MerchantPattern{
			Pattern:         merchant,
			Category:        category,
			Confidence:      confidence,
			Source:          models.PatternSourceLearned,
			CorrectionCount: int(agree),
		}
		if err := tx.Create(&pattern).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	case err != nil:
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	default:
		if err := tx.Model(&pattern).Updates(map[string]interface{}{
			"category":         category,
			"confidence":       confidence,
			"source":           models.PatternSourceLearned,
			"correction_count": int(agree),
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	result.PatternUpdated = true

	// Eligibility signal: make sure a disabled merchant rule exists.
	var ruleCount int64
	if err := tx.Model(&models.TransactionRule{}).
		Where("owner_id = ? AND match_type = ? AND value = ?", ownerID, models.RuleMatchMerchant, merchant).
		Count(&ruleCount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if ruleCount == 0 {
		rule := &models.TransactionRule{
			OwnerID:   ownerID,
			MatchType: models.RuleMatchMerchant,
			Field:     models.RuleFieldMerchant,
			Value:     merchant,
			Category:  category,
			IsActive:  false,
		}
		if err := tx.Create(rule).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	result.RuleEligible = true
	return nil
}
