package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	apperrors "tributary/internal/errors"
	"tributary/internal/models"
)

// geminiClassifier classifies staged transactions with Gemini. It expects the
// model to return a STRICT JSON array of suggestion objects.
type geminiClassifier struct {
	model string
}

// NewGeminiClassifier creates a BatchClassifier backed by the given Gemini
// model. Credentials come from the environment (GEMINI_API_KEY or ADC).
func NewGeminiClassifier(model string) BatchClassifier {
	return &geminiClassifier{model: model}
}

// ClassifyBatch sends the batch to the model and parses the suggestions.
// Suggestions for unknown transaction IDs are dropped; a response covering
// only part of the batch is returned as-is.
func (g *geminiClassifier) ClassifyBatch(ctx context.Context, transactions []models.StagedTransaction, categories []string, examples []models.CorrectionRecord) ([]Suggestion, error) {
	if len(transactions) == 0 {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrClassifierUnavailable, fmt.Errorf("create genai client: %w", err))
	}

	prompt := buildClassifyPrompt(transactions, categories, examples)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrClassifierUnavailable, fmt.Errorf("generate content: %w", err))
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("classify batch: empty response from model")
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &suggestions); err != nil {
		return nil, fmt.Errorf("classify batch: unmarshal JSON: %w", err)
	}

	// Keep only suggestions that reference a transaction we actually sent
	// and clamp confidence into the 0-100 band.
	known := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		known[tx.ID] = true
	}
	out := suggestions[:0]
	for _, s := range suggestions {
		if !known[s.TransactionID] {
			continue
		}
		if s.Confidence < 0 {
			s.Confidence = 0
		}
		if s.Confidence > 100 {
			s.Confidence = 100
		}
		s.Category = strings.TrimSpace(s.Category)
		out = append(out, s)
	}
	return out, nil
}

func buildClassifyPrompt(transactions []models.StagedTransaction, categories []string, examples []models.CorrectionRecord) string {
	var b strings.Builder

	b.WriteString("You are a financial transaction classifier.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Assign a spending category to EVERY transaction below.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a JSON array of objects with fields:\n")
	b.WriteString("  \"transaction_id\": string, \"category\": string,\n")
	b.WriteString("  \"confidence\": number (0-100), \"reasoning\": string,\n")
	b.WriteString("  \"alternatives\": array of strings.\n\n")

	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("If none fits, use \"Uncategorized\" with confidence 0.\n\n")

	if len(examples) > 0 {
		b.WriteString("Recent human corrections (treat these as ground truth):\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "  - merchant %q, description %q => %q\n",
				ex.MerchantName, ex.Description, ex.CorrectedCategory)
		}
		b.WriteString("\n")
	}

	b.WriteString("Transactions:\n")
	for _, tx := range transactions {
		fmt.Fprintf(&b, "  - id %q: merchant %q, description %q, amount %.2f %s, kind %s\n",
			tx.ID, tx.MerchantName, tx.Description, tx.Amount, tx.Currency, tx.Kind)
	}
	b.WriteString("\nReturn ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"[\" and end with \"]\".\n")

	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk in case the
// model ignored the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
