package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-decisions/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-decisions/pkg/llm"
	"github.com/ekaya-inc/ekaya-decisions/pkg/logging"
	"github.com/ekaya-inc/ekaya-decisions/pkg/metrics"
	"github.com/ekaya-inc/ekaya-decisions/pkg/models"
	"github.com/ekaya-inc/ekaya-decisions/pkg/retry"
)

// ErrExplainerDisabled is returned when no LLM provider is configured.
var ErrExplainerDisabled = errors.New("recommendation explainer is disabled: no llm provider configured")

// explainRunnersUp is how many paths after the recommendation are shown to the model.
const explainRunnersUp = 3

const explainSystemMessage = `You explain the output of a weighted decision-tree evaluation to a business user.
Each path has a score (higher is better), a probability and a total cost.
Explain in at most five sentences why the recommended path ranks first and what the
closest alternatives trade off. Do not invent numbers that are not in the table.`

// RecommendationExplainer writes a short rationale for a tree's recommended path.
type RecommendationExplainer interface {
	Explain(ctx context.Context, projectID, treeID uuid.UUID) (*models.RecommendationExplanation, error)
}

type recommendationExplainer struct {
	trees       DecisionTreeService
	client      llm.LLMClient
	temperature float64
	retryCfg    *retry.Config
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewRecommendationExplainer creates a RecommendationExplainer. A nil client
// disables it.
func NewRecommendationExplainer(
	trees DecisionTreeService,
	client llm.LLMClient,
	temperature float64,
	collector *metrics.Collector,
	logger *zap.Logger,
) RecommendationExplainer {
	return &recommendationExplainer{
		trees:       trees,
		client:      client,
		temperature: temperature,
		retryCfg:    retry.DefaultConfig(),
		metrics:     collector,
		logger:      logger.Named("explainer"),
	}
}

var _ RecommendationExplainer = (*recommendationExplainer)(nil)

func (e *recommendationExplainer) Explain(ctx context.Context, projectID, treeID uuid.UUID) (*models.RecommendationExplanation, error) {
	if e.client == nil {
		return nil, ErrExplainerDisabled
	}

	snap, err := e.trees.GetTree(ctx, projectID, treeID)
	if err != nil {
		return nil, err
	}
	result, err := e.trees.EvaluateSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	if result.Recommended == nil {
		return nil, fmt.Errorf("tree %s has no complete path: %w", treeID, apperrors.ErrInvalidInput)
	}

	prompt := buildExplainPrompt(snap.Tree, result)

	resp, err := retry.DoWithResultIfRetryable(ctx, e.retryCfg, func() (*llm.GenerateResponseResult, error) {
		return e.client.GenerateResponse(ctx, prompt, explainSystemMessage, e.temperature)
	})
	e.metrics.ObserveExplanation(e.client.GetProvider(), err)
	if err != nil {
		e.logger.Error("Failed to explain recommendation",
			zap.String("tree_id", treeID.String()),
			zap.String("provider", e.client.GetProvider()),
			zap.Error(err))
		return nil, fmt.Errorf("explain recommendation: %w", err)
	}

	e.logger.Info("Explained recommendation",
		zap.String("tree_id", treeID.String()),
		zap.String("model", e.client.GetModel()),
		zap.Int("total_tokens", resp.TotalTokens),
		zap.String("explanation", logging.TruncateForLog(resp.Content)))

	return &models.RecommendationExplanation{
		TreeID:      treeID,
		Recommended: result.Recommended,
		Explanation: strings.TrimSpace(resp.Content),
		Model:       e.client.GetModel(),
	}, nil
}

func buildExplainPrompt(tree *models.DecisionTree, result *models.TreeEvaluation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Decision: %s\n", tree.Title)
	if tree.Description != "" {
		fmt.Fprintf(&b, "Context: %s\n", tree.Description)
	}
	fmt.Fprintf(&b, "The evaluation produced %s.\n\n", countNoun(result.PathCount, "path"))

	shown := result.Ranked
	if len(shown) > explainRunnersUp+1 {
		shown = shown[:explainRunnersUp+1]
	}

	b.WriteString("| rank | path | score | probability | cost |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i, p := range shown {
		fmt.Fprintf(&b, "| %d | %s | %.2f | %.1f%% | %s |\n",
			i+1, strings.Join(p.PathDescription, " > "), p.Score, p.ProbabilityPercent, p.FormattedCost)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(&b, "\nThe tree has %s:\n", countNoun(len(result.Warnings), "warning"))
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.Message)
		}
	}

	b.WriteString("\nRank 1 is the recommendation.")
	return b.String()
}

// countNoun renders "1 path" or "3 paths".
func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}
