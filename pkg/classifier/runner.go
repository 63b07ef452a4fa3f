package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"k8s.io/klog"

	"github.com/bcaldwell/plaidsync/pkg/finance"
)

var errEmptyLabel = errors.New("classifier returned an empty label")

// Store is the part of the transaction store the runner needs.
type Store interface {
	ListUnclassified(ctx context.Context, userID string) ([]finance.Transaction, error)
	SetAICategory(ctx context.Context, transactionID int64, label string) error
}

type Runner struct {
	store      Store
	classifier Classifier
	log        *slog.Logger
}

type Result struct {
	Classified int                        `json:"classified"`
	Failed     int                        `json:"failed"`
	Failures   []*finance.ClassifierError `json:"-"`
}

func NewRunner(s Store, c Classifier, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{store: s, classifier: c, log: log}
}

// ClassifyUnlabeled calls the classifier once for every transaction of userID with no ai
// category and stores the label. A failing transaction is counted and skipped. Transactions
// the provider filed under income keep the income label without a classifier call.
func (r *Runner) ClassifyUnlabeled(ctx context.Context, userID string) (Result, error) {
	result := Result{}

	transactions, err := r.store.ListUnclassified(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to list unclassified transactions: %w", err)
	}

	for _, tx := range transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		label, err := r.label(ctx, tx)
		if err == nil && strings.TrimSpace(label) == "" {
			err = errEmptyLabel
		}
		if err != nil {
			classifierErr := &finance.ClassifierError{TransactionID: tx.ID, Err: err}
			r.log.Warn("skipping transaction", "user_id", userID, "transaction_id", tx.ID, "error", classifierErr)
			result.Failed++
			result.Failures = append(result.Failures, classifierErr)
			continue
		}

		if err := r.store.SetAICategory(ctx, tx.ID, label); err != nil {
			classifierErr := &finance.ClassifierError{TransactionID: tx.ID, Err: err}
			r.log.Error("failed to save category", "transaction_id", tx.ID, "error", err)
			result.Failed++
			result.Failures = append(result.Failures, classifierErr)
			continue
		}

		result.Classified++
	}

	klog.Infof("Classified %d transactions for user %s (%d failed)\n", result.Classified, userID, result.Failed)

	return result, nil
}

func (r *Runner) label(ctx context.Context, tx finance.Transaction) (string, error) {
	if tx.IsProviderIncome() {
		return finance.IncomeCategory, nil
	}
	return r.classifier.Classify(ctx, InputFor(tx))
}
