// Package matching implements the transaction-to-invoice matcher: a
// candidate index over open invoices, a fixed-weight scorer, and a
// batch engine that drives each transaction through
// pending -> auto_matched | needs_review | no_match | failed.
package matching

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bank-reconciliation-backend/internal/models"
)

// Outcome of one transaction within a batch run.
type Outcome string

const (
	OutcomeAutoMatched Outcome = "auto_matched"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// ScoredCandidate is one invoice considered for a transaction, kept on
// review outcomes so operators see the ambiguous set.
type ScoredCandidate struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Score     Score     `json:"score"`
}

// Result is the per-transaction outcome. Errors are always scoped
// here; a batch run never aborts because one transaction failed.
type Result struct {
	TransactionID uuid.UUID
	Outcome       Outcome
	InvoiceID     *uuid.UUID
	Score         Score
	Candidates    []ScoredCandidate
	Err           error
}

type BatchResult struct {
	Results     []Result
	AutoMatched int
	NeedsReview int
	NoMatch     int
	Unchanged   int
	Skipped     int
	Failed      int
}

// Engine orchestrates candidate retrieval, scoring, tie-break, and
// allocation for a batch of transactions. Construct one per run with a
// ledger seeded from current invoice state; the engine keeps no global
// mutable state between runs, so parallel runs stay independent.
type Engine struct {
	cfg    Config
	source CandidateSource
	ledger *Ledger
}

func NewEngine(cfg Config, source CandidateSource, ledger *Ledger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg, source: source, ledger: ledger}
}

// Run matches every transaction concurrently up to the configured
// worker bound. Results come back in input order. Cancelling the
// context stops scheduling new transactions; decisions already made
// stay made, and the run is safe to repeat.
func (e *Engine) Run(ctx context.Context, txs []*models.BankTransaction) *BatchResult {
	results := make([]Result, len(txs))
	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup

	for i := range txs {
		if err := ctx.Err(); err != nil {
			results[i] = Result{TransactionID: txs[i].ID, Outcome: OutcomeSkipped, Err: err}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.MatchOne(ctx, txs[i])
		}(i)
	}
	wg.Wait()

	br := &BatchResult{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeAutoMatched:
			br.AutoMatched++
		case OutcomeNeedsReview:
			br.NeedsReview++
		case OutcomeNoMatch:
			br.NoMatch++
		case OutcomeUnchanged:
			br.Unchanged++
		case OutcomeSkipped:
			br.Skipped++
		case OutcomeFailed:
			br.Failed++
		}
	}
	return br
}

// MatchOne runs the decision state machine for a single transaction.
// The transaction is read-only here; committing the outcome to storage
// is the caller's job.
func (e *Engine) MatchOne(ctx context.Context, tx *models.BankTransaction) Result {
	res := Result{TransactionID: tx.ID}

	// Manual decisions always win; settled and external transactions
	// are equally off-limits for automatic runs.
	switch tx.Status {
	case models.TxStatusManualMatched, models.TxStatusConfirmed, models.TxStatusExternal:
		res.Outcome = OutcomeSkipped
		return res
	}

	cands, err := e.lookup(ctx, tx)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	if len(cands) == 0 {
		res.Outcome = OutcomeNoMatch
		return res
	}

	f := factsFor(tx)

	// One extra pass after an allocation conflict: rescore against the
	// refreshed ledger state, then give up on repeated conflict.
	for attempt := 0; attempt < 2; attempt++ {
		scored := e.scoreAll(f, cands)
		if len(scored) == 0 {
			res.Outcome = OutcomeNoMatch
			return res
		}

		top := scored[0]
		res.Score = top.Score
		res.Candidates = scored

		if top.Score.Total < e.cfg.ReviewFloor {
			res.Outcome = OutcomeNoMatch
			return res
		}
		if len(scored) > 1 && scored[1].Score.Total >= top.Score.Total-e.cfg.AmbiguityWindow {
			res.Outcome = OutcomeNeedsReview
			res.Err = ErrAmbiguousMatch
			return res
		}
		if top.Score.Total < e.cfg.AutoAcceptThreshold {
			res.Outcome = OutcomeNeedsReview
			return res
		}

		pick := top
		// An existing automatic match is sticky: a different invoice
		// takes over only when its score beats the stored one by more
		// than ReplaceDelta.
		if tx.Status == models.TxStatusAutoMatched && tx.MatchedInvoiceID != nil &&
			top.InvoiceID != *tx.MatchedInvoiceID &&
			top.Score.Total-tx.ConfidenceScore <= e.cfg.ReplaceDelta {
			if prior, ok := findScored(scored, *tx.MatchedInvoiceID); ok {
				pick = prior
			}
		}

		invID := pick.InvoiceID
		if _, err := e.ledger.Allocate(invID, f.amount); err != nil {
			continue
		}

		res.InvoiceID = &invID
		res.Score = pick.Score
		res.Candidates = nil
		if tx.Status == models.TxStatusAutoMatched && tx.MatchedInvoiceID != nil &&
			*tx.MatchedInvoiceID == invID &&
			math.Abs(pick.Score.Total-tx.ConfidenceScore) <= e.cfg.ReplaceDelta {
			res.Outcome = OutcomeUnchanged
		} else {
			res.Outcome = OutcomeAutoMatched
		}
		return res
	}

	res.Outcome = OutcomeFailed
	res.InvoiceID = nil
	res.Candidates = nil
	res.Err = ErrAllocationConflict
	return res
}

func findScored(scored []ScoredCandidate, id uuid.UUID) (ScoredCandidate, bool) {
	for _, sc := range scored {
		if sc.InvoiceID == id {
			return sc, true
		}
	}
	return ScoredCandidate{}, false
}

// scoreAll scores every candidate with positive remaining due against
// the transaction and sorts best-first, ties broken by invoice id so
// runs are reproducible regardless of worker scheduling.
func (e *Engine) scoreAll(f txFacts, cands []*Candidate) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		rem := e.ledger.Remaining(c.Invoice.ID)
		if !rem.IsPositive() {
			continue
		}
		scored = append(scored, ScoredCandidate{
			InvoiceID: c.Invoice.ID,
			Score:     scoreCandidate(f, c, rem),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score.Total != scored[j].Score.Total {
			return scored[i].Score.Total > scored[j].Score.Total
		}
		return scored[i].InvoiceID.String() < scored[j].InvoiceID.String()
	})
	return scored
}

// lookup fetches candidates with a per-attempt timeout and bounded
// retries with doubling backoff. A transaction that still cannot look
// up its candidates fails alone; the batch continues.
func (e *Engine) lookup(ctx context.Context, tx *models.BankTransaction) ([]*Candidate, error) {
	backoff := e.cfg.LookupBackoff
	attempts := e.cfg.LookupRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.LookupTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.LookupTimeout)
		}
		cands, err := e.source.FindCandidates(attemptCtx, tx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return cands, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &LookupError{Attempts: attempt, Err: ctx.Err()}
			}
			backoff *= 2
		}
	}
	return nil, &LookupError{Attempts: attempts, Err: lastErr}
}
