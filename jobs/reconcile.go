package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BalanceDrift describes one account whose stored balance no longer equals
// the sum of its transaction amounts.
type BalanceDrift struct {
	AccountID int64
	Name      string
	Stored    decimal.Decimal
	Derived   decimal.Decimal
}

// Delta returns stored minus derived.
func (d BalanceDrift) Delta() decimal.Decimal {
	return d.Stored.Sub(d.Derived)
}

// ReconcileJob sweeps every account and compares the stored balance against
// the sum of its transactions. The ledger keeps the two in lockstep inside
// each operation's transaction; this job is the operational safety net that
// notices if they ever diverge.
type ReconcileJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	clock   func() time.Time
	printer *message.Printer
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(pool *pgxpool.Pool, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{
		Pool:    pool,
		Logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
		printer: message.NewPrinter(language.English),
	}
}

// Handle executes the reconciliation sweep.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.clock()
	drifts, checked, err := j.Scan(ctx)
	if err != nil {
		j.logger().Error("reconcile scan failed", slog.Any("error", err))
		return err
	}

	for _, d := range drifts {
		j.logger().Warn("balance drift detected",
			slog.Int64("account_id", d.AccountID),
			slog.String("account", d.Name),
			slog.String("stored", j.formatAmount(d.Stored)),
			slog.String("derived", j.formatAmount(d.Derived)),
			slog.String("delta", j.formatAmount(d.Delta())),
		)
	}
	j.logger().Info("reconcile sweep finished",
		slog.Int("accounts_checked", checked),
		slog.Int("drifts", len(drifts)),
		slog.Duration("took", j.clock().Sub(start)),
	)

	if payload.FailOnDrift && len(drifts) > 0 {
		return fmt.Errorf("reconcile: %d account(s) drifted", len(drifts))
	}
	return nil
}

// Scan returns the drifted accounts and the number of accounts checked.
func (j *ReconcileJob) Scan(ctx context.Context) ([]BalanceDrift, int, error) {
	rows, err := j.Pool.Query(ctx, `
SELECT a.id, a.name, a.balance::text, COALESCE(SUM(t.amount), 0)::text
FROM accounts a
LEFT JOIN transactions t ON t.account_id = a.id
GROUP BY a.id, a.name, a.balance
ORDER BY a.id`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var drifts []BalanceDrift
	checked := 0
	for rows.Next() {
		var id int64
		var name, stored, derived string
		if err := rows.Scan(&id, &name, &stored, &derived); err != nil {
			return nil, 0, err
		}
		checked++
		storedDec, err := decimal.NewFromString(stored)
		if err != nil {
			return nil, 0, err
		}
		derivedDec, err := decimal.NewFromString(derived)
		if err != nil {
			return nil, 0, err
		}
		if !storedDec.Equal(derivedDec) {
			drifts = append(drifts, BalanceDrift{AccountID: id, Name: name, Stored: storedDec, Derived: derivedDec})
		}
	}
	return drifts, checked, rows.Err()
}

// formatAmount localizes the integer digits without losing decimal exactness.
func (j *ReconcileJob) formatAmount(d decimal.Decimal) string {
	units, cents, ok := strings.Cut(d.Abs().StringFixed(2), ".")
	n, err := strconv.ParseUint(units, 10, 64)
	if !ok || err != nil {
		return d.StringFixed(2)
	}
	out := j.printer.Sprintf("%d", n) + "." + cents
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
