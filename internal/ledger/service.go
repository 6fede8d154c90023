package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/troopledger/troopledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates account and transaction mutations. Every public
// operation runs as one atomic transaction: either all of its inserts,
// updates and balance adjustments commit, or none do.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func requireWriter(p shared.Principal) error {
	if !p.CanWrite() {
		return ErrWriteRoleRequired
	}
	return nil
}

// EnsureUnitAccount provisions the pooled unit account once at startup; the
// partial unique index on is_unit_account guarantees at most one exists.
// A provisioner losing the insert race gets a unique violation, which aborts
// its transaction, so the winner is adopted in a fresh transaction rather
// than re-read inside the failed one.
func (s *Service) EnsureUnitAccount(ctx context.Context) (Account, error) {
	var unit Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetUnitAccount(ctx)
		if err == nil {
			unit = existing
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		created, err := tx.InsertAccount(ctx, UnitAccountName, true)
		if err != nil {
			return err
		}
		unit = created
		return nil
	})
	if errors.Is(err, ErrUnitAccountExists) {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var readErr error
			unit, readErr = tx.GetUnitAccount(ctx)
			return readErr
		})
	}
	if err != nil {
		return Account{}, err
	}
	return unit, nil
}

// CreateAccount inserts a regular account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, p shared.Principal, name string) (Account, error) {
	if err := requireWriter(p); err != nil {
		return Account{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, ErrNameRequired
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.InsertAccount(ctx, name, false)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, p, "account.create", "account", account.ID, map[string]any{"name": account.Name})
	return account, nil
}

// RenameAccount updates the display name of a regular account. The unit
// account never matches the update predicate, so renaming it reports not
// found without a separate check.
func (s *Service) RenameAccount(ctx context.Context, p shared.Principal, accountID int64, name string) (Account, error) {
	if err := requireWriter(p); err != nil {
		return Account{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, ErrNameRequired
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.UpdateAccountName(ctx, accountID, name)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, p, "account.rename", "account", account.ID, map[string]any{"name": account.Name})
	return account, nil
}

// ListAccounts returns every account ordered by id, unit account first.
func (s *Service) ListAccounts(ctx context.Context, p shared.Principal) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// GetAccount returns a single account by id.
func (s *Service) GetAccount(ctx context.Context, p shared.Principal, accountID int64) (Account, error) {
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccount(ctx, accountID)
		return err
	})
	return account, err
}

// ListTransactions returns the account's transactions, newest date first.
func (s *Service) ListTransactions(ctx context.Context, p shared.Principal, accountID int64) ([]Transaction, error) {
	var txns []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		txns, err = tx.ListTransactions(ctx, accountID)
		return err
	})
	return txns, err
}

// PostTransaction inserts a transaction row and applies its amount to the
// owning account's balance in the same transaction.
func (s *Service) PostTransaction(ctx context.Context, p shared.Principal, in PostInput) (Transaction, error) {
	if err := requireWriter(p); err != nil {
		return Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountForUpdate(ctx, in.AccountID); err != nil {
			return err
		}
		inserted, err := tx.InsertTransaction(ctx, Transaction{
			AccountID:   in.AccountID,
			Description: strings.TrimSpace(in.Description),
			Amount:      in.Amount,
			Category:    in.Category,
			Date:        in.Date,
		})
		if err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, in.AccountID, in.Amount); err != nil {
			return err
		}
		posted = inserted
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, p, "transaction.post", "transaction", posted.ID, map[string]any{
		"account_id": posted.AccountID,
		"amount":     posted.Amount.StringFixed(2),
		"category":   string(posted.Category),
	})
	return posted, nil
}

// EditTransaction updates a transaction's fields and adjusts the owning
// account's balance by the amount delta. Transfer-linked rows are rejected
// outright: a single-sided edit would desynchronize the pair.
func (s *Service) EditTransaction(ctx context.Context, p shared.Principal, in EditInput) (Transaction, error) {
	if err := requireWriter(p); err != nil {
		return Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		old, err := tx.GetTransactionForUpdate(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if old.TransferGroupID != nil {
			return ErrTransferLinked
		}
		if _, err := tx.GetAccountForUpdate(ctx, old.AccountID); err != nil {
			return err
		}
		next := old
		next.Description = strings.TrimSpace(in.Description)
		next.Amount = in.Amount
		next.Category = in.Category
		next.Date = in.Date
		updated, err = tx.UpdateTransaction(ctx, next)
		if err != nil {
			return err
		}
		return tx.AddToBalance(ctx, old.AccountID, in.Amount.Sub(old.Amount))
	})
	if err != nil {
		return Transaction{}, err
	}
	s.record(ctx, p, "transaction.edit", "transaction", updated.ID, map[string]any{
		"account_id": updated.AccountID,
		"amount":     updated.Amount.StringFixed(2),
	})
	return updated, nil
}

// DeleteTransaction removes a transaction and reverses its balance effect.
// Transfer-linked rows are deleted as a pair; a group missing its second row
// aborts with an integrity error and applies no mutation.
func (s *Service) DeleteTransaction(ctx context.Context, p shared.Principal, transactionID int64) error {
	if err := requireWriter(p); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if target.TransferGroupID == nil {
			if err := tx.DeleteTransaction(ctx, target.ID); err != nil {
				return err
			}
			return tx.AddToBalance(ctx, target.AccountID, target.Amount.Neg())
		}
		pair, err := tx.ListTransferGroupForUpdate(ctx, *target.TransferGroupID)
		if err != nil {
			return err
		}
		if len(pair) != 2 || pair[0].AccountID == pair[1].AccountID {
			return fmt.Errorf("%w: group %s", ErrBrokenTransferPair, target.TransferGroupID)
		}
		for _, row := range pair {
			if err := tx.DeleteTransaction(ctx, row.ID); err != nil {
				return err
			}
			if err := tx.AddToBalance(ctx, row.AccountID, row.Amount.Neg()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, p, "transaction.delete", "transaction", transactionID, nil)
	return nil
}

// ExecuteTransfer moves funds between two accounts as a linked pair of
// transactions sharing one fresh transfer-group id. The two inserts and two
// balance updates commit together or not at all.
func (s *Service) ExecuteTransfer(ctx context.Context, p shared.Principal, in TransferInput) (Transfer, error) {
	if err := requireWriter(p); err != nil {
		return Transfer{}, err
	}
	if err := in.Validate(); err != nil {
		return Transfer{}, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Transfer"
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	var result Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fromID, err := s.resolveRef(ctx, tx, in.From)
		if err != nil {
			return err
		}
		toID, err := s.resolveRef(ctx, tx, in.To)
		if err != nil {
			return err
		}
		if fromID == toID {
			return ErrSelfTransfer
		}
		// Lock both accounts in id order so concurrent opposite transfers
		// cannot deadlock.
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		if _, err := tx.GetAccountForUpdate(ctx, first); err != nil {
			return err
		}
		if _, err := tx.GetAccountForUpdate(ctx, second); err != nil {
			return err
		}

		groupID := uuid.New()
		debit, err := tx.InsertTransaction(ctx, Transaction{
			AccountID:       fromID,
			Description:     description,
			Amount:          in.Amount.Neg(),
			Category:        CategoryTransfer,
			Date:            date,
			TransferGroupID: &groupID,
		})
		if err != nil {
			return err
		}
		credit, err := tx.InsertTransaction(ctx, Transaction{
			AccountID:       toID,
			Description:     description,
			Amount:          in.Amount,
			Category:        CategoryTransfer,
			Date:            date,
			TransferGroupID: &groupID,
		})
		if err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, fromID, in.Amount.Neg()); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, toID, in.Amount); err != nil {
			return err
		}
		result = Transfer{GroupID: groupID, Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, p, "transfer.execute", "transfer", result.Debit.ID, map[string]any{
		"group_id":        result.GroupID.String(),
		"from_account_id": result.Debit.AccountID,
		"to_account_id":   result.Credit.AccountID,
		"amount":          in.Amount.StringFixed(2),
	})
	return result, nil
}

func (s *Service) resolveRef(ctx context.Context, tx TxRepository, ref AccountRef) (int64, error) {
	id, isUnit, err := ref.resolveID()
	if err != nil {
		return 0, err
	}
	if !isUnit {
		return id, nil
	}
	unit, err := tx.GetUnitAccount(ctx)
	if err != nil {
		return 0, err
	}
	return unit.ID, nil
}

// record writes a fire-and-forget audit entry after a committed mutation.
func (s *Service) record(ctx context.Context, p shared.Principal, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.ID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
