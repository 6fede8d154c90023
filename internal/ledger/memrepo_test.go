package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memRepo is an in-memory RepositoryPort with real transaction semantics:
// fn runs against a copy of the state, and the copy replaces the state only
// when fn succeeds. Failures injected via failOn model a write erroring
// mid-transaction, so atomicity can be asserted without a database. Like
// PostgreSQL, a failed statement aborts the transaction: every later call on
// the same memTx errors. staleUnitSnapshot hides a committed unit account
// from the next transaction's reads, modeling a snapshot taken before a
// concurrent provisioner committed.
type memRepo struct {
	state             memStore
	failOn            string
	staleUnitSnapshot bool
}

type memStore struct {
	accounts      map[int64]Account
	txns          map[int64]Transaction
	nextAccountID int64
	nextTxnID     int64
}

func newMemRepo() *memRepo {
	return &memRepo{state: memStore{
		accounts:      map[int64]Account{},
		txns:          map[int64]Transaction{},
		nextAccountID: 1,
		nextTxnID:     1,
	}}
}

func (s memStore) clone() memStore {
	next := memStore{
		accounts:      make(map[int64]Account, len(s.accounts)),
		txns:          make(map[int64]Transaction, len(s.txns)),
		nextAccountID: s.nextAccountID,
		nextTxnID:     s.nextTxnID,
	}
	for id, a := range s.accounts {
		next.accounts[id] = a
	}
	for id, t := range s.txns {
		if t.TransferGroupID != nil {
			group := *t.TransferGroupID
			t.TransferGroupID = &group
		}
		next.txns[id] = t
	}
	return next
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	tx := &memTx{store: &work, failOn: r.failOn, hideUnit: r.staleUnitSnapshot}
	r.staleUnitSnapshot = false
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = work
	return nil
}

var (
	errInjected  = errors.New("injected failure")
	errTxAborted = errors.New("current transaction is aborted")
)

type memTx struct {
	store    *memStore
	failOn   string
	hideUnit bool
	aborted  bool
}

// abort mimics a statement error poisoning the rest of the transaction.
func (tx *memTx) abort(err error) error {
	tx.aborted = true
	return err
}

func (tx *memTx) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	if tx.aborted {
		return Account{}, errTxAborted
	}
	account, ok := tx.store.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (tx *memTx) GetAccountForUpdate(ctx context.Context, accountID int64) (Account, error) {
	return tx.GetAccount(ctx, accountID)
}

func (tx *memTx) GetUnitAccount(ctx context.Context) (Account, error) {
	if tx.aborted {
		return Account{}, errTxAborted
	}
	if tx.hideUnit {
		return Account{}, ErrAccountNotFound
	}
	for _, a := range tx.store.accounts {
		if a.IsUnitAccount {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (tx *memTx) ListAccounts(ctx context.Context) ([]Account, error) {
	if tx.aborted {
		return nil, errTxAborted
	}
	out := make([]Account, 0, len(tx.store.accounts))
	for _, a := range tx.store.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsUnitAccount != out[j].IsUnitAccount {
			return out[i].IsUnitAccount
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memTx) InsertAccount(ctx context.Context, name string, isUnit bool) (Account, error) {
	if tx.aborted {
		return Account{}, errTxAborted
	}
	if isUnit {
		// The partial unique index sees committed rows regardless of the
		// transaction's snapshot.
		for _, a := range tx.store.accounts {
			if a.IsUnitAccount {
				return Account{}, tx.abort(ErrUnitAccountExists)
			}
		}
	}
	account := Account{
		ID:            tx.store.nextAccountID,
		Name:          name,
		Balance:       decimal.Zero,
		IsUnitAccount: isUnit,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	tx.store.nextAccountID++
	tx.store.accounts[account.ID] = account
	return account, nil
}

func (tx *memTx) UpdateAccountName(ctx context.Context, accountID int64, name string) (Account, error) {
	if tx.aborted {
		return Account{}, errTxAborted
	}
	account, ok := tx.store.accounts[accountID]
	if !ok || account.IsUnitAccount {
		return Account{}, ErrAccountNotFound
	}
	account.Name = name
	tx.store.accounts[accountID] = account
	return account, nil
}

func (tx *memTx) AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	if tx.aborted {
		return errTxAborted
	}
	if tx.failOn == "AddToBalance" {
		return tx.abort(errInjected)
	}
	account, ok := tx.store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(delta)
	tx.store.accounts[accountID] = account
	return nil
}

func (tx *memTx) GetTransactionForUpdate(ctx context.Context, transactionID int64) (Transaction, error) {
	if tx.aborted {
		return Transaction{}, errTxAborted
	}
	t, ok := tx.store.txns[transactionID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (tx *memTx) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	if tx.aborted {
		return nil, errTxAborted
	}
	var out []Transaction
	for _, t := range tx.store.txns {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (tx *memTx) ListTransferGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]Transaction, error) {
	if tx.aborted {
		return nil, errTxAborted
	}
	var out []Transaction
	for _, t := range tx.store.txns {
		if t.TransferGroupID != nil && *t.TransferGroupID == groupID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	if tx.aborted {
		return Transaction{}, errTxAborted
	}
	if tx.failOn == "InsertTransaction" {
		return Transaction{}, tx.abort(errInjected)
	}
	t.ID = tx.store.nextTxnID
	tx.store.nextTxnID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	tx.store.txns[t.ID] = t
	return t, nil
}

func (tx *memTx) UpdateTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	if tx.aborted {
		return Transaction{}, errTxAborted
	}
	if _, ok := tx.store.txns[t.ID]; !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	t.UpdatedAt = time.Now()
	tx.store.txns[t.ID] = t
	return t, nil
}

func (tx *memTx) DeleteTransaction(ctx context.Context, transactionID int64) error {
	if tx.aborted {
		return errTxAborted
	}
	if _, ok := tx.store.txns[transactionID]; !ok {
		return ErrTransactionNotFound
	}
	delete(tx.store.txns, transactionID)
	return nil
}

var _ TxRepository = (*memTx)(nil)

// balanceOf reads the committed balance for assertions.
func (r *memRepo) balanceOf(accountID int64) decimal.Decimal {
	return r.state.accounts[accountID].Balance
}

// sumOf derives the balance from committed transaction history.
func (r *memRepo) sumOf(accountID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range r.state.txns {
		if t.AccountID == accountID {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

func (r *memRepo) transactionCount() int {
	return len(r.state.txns)
}
