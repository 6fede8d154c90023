package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/troopledger/troopledger/internal/platform/db"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside one atomic unit.
type TxRepository interface {
	GetAccount(ctx context.Context, accountID int64) (Account, error)
	GetAccountForUpdate(ctx context.Context, accountID int64) (Account, error)
	GetUnitAccount(ctx context.Context) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	InsertAccount(ctx context.Context, name string, isUnit bool) (Account, error)
	UpdateAccountName(ctx context.Context, accountID int64, name string) (Account, error)
	AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error

	GetTransactionForUpdate(ctx context.Context, transactionID int64) (Transaction, error)
	ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error)
	ListTransferGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]Transaction, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error
}

// ErrUnitAccountExists surfaces the partial unique index guarding the single
// unit account row.
var ErrUnitAccountExists = errors.New("ledger: unit account already provisioned")

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const accountColumns = `id, name, balance::text, is_unit_account, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var balance string
	if err := row.Scan(&a.ID, &a.Name, &balance, &a.IsUnitAccount, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, err
	}
	a.Balance = parsed
	return a, nil
}

func (r *txRepository) GetAccount(ctx context.Context, accountID int64) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, accountID int64) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) GetUnitAccount(ctx context.Context) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_unit_account`))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY is_unit_account DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, name string, isUnit bool) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (name, is_unit_account) VALUES ($1, $2)
RETURNING `+accountColumns, name, isUnit))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_unit" {
			return Account{}, ErrUnitAccountExists
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) UpdateAccountName(ctx context.Context, accountID int64, name string) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `UPDATE accounts SET name=$2, updated_at=NOW()
WHERE id=$1 AND NOT is_unit_account RETURNING `+accountColumns, accountID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2::numeric, updated_at=NOW() WHERE id=$1`,
		accountID, delta.StringFixed(2))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const transactionColumns = `id, account_id, description, amount::text, category, date, transfer_group_id, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var amount string
	var category string
	if err := row.Scan(&t.ID, &t.AccountID, &t.Description, &amount, &category, &t.Date, &t.TransferGroupID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, err
	}
	t.Amount = parsed
	t.Category = Category(category)
	return t, nil
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, transactionID int64) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 FOR UPDATE`, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

func (r *txRepository) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE account_id=$1 ORDER BY date DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepository) ListTransferGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transfer_group_id=$1 ORDER BY id FOR UPDATE`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	inserted, err := scanTransaction(r.tx.QueryRow(ctx, `INSERT INTO transactions (account_id, description, amount, category, date, transfer_group_id)
VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING `+transactionColumns,
		t.AccountID, t.Description, t.Amount.StringFixed(2), string(t.Category), t.Date, t.TransferGroupID))
	if err != nil {
		return Transaction{}, err
	}
	return inserted, nil
}

func (r *txRepository) UpdateTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	updated, err := scanTransaction(r.tx.QueryRow(ctx, `UPDATE transactions
SET description=$2, amount=$3::numeric, category=$4, date=$5, updated_at=NOW()
WHERE id=$1 RETURNING `+transactionColumns,
		t.ID, t.Description, t.Amount.StringFixed(2), string(t.Category), t.Date))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return updated, err
}

func (r *txRepository) DeleteTransaction(ctx context.Context, transactionID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, transactionID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
