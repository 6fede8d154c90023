package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/troopledger/troopledger/internal/shared"
)

// Category labels a transaction. CategoryTransfer is reserved for rows
// created by transfer execution and cannot be posted or assigned directly.
type Category string

const (
	CategoryDues        Category = "Dues"
	CategoryPopcorn     Category = "Popcorn Sales"
	CategoryCampFees    Category = "Camp Fees"
	CategoryEquipment   Category = "Equipment"
	CategoryFundraising Category = "Fundraising"
	CategoryOther       Category = "Other"
	CategoryTransfer    Category = "Transfer"
)

// KnownCategory reports whether the value belongs to the fixed label set.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryDues, CategoryPopcorn, CategoryCampFees, CategoryEquipment,
		CategoryFundraising, CategoryOther, CategoryTransfer:
		return true
	}
	return false
}

// Account is a scout sub-account or the single pooled unit account. Balance
// always equals the sum of the account's transaction amounts.
type Account struct {
	ID            int64
	Name          string
	Balance       decimal.Decimal
	IsUnitAccount bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction is one signed ledger movement. Positive amounts are deposits,
// negative amounts are payments. Rows created by a transfer carry the shared
// TransferGroupID of their pair.
type Transaction struct {
	ID              int64
	AccountID       int64
	Description     string
	Amount          decimal.Decimal
	Category        Category
	Date            time.Time
	TransferGroupID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transfer is the committed result of one internal movement of funds.
type Transfer struct {
	GroupID uuid.UUID
	Debit   Transaction
	Credit  Transaction
}

// UnitAccountRef is the sentinel resolved to the current unit account.
const UnitAccountRef = "unit"

// UnitAccountName names the auto-provisioned pooled account.
const UnitAccountName = "Unit Account"

// AccountRef is either a numeric account id or the "unit" sentinel.
type AccountRef string

var (
	ErrNameRequired        = fmt.Errorf("%w: account name required", shared.ErrValidation)
	ErrDescriptionRequired = fmt.Errorf("%w: description required", shared.ErrValidation)
	ErrDateRequired        = fmt.Errorf("%w: date required", shared.ErrValidation)
	ErrZeroAmount          = fmt.Errorf("%w: amount must be non-zero", shared.ErrValidation)
	ErrUnknownCategory     = fmt.Errorf("%w: unknown category", shared.ErrValidation)
	ErrReservedCategory    = fmt.Errorf("%w: category Transfer is reserved for transfer execution", shared.ErrValidation)
	ErrTransferLinked      = fmt.Errorf("%w: transfer-linked transactions cannot be edited, delete the transfer instead", shared.ErrValidation)
	ErrSelfTransfer        = fmt.Errorf("%w: source and destination accounts must differ", shared.ErrValidation)
	ErrTransferAmount      = fmt.Errorf("%w: transfer amount must be positive", shared.ErrValidation)
	ErrBadAccountRef       = fmt.Errorf("%w: account reference must be an id or %q", shared.ErrValidation, UnitAccountRef)
	ErrAccountNotFound     = fmt.Errorf("%w: account", shared.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", shared.ErrNotFound)
	ErrWriteRoleRequired   = fmt.Errorf("%w: editor or admin role required", shared.ErrForbidden)
	ErrBrokenTransferPair  = fmt.Errorf("%w: transfer pair incomplete", shared.ErrIntegrity)
)

// PostInput groups fields required to post a transaction directly.
type PostInput struct {
	AccountID   int64
	Description string
	Amount      decimal.Decimal
	Category    Category
	Date        time.Time
}

// Validate ensures posting input meets the store contract.
func (in PostInput) Validate() error {
	return validateFields(in.Description, in.Amount, in.Category, in.Date)
}

func validateFields(description string, amount decimal.Decimal, category Category, date time.Time) error {
	if strings.TrimSpace(description) == "" {
		return ErrDescriptionRequired
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	if category == CategoryTransfer {
		return ErrReservedCategory
	}
	if !KnownCategory(category) {
		return ErrUnknownCategory
	}
	if date.IsZero() {
		return ErrDateRequired
	}
	return nil
}

// EditInput groups fields for mutating an existing transaction.
type EditInput struct {
	TransactionID int64
	Description   string
	Amount        decimal.Decimal
	Category      Category
	Date          time.Time
}

// Validate ensures edit input meets the store contract.
func (in EditInput) Validate() error {
	return validateFields(in.Description, in.Amount, in.Category, in.Date)
}

// TransferInput groups fields for executing an internal transfer.
type TransferInput struct {
	From        AccountRef
	To          AccountRef
	Amount      decimal.Decimal
	Description string
	Date        time.Time
}

// Validate checks everything that does not require account resolution.
// Self-transfer rejection happens after refs resolve, inside the transaction.
func (in TransferInput) Validate() error {
	if !in.Amount.IsPositive() {
		return ErrTransferAmount
	}
	if in.From == "" || in.To == "" {
		return ErrBadAccountRef
	}
	return nil
}

// resolveID parses a ref into an explicit account id, or returns
// (0, true, nil) when the ref is the unit sentinel.
func (ref AccountRef) resolveID() (int64, bool, error) {
	if ref == UnitAccountRef {
		return 0, true, nil
	}
	id, err := strconv.ParseInt(string(ref), 10, 64)
	if err != nil || id <= 0 {
		return 0, false, ErrBadAccountRef
	}
	return id, false, nil
}
