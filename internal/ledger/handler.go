package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/troopledger/troopledger/internal/platform/httpx"
	"github.com/troopledger/troopledger/internal/shared"
)

// DateLayout is the wire format for transaction dates.
const DateLayout = "2006-01-02"

// Handler wires ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Post("/accounts", h.createAccount)
	r.Put("/accounts/{id}", h.renameAccount)
	r.Get("/accounts/{id}/transactions", h.listTransactions)
	r.Post("/accounts/{id}/transactions", h.postTransaction)
	r.Put("/transactions/{id}", h.editTransaction)
	r.Delete("/transactions/{id}", h.deleteTransaction)
	r.Post("/transfers", h.executeTransfer)
}

type accountResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Balance       string `json:"balance"`
	IsUnitAccount bool   `json:"is_unit_account"`
}

type transactionResponse struct {
	ID              int64   `json:"id"`
	AccountID       int64   `json:"account_id"`
	Description     string  `json:"description"`
	Amount          string  `json:"amount"`
	Category        string  `json:"category"`
	Date            string  `json:"date"`
	TransferGroupID *string `json:"transfer_group_id,omitempty"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		Name:          a.Name,
		Balance:       a.Balance.StringFixed(2),
		IsUnitAccount: a.IsUnitAccount,
	}
}

func toTransactionResponse(t Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Description: t.Description,
		Amount:      t.Amount.StringFixed(2),
		Category:    string(t.Category),
		Date:        t.Date.Format(DateLayout),
	}
	if t.TransferGroupID != nil {
		group := t.TransferGroupID.String()
		resp.TransferGroupID = &group
	}
	return resp
}

func principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	}
	return p, ok
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}

func parseDate(value string) (time.Time, error) {
	date, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be %s", shared.ErrValidation, DateLayout)
	}
	return date, nil
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), p)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type accountNameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req accountNameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name is required")
		return
	}
	account, err := h.service.CreateAccount(r.Context(), p, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) renameAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req accountNameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	account, err := h.service.RenameAccount(r.Context(), p, id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txns, err := h.service.ListTransactions(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, toTransactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type transactionRequest struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category" validate:"required"`
	Date        string          `json:"date" validate:"required"`
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	accountID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "description, category and date are required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	posted, err := h.service.PostTransaction(r.Context(), p, PostInput{
		AccountID:   accountID,
		Description: req.Description,
		Amount:      req.Amount,
		Category:    Category(req.Category),
		Date:        date,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(posted))
}

func (h *Handler) editTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "description, category and date are required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.EditTransaction(r.Context(), p, EditInput{
		TransactionID: id,
		Description:   req.Description,
		Amount:        req.Amount,
		Category:      Category(req.Category),
		Date:          date,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), p, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

type transferRequest struct {
	From        string          `json:"from" validate:"required"`
	To          string          `json:"to" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

type transferResponse struct {
	GroupID string              `json:"transfer_group_id"`
	Debit   transactionResponse `json:"debit"`
	Credit  transactionResponse `json:"credit"`
}

func (h *Handler) executeTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from and to accounts are required")
		return
	}
	input := TransferInput{
		From:        AccountRef(req.From),
		To:          AccountRef(req.To),
		Amount:      req.Amount,
		Description: req.Description,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Date = date
	}
	result, err := h.service.ExecuteTransfer(r.Context(), p, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{
		GroupID: result.GroupID.String(),
		Debit:   toTransactionResponse(result.Debit),
		Credit:  toTransactionResponse(result.Credit),
	})
}
