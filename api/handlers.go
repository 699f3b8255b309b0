/*
handlers.go - HTTP API handlers for the financing engine

PURPOSE:
  Exposes installment.Service and installment.Registry over REST. Handlers
  parse the request, build the Caller, pick "now" and delegate. No
  schedule arithmetic happens here.

ENDPOINTS:
  Accounts:
    GET    /api/accounts?branch_id=          List accounts
    POST   /api/accounts                     Open account (factory.AccountJSON)
    GET    /api/accounts/{id}                Account details
    PATCH  /api/accounts/{id}                Edit name, address, solar type
    DELETE /api/accounts/{id}                Close account

  Schedule (all accept ?as_of=YYYY-MM-DD, default today):
    GET    /api/accounts/{id}/schedule       Derived installments
    GET    /api/accounts/{id}/summary        Account totals and advice
    GET    /api/accounts/{id}/statement      Account + schedule + summary

  Mutations:
    POST   /api/accounts/{id}/installments/{number}/payment   Record payment
    DELETE /api/accounts/{id}/installments/{number}/payment   Revert payment
    PUT    /api/accounts/{id}/start-date                      Change start date
    GET    /api/accounts/{id}/audit                           Change history

CALLER:
  X-Actor-ID names the administrator (default "admin") and X-Branch-ID
  the branch. There is no authentication; the headers only feed the audit
  trail.

ERROR HANDLING:
  writeDomainError maps the generic error taxonomy:
  - 400: ValidationError, malformed body or parameters
  - 404: Unknown account or installment
  - 409: StateConflictError (already paid, not paid, duplicate id)
  - 503: PersistenceError (storage failed, nothing was changed)
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/solarpay/financing-engine/factory"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
	"github.com/solarpay/financing-engine/notify"
	"go.uber.org/zap"
)

const defaultActor = "admin"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *installment.Service
	Registry *installment.Registry
	Factory  *factory.AccountFactory
	Audit    installment.AuditLog // nil when the store keeps no history
	Hub      *notify.Hub          // nil disables /ws
	Logger   *zap.Logger

	// Clock supplies "now" when a request has no as_of.
	Clock func() time.Time

	repo     installment.AccountRepository
	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires a handler around repo. The audit log and reset support
// are picked up from repo when it implements them.
func NewHandler(repo installment.AccountRepository, service *installment.Service, f *factory.AccountFactory, hub *notify.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	h := &Handler{
		Service:  service,
		Registry: installment.NewRegistry(repo, logger),
		Factory:  f,
		Hub:      hub,
		Logger:   logger,
		Clock:    time.Now,
		repo:     repo,
		validate: v,
	}
	if audit, ok := repo.(installment.AuditLog); ok {
		h.Audit = audit
	}
	return h
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	if h.Hub != nil {
		resp.Subscribers = h.Hub.ConnectionCount()
	}

	if p, ok := h.repo.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Database = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the accounts of a branch, or all of them.
// GET /api/accounts?branch_id=cebu
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Registry.List(r.Context(), r.URL.Query().Get("branch_id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

// CreateAccount opens an account from a factory.AccountJSON body.
// POST /api/accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var body factory.AccountJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Factory.FromJSON(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	created, err := h.Registry.Open(r.Context(), callerFrom(r), account, h.Clock())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(created))
}

// GetAccount returns one account.
// GET /api/accounts/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Registry.Get(r.Context(), accountID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// UpdateAccount edits the account holder's profile.
// PATCH /api/accounts/{id}
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	patch := installment.ProfilePatch{Name: req.Name, Address: req.Address, SolarType: req.SolarType}
	acct, err := h.Registry.Update(r.Context(), callerFrom(r), accountID(r), patch, h.Clock())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*acct))
}

// DeleteAccount closes an account and drops its history.
// DELETE /api/accounts/{id}
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Close(r.Context(), callerFrom(r), accountID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GetSchedule returns the derived schedule.
// GET /api/accounts/{id}/schedule?as_of=2024-03-20
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	now, err := h.asOf(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	id := accountID(r)

	schedule, err := h.Service.GetSchedule(r.Context(), id, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{
		AccountID:    string(id),
		AsOf:         generic.DateOf(now).String(),
		Installments: toInstallmentDTOs(schedule),
	})
}

// GetSummary returns account totals.
// GET /api/accounts/{id}/summary?as_of=2024-03-20
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	now, err := h.asOf(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	id := accountID(r)

	summary, err := h.Service.GetSummary(r.Context(), id, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		AccountID: string(id),
		AsOf:      generic.DateOf(now).String(),
		Summary:   toSummaryDTO(summary),
	})
}

// GetStatement returns account, schedule and summary from one derivation.
// GET /api/accounts/{id}/statement?as_of=2024-03-20
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	now, err := h.asOf(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	st, err := h.Service.GetStatement(r.Context(), accountID(r), now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatementDTO{
		AsOf:         generic.DateOf(now).String(),
		Account:      toAccountDTO(st.Account),
		Summary:      toSummaryDTO(st.Summary),
		Installments: toInstallmentDTOs(st.Schedule),
	})
}

// =============================================================================
// MUTATION HANDLERS
// =============================================================================

// RecordPayment marks an installment Paid.
// POST /api/accounts/{id}/installments/{number}/payment
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	h.mutateInstallment(w, r, h.Service.RecordPayment)
}

// RevertPayment removes a recorded payment.
// DELETE /api/accounts/{id}/installments/{number}/payment
func (h *Handler) RevertPayment(w http.ResponseWriter, r *http.Request) {
	h.mutateInstallment(w, r, h.Service.RevertPayment)
}

type installmentMutation func(ctx context.Context, caller installment.Caller, id installment.AccountID, number int, now time.Time) (installment.Installment, error)

func (h *Handler) mutateInstallment(w http.ResponseWriter, r *http.Request, mutate installmentMutation) {
	number, err := installmentNumber(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	now, err := h.asOf(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	inst, err := mutate(r.Context(), callerFrom(r), accountID(r), number, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(inst))
}

// ChangeStartDate moves the schedule and clears every recorded payment.
// PUT /api/accounts/{id}/start-date
func (h *Handler) ChangeStartDate(w http.ResponseWriter, r *http.Request) {
	var req StartDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		h.writeDomainError(w, err)
		return
	}
	start, err := generic.ParseDate(req.StartDate)
	if err != nil {
		h.writeDomainError(w, &generic.ValidationError{Field: "start_date", Reason: err.Error()})
		return
	}
	now, err := h.asOf(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	id := accountID(r)

	schedule, err := h.Service.ChangeStartDate(r.Context(), callerFrom(r), id, start, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StartDateResponse{
		AccountID:    string(id),
		StartDate:    start.String(),
		AsOf:         generic.DateOf(now).String(),
		Installments: toInstallmentDTOs(schedule),
	})
}

// GetAudit returns the change history of an account.
// GET /api/accounts/{id}/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotImplemented, "Audit trail not available", nil)
		return
	}

	entries, err := h.Audit.AuditTrail(r.Context(), accountID(r))
	if err != nil {
		if !generic.IsNotFound(err) {
			err = &generic.PersistenceError{Op: "audit", AccountID: chi.URLParam(r, "id"), Err: err}
		}
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// =============================================================================
// WEBSOCKET
// =============================================================================

// ServeWebSocket subscribes a console to overdue notifications.
// GET /ws?branch_id=cebu
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Notifications disabled", nil)
		return
	}
	h.Hub.HandleWebSocket(w, r, r.URL.Query().Get("branch_id"))
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func accountID(r *http.Request) installment.AccountID {
	return installment.AccountID(chi.URLParam(r, "id"))
}

func installmentNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		return 0, &generic.ValidationError{Field: "number", Reason: "must be an integer"}
	}
	return n, nil
}

func callerFrom(r *http.Request) installment.Caller {
	actor := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	if actor == "" {
		actor = defaultActor
	}
	return installment.Caller{
		ActorID:  actor,
		BranchID: strings.TrimSpace(r.Header.Get("X-Branch-ID")),
	}
}

// asOf returns the evaluation time: midnight UTC of ?as_of when given,
// the handler clock otherwise.
func (h *Handler) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return h.Clock(), nil
	}
	tp, err := generic.ParseDate(raw)
	if err != nil {
		return time.Time{}, &generic.ValidationError{Field: "as_of", Reason: "must be a date formatted YYYY-MM-DD"}
	}
	return tp.Time, nil
}

func (h *Handler) validateRequest(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "is invalid"
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "datetime":
			reason = "must be a date formatted YYYY-MM-DD"
		case "max":
			reason = "must be at most " + fe.Param() + " characters"
		}
		return &generic.ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &generic.ValidationError{Reason: err.Error()}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the generic error taxonomy onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var ve *generic.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: ve.Reason,
			Field:   ve.Field,
		})
	case errors.Is(err, generic.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrStateConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case generic.IsRetryable(err):
		h.Logger.Error("storage failure", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable, nothing was changed", err)
	default:
		h.Logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
