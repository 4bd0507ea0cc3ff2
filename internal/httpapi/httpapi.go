package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/logging"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/service"
	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	tokenLimiter  *attemptLimiter
	validate      *validator.Validate
	log           *logrus.Entry
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logging.Discard()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		tokenLimiter:  newAttemptLimiter(10, time.Minute),
		validate:      newValidator(),
		log:           logging.Module(logger, "httpapi"),
	}
}

var (
	anyRole     = []string{domain.RoleSales, domain.RoleAccountant, domain.RoleAdmin}
	ledgerRoles = []string{domain.RoleAccountant, domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.HandleFunc("GET /api/v1/stock/{productID}", a.requireAuth(a.handleStock, anyRole...))
	mux.HandleFunc("POST /api/v1/allocations/preview", a.requireAuth(a.handleAllocationPreview, anyRole...))
	mux.HandleFunc("POST /api/v1/invoices/{invoiceID}/lines", a.requireAuth(a.handleInvoiceLines, anyRole...))
	mux.HandleFunc("POST /api/v1/invoice-lines/{id}/reverse", a.requireAuth(a.handleReverse, anyRole...))
	mux.HandleFunc("POST /api/v1/invoice-lines/{id}/late-return", a.requireAuth(a.handleLateReturn, ledgerRoles...))

	mux.HandleFunc("POST /api/v1/suppliers", a.requireAuth(a.handleCreateSupplier, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/suppliers/{id}/payments", a.requireAuth(a.handleSupplierPayment, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipments", a.requireAuth(a.handleCreateShipment, ledgerRoles...))
	mux.HandleFunc("GET /api/v1/shipments/{id}", a.requireAuth(a.handleGetShipment, anyRole...))
	mux.HandleFunc("POST /api/v1/shipments/{id}/items", a.requireAuth(a.handleAddItem, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipments/{id}/close", a.requireAuth(a.handleCloseShipment, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipments/{id}/expenses", a.requireAuth(a.handleSupplierExpense, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipments/{id}/settle", a.requireAuth(a.handleSettle, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipments/{id}/unsettle", a.requireAuth(a.handleUnsettle, ledgerRoles...))
	mux.HandleFunc("GET /api/v1/shipments/{id}/settlement-report", a.requireAuth(a.handleSettlementReport, ledgerRoles...))
	mux.HandleFunc("POST /api/v1/shipment-items/{id}/wastage", a.requireAuth(a.handleWastage, ledgerRoles...))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

type actorKey struct{}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := r.Context().Value(actorKey{}).(domain.Actor)
	return actor
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			if !a.tokenLimiter.Allow(clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, errors.New("too many invalid tokens"))
				return
			}
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var stateErrors = []error{
	service.ErrAlreadySettled,
	service.ErrTargetNotOpen,
	service.ErrSameShipment,
	service.ErrNotSettled,
	service.ErrSettlementOutOfOrder,
	service.ErrLaterShipmentSettled,
	service.ErrLineAlreadyReversed,
	service.ErrSourceShipmentSettled,
	service.ErrSourceNotSettled,
	service.ErrShipmentNotOpen,
	service.ErrReturnExceedsLine,
	service.ErrLateReturnsRecorded,
	service.ErrLineHasReturns,
}

// writeServiceError maps a ledger failure to its status. Conflicts carry
// their numbers so the caller can show what is actually on hand.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var short *service.InsufficientStockError
	var consumed *service.ForwardedStockConsumedError

	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"product_id": short.ProductID,
			"requested":  short.Requested,
			"available":  short.Available,
		})
		return
	case errors.As(err, &consumed):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        err.Error(),
			"carryover_id": consumed.CarryoverID,
			"to_item_id":   consumed.ToItemID,
			"forwarded":    consumed.Forwarded,
			"remaining":    consumed.Remaining,
		})
		return
	case errors.Is(err, store.ErrContention):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":     err.Error(),
			"retryable": true,
		})
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, state := range stateErrors {
		if errors.Is(err, state) {
			writeError(w, http.StatusConflict, err)
			return
		}
	}
	if errors.Is(err, store.ErrInvalidTransaction) {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	logging.LogError(a.log, r.Method+" "+r.Pattern, "request failed", nil, err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
}

// bind decodes the body into dest and runs its validate tags. It writes the
// 400 itself and reports whether the handler may continue.
func (a *API) bind(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "invalid request",
				"fields": validationDetails(fields),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

// parseWorkingDate reads a YYYY-MM-DD business date as UTC midnight.
func parseWorkingDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), time.UTC)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
