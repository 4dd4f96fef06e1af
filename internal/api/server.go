package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/repository"
	"github.com/set-night/rewardmarket/internal/service"
)

type Credentials struct {
	Login    string
	Password string
}

type Server struct {
	srv   http.Server
	store repository.Store

	users     *service.UserService
	scheduler *service.SchedulerService
	orders    *service.OrderService
	inventory *service.InventoryService
	redeemer  *service.RedeemService
	disburser *service.DisburseService

	adminCreds *Credentials
}

type Deps struct {
	Store     repository.Store
	Users     *service.UserService
	Scheduler *service.SchedulerService
	Orders    *service.OrderService
	Inventory *service.InventoryService
	Redeemer  *service.RedeemService
	Disburser *service.DisburseService
}

func NewServer(addr string, deps Deps, adminCreds *Credentials) *Server {
	s := &Server{
		store:      deps.Store,
		users:      deps.Users,
		scheduler:  deps.Scheduler,
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		redeemer:   deps.Redeemer,
		disburser:  deps.Disburser,
		adminCreds: adminCreds,
	}

	mx := http.NewServeMux()
	mx.HandleFunc("POST /api/v1/users", s.handleRegister)
	mx.HandleFunc("GET /api/v1/offers", s.handleListOffers)
	mx.HandleFunc("POST /api/v1/orders", s.handleCreateOrder)
	mx.HandleFunc("GET /api/v1/orders", s.handleActiveOrders)
	mx.HandleFunc("DELETE /api/v1/orders/{id}", s.handleDeleteOrder)
	mx.HandleFunc("POST /api/v1/orders/redeem", s.handleRedeem)
	mx.HandleFunc("GET /api/v1/tasks", s.handleNextTasks)
	mx.HandleFunc("POST /api/v1/tasks/results", s.handleSubmitResults)

	mx.HandleFunc("POST /api/v1/admin/categories", s.checkCredentials(s.handleCreateCategory))
	mx.HandleFunc("POST /api/v1/admin/tasks", s.checkCredentials(s.handleCreateTask))
	mx.HandleFunc("POST /api/v1/admin/offers", s.checkCredentials(s.handleCreateOffer))
	mx.HandleFunc("POST /api/v1/admin/goods", s.checkCredentials(s.handleAddGoods))
	mx.HandleFunc("GET /api/v1/admin/inventory", s.checkCredentials(s.handleInventory))

	mx.Handle("GET /metrics", promhttp.Handler())

	s.srv = http.Server{
		Addr:         addr,
		Handler:      withRecover(withLogging(mx)),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) checkCredentials(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminCreds == nil {
			writeErr(w, http.StatusUnauthorized, "admin api disabled")
			return
		}
		login, password, ok := r.BasicAuth()
		if !ok || s.adminCreds.Login != login || s.adminCreds.Password != password {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		handler(w, r)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, text string) {
	writeJSON(w, code, errorBody{Error: text})
}

// respondErr maps the domain error taxonomy onto HTTP statuses.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrOfferNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrGoodNotFound),
		errors.Is(err, domain.ErrTxNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyCompensating),
		errors.Is(err, domain.ErrTooManyOrders),
		errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrOrderDeleted),
		errors.Is(err, domain.ErrDuplicateTransaction):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrOrderExpired),
		errors.Is(err, domain.ErrExhausted),
		errors.Is(err, domain.ErrOfferUnavailable):
		writeErr(w, http.StatusGone, err.Error())
	case errors.Is(err, domain.ErrTxMismatch):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
