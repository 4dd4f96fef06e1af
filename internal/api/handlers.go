package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/service"
)

type registerRequest struct {
	WalletAddress    string  `json:"wallet_address"`
	PhoneHash        *string `json:"phone_hash,omitempty"`
	CountryCode      string  `json:"country_code"`
	UTCOffsetMinutes int     `json:"utc_offset_minutes"`
	Platform         string  `json:"platform"`
	ClientVersion    string  `json:"client_version"`
	DeviceToken      string  `json:"device_token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed body")
		return
	}

	user, err := s.users.Register(r.Context(), service.RegisterParams{
		WalletAddress:    req.WalletAddress,
		PhoneHash:        req.PhoneHash,
		CountryCode:      req.CountryCode,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		Platform:         domain.Platform(req.Platform),
		ClientVersion:    req.ClientVersion,
		DeviceToken:      req.DeviceToken,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": user.ID})
}

type offerResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := s.users.Get(r.Context(), userID)
	if err != nil {
		respondErr(w, err)
		return
	}

	offers, err := s.store.ListOffers(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}

	out := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		if !offer.AvailableFor(user.Platform, user.ClientVersion) {
			continue
		}
		available, err := s.inventory.AvailableCount(r.Context(), offer.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		out = append(out, offerResponse{
			ID:        offer.ID,
			Title:     offer.Title,
			Price:     offer.Price,
			Available: available,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type orderResponse struct {
	OrderID string          `json:"order_id"`
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		OfferID string `json:"offer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfferID == "" {
		writeErr(w, http.StatusBadRequest, "offer_id required")
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), userID, req.OfferID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{
		OrderID: order.ID,
		Address: order.Address,
		Amount:  order.Amount,
	})
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orders, err := s.orders.ActiveOrders(r.Context(), userID)
	if err != nil {
		respondErr(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse{OrderID: o.ID, Address: o.Address, Amount: o.Amount})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := s.orders.DeleteOrder(r.Context(), userID, r.PathValue("id")); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxHash == "" {
		writeErr(w, http.StatusBadRequest, "tx_hash required")
		return
	}

	value, err := s.redeemer.Redeem(r.Context(), userID, req.TxHash)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

type taskResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	AvailableAt time.Time       `json:"available_at"`
	Items       []taskItem      `json:"items"`
}

// taskItem deliberately omits the correct answer and per-item rewards; quiz
// grading happens server side.
type taskItem struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type nextTaskResponse struct {
	Task            *taskResponse `json:"task,omitempty"`
	UpgradeRequired bool          `json:"upgrade_required,omitempty"`
}

func (s *Server) handleNextTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("categories")
	if raw == "" {
		writeErr(w, http.StatusBadRequest, "categories required")
		return
	}
	categories := strings.Split(raw, ",")

	next, err := s.scheduler.NextTasks(r.Context(), userID, categories)
	if err != nil {
		respondErr(w, err)
		return
	}

	out := make(map[string]nextTaskResponse, len(next))
	for categoryID, nt := range next {
		resp := nextTaskResponse{UpgradeRequired: nt.UpgradeRequired}
		if nt.Task != nil {
			items := make([]taskItem, 0, len(nt.Task.Items))
			for _, item := range nt.Task.Items {
				items = append(items, taskItem{ID: item.ID, Kind: string(item.Kind)})
			}
			resp.Task = &taskResponse{
				ID:          nt.Task.ID,
				Title:       nt.Task.Title,
				Type:        nt.Task.Type,
				Price:       nt.Task.Price,
				AvailableAt: nt.AvailableAt,
				Items:       items,
			}
		}
		out[categoryID] = resp
	}
	writeJSON(w, http.StatusOK, out)
}

type submitResultsRequest struct {
	TaskID  string              `json:"task_id"`
	Address string              `json:"address"`
	Results []domain.ItemAnswer `json:"results"`
}

func (s *Server) handleSubmitResults(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req submitResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TaskID == "" || req.Address == "" {
		writeErr(w, http.StatusBadRequest, "task_id and address required")
		return
	}

	memo, already, err := s.disburser.Disburse(r.Context(), userID, req.TaskID, req.Results, req.Address)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !already {
		if err := s.scheduler.RecordSubmission(r.Context(), userID, req.TaskID); err != nil {
			respondErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"memo": memo})
}
