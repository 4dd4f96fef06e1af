package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/set-night/rewardmarket/internal/domain"
)

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeErr(w, http.StatusBadRequest, "id required")
		return
	}
	if err := s.store.CreateCategory(r.Context(), &domain.Category{ID: req.ID, Title: req.Title}); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

type createTaskRequest struct {
	ID                string                     `json:"id"`
	CategoryID        string                     `json:"category_id"`
	Title             string                     `json:"title"`
	Type              string                     `json:"type"`
	Position          int                        `json:"position"`
	Price             decimal.Decimal            `json:"price"`
	DelayDays         int                        `json:"delay_days"`
	MinVersion        map[domain.Platform]string `json:"min_version"`
	ExcludedCountries []string                   `json:"excluded_countries"`
	StartDate         *time.Time                 `json:"start_date"`
	ExpirationDate    *time.Time                 `json:"expiration_date"`
	Items             []domain.TaskItem          `json:"items"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.CategoryID == "" {
		writeErr(w, http.StatusBadRequest, "id and category_id required")
		return
	}
	if req.Position == domain.AdHocPosition && (req.StartDate == nil || req.ExpirationDate == nil) {
		writeErr(w, http.StatusBadRequest, "ad-hoc tasks require start_date and expiration_date")
		return
	}

	task := &domain.Task{
		ID:                req.ID,
		CategoryID:        req.CategoryID,
		Title:             req.Title,
		Type:              req.Type,
		Position:          req.Position,
		Price:             req.Price,
		DelayDays:         req.DelayDays,
		MinVersion:        req.MinVersion,
		ExcludedCountries: req.ExcludedCountries,
		StartDate:         req.StartDate,
		ExpirationDate:    req.ExpirationDate,
		Items:             req.Items,
	}
	if err := s.store.CreateTask(r.Context(), task); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

type createOfferRequest struct {
	ID         string                     `json:"id"`
	Title      string                     `json:"title"`
	Price      decimal.Decimal            `json:"price"`
	Address    string                     `json:"address"`
	Active     bool                       `json:"active"`
	MinVersion map[domain.Platform]string `json:"min_version"`
}

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Address == "" {
		writeErr(w, http.StatusBadRequest, "id and address required")
		return
	}
	offer := &domain.Offer{
		ID:         req.ID,
		Title:      req.Title,
		Price:      req.Price,
		Address:    req.Address,
		Active:     req.Active,
		MinVersion: req.MinVersion,
	}
	if err := s.store.CreateOffer(r.Context(), offer); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

func (s *Server) handleAddGoods(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OfferID string   `json:"offer_id"`
		Values  []string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfferID == "" || len(req.Values) == 0 {
		writeErr(w, http.StatusBadRequest, "offer_id and values required")
		return
	}
	if _, err := s.store.GetOffer(r.Context(), req.OfferID); err != nil {
		respondErr(w, err)
		return
	}

	for _, value := range req.Values {
		if _, err := s.store.AddGood(r.Context(), req.OfferID, value); err != nil {
			respondErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]int{"added": len(req.Values)})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	offerID := r.URL.Query().Get("offer_id")
	if offerID == "" {
		writeErr(w, http.StatusBadRequest, "offer_id required")
		return
	}
	available, err := s.inventory.AvailableCount(r.Context(), offerID)
	if err != nil {
		respondErr(w, err)
		return
	}
	total, err := s.inventory.TotalCount(r.Context(), offerID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": available, "total": total})
}
