package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftpool/internal/apperr"
	"github.com/Kerhoff/giftpool/internal/service"
)

// UserHeader carries the id of the acting user. Authenticating it is the job
// of whatever sits in front of this server.
const UserHeader = "X-User-ID"

// Server provides the HTTP API for reservations and shared purchases.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, logger *logrus.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// API – Reservations
	s.mux.HandleFunc("GET /api/items/{id}/reservation", s.handleGetStatus)
	s.mux.HandleFunc("POST /api/items/{id}/reservation", s.handleClaim)
	s.mux.HandleFunc("DELETE /api/items/{id}/reservation", s.handleRelease)
	s.mux.HandleFunc("POST /api/items/{id}/purchase", s.handlePurchase)
	s.mux.HandleFunc("GET /api/lists/{id}/reservations", s.handleListReservations)

	// API – Shared purchases
	s.mux.HandleFunc("GET /api/items/{id}/shared-purchase", s.handleGetGroup)
	s.mux.HandleFunc("POST /api/items/{id}/shared-purchase", s.handleCreateGroup)
	s.mux.HandleFunc("POST /api/items/{id}/shared-purchase/contributions", s.handleContribute)
	s.mux.HandleFunc("PATCH /api/shared-purchases/{id}", s.handleManageGroup)
	s.mux.HandleFunc("DELETE /api/shared-purchases/{id}", s.handleDeleteGroup)
	s.mux.HandleFunc("PATCH /api/shared-purchases/{id}/contributions/{contributionId}", s.handleUpdateContribution)
	s.mux.HandleFunc("DELETE /api/shared-purchases/{id}/contributions/{contributionId}", s.handleDeleteContribution)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps an error kind to its status code. Internal details
// were already logged by the service and are not echoed.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(apperr.KindOf(err)), apperr.PublicMessage(err))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure. An empty body leaves dst untouched.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return true, ""
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true, ""
		}
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// pathID extracts a path value and converts it to int64.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s in path", name)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// requireActor reads the acting user from the X-User-ID header. It writes an
// error response and returns 0 when the header is absent or invalid.
func (s *Server) requireActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		s.respondError(w, http.StatusUnauthorized, "X-User-ID header is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusUnauthorized, "X-User-ID must be a positive integer")
		return 0, false
	}
	return id, true
}

// target resolves the actor and the {id} path value shared by every route.
func (s *Server) target(w http.ResponseWriter, r *http.Request, what string) (id, actorID int64, ok bool) {
	actorID, ok = s.requireActor(w, r)
	if !ok {
		return 0, 0, false
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, 0, false
	}
	return id, actorID, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Reservations
// ---------------------------------------------------------------------------

type claimRequest struct {
	Quantity any     `json:"quantity"`
	Message  *string `json:"message"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}

	st, err := s.svc.GetStatus(r.Context(), itemID, actorID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}
	var req claimRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := s.svc.Claim(r.Context(), itemID, actorID, service.ClaimInput{
		Quantity: req.Quantity,
		Message:  req.Message,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}
	var req claimRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := s.svc.Purchase(r.Context(), itemID, actorID, service.PurchaseInput{
		Quantity: req.Quantity,
		Message:  req.Message,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}

	var in service.ReleaseInput
	if raw := r.URL.Query().Get("reservation_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "reservation_id must be an integer")
			return
		}
		in.ReservationID = &id
	}

	st, err := s.svc.Release(r.Context(), itemID, actorID, in)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	listID, actorID, ok := s.target(w, r, "list")
	if !ok {
		return
	}

	items, err := s.svc.ListReservationsForList(r.Context(), listID, actorID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, items)
}

// ---------------------------------------------------------------------------
// Shared purchases
// ---------------------------------------------------------------------------

type createGroupRequest struct {
	TargetAmount    any     `json:"target_amount"`
	Currency        string  `json:"currency"`
	IsQuantityBased bool    `json:"is_quantity_based"`
	TargetQuantity  any     `json:"target_quantity"`
	Notes           *string `json:"notes"`
}

type manageGroupRequest struct {
	Status          *string `json:"status"`
	Notes           *string `json:"notes"`
	TargetAmount    any     `json:"target_amount"`
	Currency        *string `json:"currency"`
	IsQuantityBased *bool   `json:"is_quantity_based"`
	TargetQuantity  any     `json:"target_quantity"`
}

type contributeRequest struct {
	Amount       any     `json:"amount"`
	Quantity     any     `json:"quantity"`
	Fulfilled    bool    `json:"fulfilled"`
	Note         *string `json:"note"`
	ExternalName *string `json:"external_name"`
}

type updateContributionRequest struct {
	Amount       any     `json:"amount"`
	Quantity     any     `json:"quantity"`
	Status       *string `json:"status"`
	Note         *string `json:"note"`
	IsExternal   *bool   `json:"is_external"`
	ExternalName *string `json:"external_name"`
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}

	view, err := s.svc.GetGroup(r.Context(), itemID, actorID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}
	var req createGroupRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	view, err := s.svc.CreateGroup(r.Context(), itemID, actorID, service.CreateGroupInput{
		TargetAmount:    req.TargetAmount,
		Currency:        req.Currency,
		IsQuantityBased: req.IsQuantityBased,
		TargetQuantity:  req.TargetQuantity,
		Notes:           req.Notes,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	itemID, actorID, ok := s.target(w, r, "item")
	if !ok {
		return
	}
	var req contributeRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	view, err := s.svc.Contribute(r.Context(), itemID, actorID, service.ContributeInput{
		Amount:       req.Amount,
		Quantity:     req.Quantity,
		Fulfilled:    req.Fulfilled,
		Note:         req.Note,
		ExternalName: req.ExternalName,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleManageGroup(w http.ResponseWriter, r *http.Request) {
	groupID, actorID, ok := s.target(w, r, "shared purchase")
	if !ok {
		return
	}
	var req manageGroupRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	view, err := s.svc.ManageGroup(r.Context(), groupID, actorID, service.ManageGroupInput{
		Status:          req.Status,
		Notes:           req.Notes,
		TargetAmount:    req.TargetAmount,
		Currency:        req.Currency,
		IsQuantityBased: req.IsQuantityBased,
		TargetQuantity:  req.TargetQuantity,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, actorID, ok := s.target(w, r, "shared purchase")
	if !ok {
		return
	}

	view, err := s.svc.DeleteGroup(r.Context(), groupID, actorID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) contributionTarget(w http.ResponseWriter, r *http.Request) (groupID, contributionID, actorID int64, ok bool) {
	groupID, actorID, ok = s.target(w, r, "shared purchase")
	if !ok {
		return 0, 0, 0, false
	}
	contributionID, err := pathID(r, "contributionId")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid contribution id")
		return 0, 0, 0, false
	}
	return groupID, contributionID, actorID, true
}

func (s *Server) handleUpdateContribution(w http.ResponseWriter, r *http.Request) {
	groupID, contributionID, actorID, ok := s.contributionTarget(w, r)
	if !ok {
		return
	}
	var req updateContributionRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}

	view, err := s.svc.UpdateContribution(r.Context(), groupID, contributionID, actorID, service.UpdateContributionInput{
		Amount:       req.Amount,
		Quantity:     req.Quantity,
		Status:       req.Status,
		Note:         req.Note,
		IsExternal:   req.IsExternal,
		ExternalName: req.ExternalName,
	})
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteContribution(w http.ResponseWriter, r *http.Request) {
	groupID, contributionID, actorID, ok := s.contributionTarget(w, r)
	if !ok {
		return
	}

	view, err := s.svc.DeleteContribution(r.Context(), groupID, contributionID, actorID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, view)
}
