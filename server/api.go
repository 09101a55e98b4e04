package server

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"parklot/internal"
	"parklot/internal/config"
	"parklot/metrics/counters"
	"parklot/models"
	"parklot/parking"
	"parklot/utility"
	"parklot/wallet"
	"time"

	"github.com/julienschmidt/httprouter"
)

type Api struct {
	conf        *config.Config
	httpServer  *http.Server
	coordinator *parking.Coordinator
	ledger      *wallet.Ledger
	gate        *IdentityGate
	feed        *Feed
	database    internal.Database
	logger      internal.LogHandler
}

type apiResponse struct {
	Status     string             `json:"status"`
	Message    string             `json:"message,omitempty"`
	Data       interface{}        `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func NewApi(conf *config.Config, coordinator *parking.Coordinator, ledger *wallet.Ledger, gate *IdentityGate, feed *Feed) *Api {
	api := &Api{
		conf:        conf,
		coordinator: coordinator,
		ledger:      ledger,
		gate:        gate,
		feed:        feed,
	}

	router := httprouter.New()
	router.POST("/api/parking/checkin", api.handleCheckIn)
	router.POST("/api/parking/checkout", api.handleCheckOut)
	router.GET("/api/parking/active", gate.Protect(api.handleActive))
	router.GET("/api/parking/history", gate.Protect(api.handleHistory))
	router.GET("/api/admin/parking/active", gate.ProtectAdmin(api.handleAdminActive))
	router.GET("/api/admin/parking/history", gate.ProtectAdmin(api.handleAdminHistory))
	router.GET("/api/admin/parking/unsettled", gate.ProtectAdmin(api.handleAdminUnsettled))
	router.GET("/api/admin/log", gate.ProtectAdmin(api.handleAdminLog))
	router.POST("/api/admin/parking/:id/cancel", gate.ProtectAdmin(api.handleAdminCancel))
	router.GET("/api/wallet/balance", gate.Protect(api.handleBalance))
	router.POST("/api/wallet/topup", gate.Protect(api.handleTopUp))
	router.POST("/api/admin/wallet/topup", gate.ProtectAdmin(api.handleAdminTopUp))
	router.GET("/ws", feed.HandleRequest)

	api.httpServer = &http.Server{
		Handler: router,
	}
	return api
}

func (s *Api) SetLogger(logger internal.LogHandler) {
	s.logger = logger
}

func (s *Api) SetDatabase(database internal.Database) {
	s.database = database
}

func (s *Api) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	if s.logger != nil {
		s.logger.Debug(fmt.Sprintf("starting api server on %s", serverAddress))
	}
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		cert, err := tls.LoadX509KeyPair(s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
		if err != nil {
			return fmt.Errorf("api: failed to load certificate: %v", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		return s.httpServer.ServeTLS(listener, "", "")
	}
	return s.httpServer.Serve(listener)
}

type gateRequest struct {
	Credential string `json:"credential"`
	VehicleTag string `json:"vehicle_tag"`
}

func (s *Api) handleCheckIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, apiResponse{Status: "error", Message: "invalid request body"})
		return
	}
	session, err := s.coordinator.CheckIn(req.Credential, req.VehicleTag)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, apiResponse{Status: "success", Message: "Successfully checked in", Data: session})
}

func (s *Api) handleCheckOut(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, apiResponse{Status: "error", Message: "invalid request body"})
		return
	}
	session, message, err := s.coordinator.CheckOutAndPay(req.Credential, req.VehicleTag)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Message: message, Data: session})
}

func (s *Api) handleActive(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, identity Identity) {
	session, err := s.coordinator.GetActiveForSubject(identity.SubjectId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: session})
}

func (s *Api) handleHistory(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, identity Identity) {
	history, err := s.coordinator.GetHistoryForSubject(identity.SubjectId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: history})
}

func (s *Api) handleAdminActive(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, _ Identity) {
	sessions, err := s.coordinator.ListActiveSessions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	counters.ObserveActiveSessions(len(sessions))
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: sessions})
}

func (s *Api) handleAdminHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ Identity) {
	query := r.URL.Query()

	filter := models.HistoryFilter{}
	if from, err := parseDate(query.Get("startDate")); err == nil && from != nil {
		filter.From = from
	}
	if to, err := parseDate(query.Get("endDate")); err == nil && to != nil {
		filter.To = to
	}
	switch query.Get("status") {
	case "paid":
		filter.State = models.PaymentPaid
	case "pending", "unpaid":
		filter.State = models.PaymentPending
	case "cancelled":
		filter.State = models.PaymentCancelled
	}

	sort := models.SortOrder{
		Key:        query.Get("sortBy"),
		Descending: query.Get("sortOrder") != "asc",
	}
	page := models.Page{Number: 1, Limit: 100}
	if n := utility.ToInt(query.Get("page")); n > 0 {
		page.Number = n
	}
	if n := utility.ToInt(query.Get("limit")); n > 0 {
		page.Limit = n
	}

	sessions, pagination, err := s.coordinator.ListHistory(filter, sort, page)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: sessions, Pagination: &pagination})
}

func (s *Api) handleAdminUnsettled(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, _ Identity) {
	sessions, err := s.coordinator.ListUnsettled()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: sessions})
}

func (s *Api) handleAdminLog(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, _ Identity) {
	if s.database == nil {
		writeEnvelope(w, http.StatusServiceUnavailable, apiResponse{Status: "error", Message: "log store is not available"})
		return
	}
	entries, err := s.database.ReadLog()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: entries})
}

func (s *Api) handleAdminCancel(w http.ResponseWriter, _ *http.Request, params httprouter.Params, _ Identity) {
	session, err := s.coordinator.CancelUnpaid(params.ByName("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Message: "Parking session cancelled", Data: session})
}

func (s *Api) handleBalance(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, identity Identity) {
	walletDoc, err := s.ledger.BalanceFor(identity.SubjectId)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Data: walletDoc})
}

type topUpRequest struct {
	SubjectId string `json:"subject_id"`
	Amount    int    `json:"amount"`
}

func (s *Api) handleTopUp(w http.ResponseWriter, r *http.Request, _ httprouter.Params, identity Identity) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, apiResponse{Status: "error", Message: "invalid request body"})
		return
	}
	walletDoc, err := s.ledger.TopUp(identity.SubjectId, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	message := fmt.Sprintf("Successfully topped up %s", utility.FormatRupiah(req.Amount))
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Message: message, Data: walletDoc})
}

func (s *Api) handleAdminTopUp(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ Identity) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, apiResponse{Status: "error", Message: "invalid request body"})
		return
	}
	if req.SubjectId == "" {
		writeEnvelope(w, http.StatusBadRequest, apiResponse{Status: "error", Message: "subject_id is required"})
		return
	}
	walletDoc, err := s.ledger.AdminTopUp(req.SubjectId, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	message := fmt.Sprintf("Successfully topped up %s for user %s", utility.FormatRupiah(req.Amount), req.SubjectId)
	writeEnvelope(w, http.StatusOK, apiResponse{Status: "success", Message: message, Data: walletDoc})
}

// parseDate accepts a date or a full timestamp.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date: %s", value)
}

func (s *Api) writeError(w http.ResponseWriter, err error) {
	appErr := utility.AsAppError(err)

	status := http.StatusInternalServerError
	response := apiResponse{Status: "error", Message: appErr.Error()}
	switch appErr.Kind {
	case utility.KindInvalidArgument:
		status = http.StatusBadRequest
	case utility.KindNotFound:
		status = http.StatusNotFound
	case utility.KindForbidden:
		status = http.StatusForbidden
	case utility.KindConflict:
		status = http.StatusConflict
	case utility.KindInsufficientFunds:
		counters.CountPaymentFailure()
		status = http.StatusBadRequest
		response.Message = "Insufficient balance"
		response.Data = map[string]int{
			"required": appErr.Required,
			"balance":  appErr.Balance,
		}
	case utility.KindInternal:
		// do not leak store internals to clients
		response.Message = "internal error"
		if s.logger != nil {
			s.logger.Error("api: request failed", err)
		}
	}
	writeEnvelope(w, status, response)
}

func writeEnvelope(w http.ResponseWriter, status int, response apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
