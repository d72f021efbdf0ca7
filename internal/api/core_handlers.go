package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/activation"
	"github.com/Edgame2/masterTrade-sub003/internal/alerts"
	"github.com/Edgame2/masterTrade-sub003/internal/position"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CoreHandlers exposes the live position, activation, and alert
// managers over HTTP, replacing the PhD-era handlers that used to
// front the orchestrator/agent pair.
type CoreHandlers struct {
	logger     *zap.Logger
	positions  *position.Manager
	activation *activation.Engine
	alerts     *alerts.Manager
}

// NewCoreHandlers creates the core handler group.
func NewCoreHandlers(logger *zap.Logger, positions *position.Manager, act *activation.Engine, alertMgr *alerts.Manager) *CoreHandlers {
	return &CoreHandlers{
		logger:     logger.Named("core-api"),
		positions:  positions,
		activation: act,
		alerts:     alertMgr,
	}
}

// RegisterRoutes registers every core endpoint on the given router.
func (h *CoreHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/positions", h.ListPositions).Methods("GET")
	r.HandleFunc("/api/v1/positions", h.OpenPosition).Methods("POST")
	r.HandleFunc("/api/v1/positions/totals", h.GetTotals).Methods("GET")
	r.HandleFunc("/api/v1/positions/{id}", h.GetPosition).Methods("GET")
	r.HandleFunc("/api/v1/positions/{id}/add", h.AddToPosition).Methods("POST")
	r.HandleFunc("/api/v1/positions/{id}/reduce", h.ReducePosition).Methods("POST")
	r.HandleFunc("/api/v1/positions/{id}/close", h.ClosePosition).Methods("POST")

	r.HandleFunc("/api/v1/activation/active", h.GetActiveStrategies).Methods("GET")
	r.HandleFunc("/api/v1/activation/compare", h.CompareStrategies).Methods("GET")

	r.HandleFunc("/api/v1/alerts", h.ListAlertsByStatus).Methods("GET")
	r.HandleFunc("/api/v1/alerts/{id}/acknowledge", h.AcknowledgeAlert).Methods("POST")
	r.HandleFunc("/api/v1/alerts/{id}/resolve", h.ResolveAlert).Methods("POST")
}

func (h *CoreHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// ListPositions returns every open position, optionally filtered by
// symbol/strategyId query parameters.
func (h *CoreHandlers) ListPositions(w http.ResponseWriter, r *http.Request) {
	filter := position.Filter{
		Symbol:     r.URL.Query().Get("symbol"),
		StrategyID: r.URL.Query().Get("strategyId"),
	}
	h.writeJSON(w, http.StatusOK, h.positions.OpenPositions(filter))
}

// GetPosition returns a single position by ID, open or archived.
func (h *CoreHandlers) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pos := h.positions.Get(id)
	if pos == nil {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, pos)
}

// GetTotals returns exposure/PnL totals, optionally scoped to a symbol.
func (h *CoreHandlers) GetTotals(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.positions.Totals(r.URL.Query().Get("symbol")))
}

type openPositionRequest struct {
	Symbol     string `json:"symbol"`
	StrategyID string `json:"strategyId"`
	Side       string `json:"side"`
	EntryPrice string `json:"entryPrice"`
	Size       string `json:"size"`
	StopLoss   string `json:"stopLoss,omitempty"`
	TakeProfit string `json:"takeProfit,omitempty"`
}

// OpenPosition creates a new position from strategy intent. This is
// the entry point into C2's lifecycle: fills from the execution
// engine (internal/execution.OrderManager) scale the resulting
// position in or out from here on.
func (h *CoreHandlers) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	side := types.PositionSide(req.Side)
	if side != types.PositionSideLong && side != types.PositionSideShort {
		http.Error(w, "side must be long or short", http.StatusBadRequest)
		return
	}
	entryPrice, err := decimal.NewFromString(req.EntryPrice)
	if err != nil || !entryPrice.IsPositive() {
		http.Error(w, "entryPrice must be a positive decimal", http.StatusBadRequest)
		return
	}
	size, err := decimal.NewFromString(req.Size)
	if err != nil || !size.IsPositive() {
		http.Error(w, "size must be a positive decimal", http.StatusBadRequest)
		return
	}

	openReq := position.OpenRequest{
		Symbol:     req.Symbol,
		StrategyID: req.StrategyID,
		Side:       side,
		EntryPrice: entryPrice,
		Size:       size,
		EntryTime:  time.Now(),
	}
	if req.StopLoss != "" {
		if v, err := decimal.NewFromString(req.StopLoss); err == nil {
			openReq.StopLoss = &v
		}
	}
	if req.TakeProfit != "" {
		if v, err := decimal.NewFromString(req.TakeProfit); err == nil {
			openReq.TakeProfit = &v
		}
	}

	pos, err := h.positions.Open(openReq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusCreated, pos)
}

type fillRequest struct {
	Price string `json:"price"`
	Size  string `json:"size,omitempty"`
	Fee   string `json:"fee,omitempty"`
}

func (req fillRequest) decode() (price, size, fee decimal.Decimal, err error) {
	price, err = decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("price must be a positive decimal")
	}
	if req.Size != "" {
		if size, err = decimal.NewFromString(req.Size); err != nil || !size.IsPositive() {
			return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("size must be a positive decimal")
		}
	}
	if req.Fee != "" {
		if fee, err = decimal.NewFromString(req.Fee); err != nil {
			return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("fee must be a decimal")
		}
	}
	return price, size, fee, nil
}

// AddToPosition scales into an existing position on an opening fill.
func (h *CoreHandlers) AddToPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price, size, fee, err := req.decode()
	if err != nil || size.IsZero() {
		http.Error(w, "price and size are required", http.StatusBadRequest)
		return
	}
	fillID := fmt.Sprintf("%s_add_%d", id, time.Now().UnixNano())
	pos, err := h.positions.Add(id, fillID, price, size, fee, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, pos)
}

// ReducePosition partially closes a position on a closing fill.
func (h *CoreHandlers) ReducePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price, size, fee, err := req.decode()
	if err != nil || size.IsZero() {
		http.Error(w, "price and size are required", http.StatusBadRequest)
		return
	}
	fillID := fmt.Sprintf("%s_reduce_%d", id, time.Now().UnixNano())
	pos, realized, err := h.positions.Reduce(id, fillID, price, size, fee, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"position": pos, "realizedPnl": realized})
}

// ClosePosition closes the full remaining size of a position.
func (h *CoreHandlers) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		http.Error(w, "price must be a positive decimal", http.StatusBadRequest)
		return
	}
	fee := decimal.Zero
	if req.Fee != "" {
		if v, err := decimal.NewFromString(req.Fee); err == nil {
			fee = v
		}
	}
	fillID := fmt.Sprintf("%s_close_%d", id, time.Now().UnixNano())
	pos, realized, err := h.positions.Close(id, fillID, price, fee, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"position": pos, "realizedPnl": realized})
}

// GetActiveStrategies returns the IDs of strategies currently passing
// the activation engine's activate/keep/deactivate decision.
func (h *CoreHandlers) GetActiveStrategies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"active": h.activation.ActiveStrategyIDs()})
}

// CompareStrategies runs the abtest statistical suite (t-test,
// chi-square, Sharpe-difference, SPRT) between two registered
// strategies' recorded pattern outcomes.
func (h *CoreHandlers) CompareStrategies(w http.ResponseWriter, r *http.Request) {
	controlID := r.URL.Query().Get("control")
	treatmentID := r.URL.Query().Get("treatment")

	control, ok := h.activation.Get(controlID)
	if !ok {
		http.Error(w, "control strategy not found", http.StatusNotFound)
		return
	}
	treatment, ok := h.activation.Get(treatmentID)
	if !ok {
		http.Error(w, "treatment strategy not found", http.StatusNotFound)
		return
	}

	confidence := 0.95
	if raw := r.URL.Query().Get("confidence"); raw != "" {
		if v, err := decimal.NewFromString(raw); err == nil {
			if f, _ := v.Float64(); f > 0 && f < 1 {
				confidence = f
			}
		}
	}

	h.writeJSON(w, http.StatusOK, h.activation.CompareStrategies(control, treatment, confidence))
}

// ListAlertsByStatus returns alerts in a given status, pending by
// default.
func (h *CoreHandlers) ListAlertsByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(alerts.StatusPending)
	}
	h.writeJSON(w, http.StatusOK, h.alerts.ByStatus(alerts.Status(status)))
}

// AcknowledgeAlert transitions an alert to acknowledged.
func (h *CoreHandlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.alerts.Acknowledge(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.alerts.Get(id))
}

// ResolveAlert transitions an alert to resolved.
func (h *CoreHandlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.alerts.Resolve(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, h.alerts.Get(id))
}
