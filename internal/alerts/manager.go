// Package alerts implements the alert lifecycle: creation, throttled
// triggering, acknowledgment, resolution, and symbol-level suppression.
// Delivery is left to a caller-supplied Dispatcher; this package never
// talks to email/SMS/webhook transports directly.
package alerts

import (
	"sync"
	"time"

	"github.com/Edgame2/masterTrade-sub003/pkg/utils"
	"go.uber.org/zap"
)

// Type categorizes what triggered the alert.
type Type string

const (
	TypePrice       Type = "price"
	TypePerformance Type = "performance"
	TypeRisk        Type = "risk"
	TypeHealth      Type = "health"
	TypeMilestone   Type = "milestone"
	TypeCustom      Type = "custom"
)

// Priority ranks urgency, lower is more urgent.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityInfo     Priority = 5
)

// Status is the alert lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTriggered    Status = "triggered"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusExpired      Status = "expired"
	StatusSuppressed   Status = "suppressed"
)

// Channel is a notification delivery target; this package only
// records which channels an alert should go out on, it doesn't send.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
	ChannelWebhook  Channel = "webhook"
	ChannelInApp    Channel = "in_app"
)

// Alert is a single alert instance and its full lifecycle state.
type Alert struct {
	ID       string
	Type     Type
	Priority Priority
	Title    string
	Message  string

	Symbol     string
	StrategyID string
	PositionID string
	Data       map[string]any

	Channels []Channel
	Status   Status

	CreatedAt      time.Time
	TriggeredAt    time.Time
	SentAt         time.Time
	AcknowledgedAt time.Time
	ResolvedAt     time.Time

	TriggerCount    int
	LastTriggerTime time.Time
	ThrottleMinutes int
	MaxTriggers     int
	ExpiresAt       time.Time

	DeliveryResults map[Channel]bool
}

// CreateRequest is the input to Manager.Create.
type CreateRequest struct {
	Type            Type
	Priority        Priority
	Title           string
	Message         string
	Channels        []Channel
	Symbol          string
	StrategyID      string
	PositionID      string
	Data            map[string]any
	ThrottleMinutes int
	MaxTriggers     int
	ExpiresInHours  int
}

// Dispatcher delivers a triggered alert to one channel; the manager
// calls it once per channel on Alert.Channels and records the result.
type Dispatcher interface {
	Dispatch(channel Channel, alert *Alert) error
}

// Stats tracks running alert counters.
type Stats struct {
	TotalAlerts     int
	TriggeredToday  int
	SentToday       int
	AcknowledgedToday int
	ByType          map[Type]int
	ByPriority      map[Priority]int
}

// Manager owns the full set of alerts, throttling, and suppression.
type Manager struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	alerts     map[string]*Alert
	dispatcher Dispatcher
	suppress   map[string]time.Time
	stats      Stats
}

// NewManager creates an empty alert manager. dispatcher may be nil, in
// which case Trigger records state transitions without delivery.
func NewManager(logger *zap.Logger, dispatcher Dispatcher) *Manager {
	return &Manager{
		logger:     logger.Named("alert-manager"),
		alerts:     make(map[string]*Alert),
		dispatcher: dispatcher,
		suppress:   make(map[string]time.Time),
		stats:      Stats{ByType: make(map[Type]int), ByPriority: make(map[Priority]int)},
	}
}

// Create registers a new alert in the pending state.
func (m *Manager) Create(req CreateRequest) *Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	throttle := req.ThrottleMinutes
	if throttle == 0 {
		throttle = 5
	}
	maxTriggers := req.MaxTriggers
	if maxTriggers == 0 {
		maxTriggers = 10
	}

	var expiresAt time.Time
	if req.ExpiresInHours > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresInHours) * time.Hour)
	}

	alert := &Alert{
		ID:              utils.GenerateID("alert"),
		Type:            req.Type,
		Priority:        req.Priority,
		Title:           req.Title,
		Message:         req.Message,
		Channels:        req.Channels,
		Symbol:          req.Symbol,
		StrategyID:      req.StrategyID,
		PositionID:      req.PositionID,
		Data:            req.Data,
		Status:          StatusPending,
		CreatedAt:       time.Now(),
		ThrottleMinutes: throttle,
		MaxTriggers:     maxTriggers,
		ExpiresAt:       expiresAt,
		DeliveryResults: make(map[Channel]bool),
	}

	m.alerts[alert.ID] = alert
	m.stats.TotalAlerts++
	m.stats.ByType[req.Type]++
	m.stats.ByPriority[req.Priority]++

	m.logger.Info("alert created", zap.String("alertId", alert.ID), zap.String("title", alert.Title))
	return snapshot(alert)
}

// Trigger fires an alert if it isn't throttled, expired, suppressed,
// or past its max-trigger count, then dispatches to every configured
// channel.
func (m *Manager) Trigger(alertID string) (bool, error) {
	m.mu.Lock()
	alert, ok := m.alerts[alertID]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}

	now := time.Now()

	if !alert.ExpiresAt.IsZero() && now.After(alert.ExpiresAt) {
		alert.Status = StatusExpired
		m.mu.Unlock()
		return false, nil
	}

	if until, ok := m.suppress[alert.Symbol]; ok && alert.Symbol != "" && now.Before(until) {
		alert.Status = StatusSuppressed
		m.mu.Unlock()
		return false, nil
	}

	if alert.TriggerCount >= alert.MaxTriggers {
		m.logger.Warn("alert reached max triggers", zap.String("alertId", alertID))
		m.mu.Unlock()
		return false, nil
	}

	if !alert.LastTriggerTime.IsZero() {
		sinceLast := now.Sub(alert.LastTriggerTime)
		if sinceLast < time.Duration(alert.ThrottleMinutes)*time.Minute {
			m.mu.Unlock()
			return false, nil
		}
	}

	alert.Status = StatusTriggered
	alert.TriggeredAt = now
	alert.LastTriggerTime = now
	alert.TriggerCount++
	m.stats.TriggeredToday++
	channels := append([]Channel(nil), alert.Channels...)
	dispatcher := m.dispatcher
	m.mu.Unlock()

	m.logger.Info("alert triggered", zap.String("alertId", alertID), zap.Int("triggerCount", alert.TriggerCount))

	if dispatcher == nil {
		return true, nil
	}

	var firstErr error
	anySent := false
	for _, ch := range channels {
		err := dispatcher.Dispatch(ch, snapshot(alert))
		m.mu.Lock()
		alert.DeliveryResults[ch] = err == nil
		if err == nil {
			anySent = true
		} else if firstErr == nil {
			firstErr = err
		}
		m.mu.Unlock()
	}

	if anySent {
		m.mu.Lock()
		alert.Status = StatusSent
		alert.SentAt = time.Now()
		m.stats.SentToday++
		m.mu.Unlock()
	}

	return true, firstErr
}

// Acknowledge transitions an alert to acknowledged.
func (m *Manager) Acknowledge(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[alertID]
	if !ok {
		return false
	}
	alert.Status = StatusAcknowledged
	alert.AcknowledgedAt = time.Now()
	m.stats.AcknowledgedToday++
	return true
}

// Resolve transitions an alert to resolved.
func (m *Manager) Resolve(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, ok := m.alerts[alertID]
	if !ok {
		return false
	}
	alert.Status = StatusResolved
	alert.ResolvedAt = time.Now()
	return true
}

// Suppress silences all future triggers for a symbol until the given
// time.
func (m *Manager) Suppress(symbol string, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppress[symbol] = until
}

// Get returns a copy of an alert by ID, or nil if not found.
func (m *Manager) Get(alertID string) *Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.alerts[alertID]
	if !ok {
		return nil
	}
	return snapshot(alert)
}

// ByStatus returns copies of every alert in a given status.
func (m *Manager) ByStatus(status Status) []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Alert
	for _, a := range m.alerts {
		if a.Status == status {
			out = append(out, snapshot(a))
		}
	}
	return out
}

// Stats returns a copy of the running counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[Type]int, len(m.stats.ByType))
	for k, v := range m.stats.ByType {
		byType[k] = v
	}
	byPriority := make(map[Priority]int, len(m.stats.ByPriority))
	for k, v := range m.stats.ByPriority {
		byPriority[k] = v
	}
	s := m.stats
	s.ByType = byType
	s.ByPriority = byPriority
	return s
}

func snapshot(a *Alert) *Alert {
	cp := *a
	cp.Data = make(map[string]any, len(a.Data))
	for k, v := range a.Data {
		cp.Data[k] = v
	}
	cp.Channels = append([]Channel(nil), a.Channels...)
	cp.DeliveryResults = make(map[Channel]bool, len(a.DeliveryResults))
	for k, v := range a.DeliveryResults {
		cp.DeliveryResults[k] = v
	}
	return &cp
}
