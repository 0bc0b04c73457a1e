package metrics

import (
	"sync"
	"time"

	"marketview/logger"
)

// Name identifies a metric event forwarded to in-process handlers.
type Name string

const (
	TickerBufferLength Name = "ticker_buffer_length"
	DepthBufferLength  Name = "depth_buffer_length"
	ChannelDrops       Name = "channel_drops"
)

// Kind mirrors the prometheus type the event corresponds to.
type Kind string

const (
	Gauge   Kind = "gauge"
	Counter Kind = "counter"
)

// ChannelBuffers is the component every buffer event is reported under.
const ChannelBuffers = "channel_buffers"

// Metric is one buffer or drop observation.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      Name
	Value     interface{}
	Type      Kind
	Fields    logger.Fields
}

// MetricHandler consumes metric events, e.g. the dashboard's recent metric list.
type MetricHandler func(Metric)

type MetricHandlerID uint64

type handlerSet struct {
	mu     sync.RWMutex
	byID   map[MetricHandlerID]MetricHandler
	lastID MetricHandlerID
}

var handlers = newHandlerSet()

func newHandlerSet() *handlerSet {
	return &handlerSet{byID: make(map[MetricHandlerID]MetricHandler)}
}

func (h *handlerSet) add(fn MetricHandler) MetricHandlerID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	h.byID[h.lastID] = fn
	return h.lastID
}

func (h *handlerSet) remove(id MetricHandlerID) {
	h.mu.Lock()
	delete(h.byID, id)
	h.mu.Unlock()
}

func (h *handlerSet) list() []MetricHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]MetricHandler, 0, len(h.byID))
	for _, fn := range h.byID {
		out = append(out, fn)
	}
	return out
}

// RegisterMetricHandler returns 0 for a nil handler.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return handlers.add(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.remove(id)
}

// EmitMetric logs a metric through the logger and hands it to every
// registered handler. Empty names are ignored; an empty kind means Counter.
func EmitMetric(log *logger.Log, component string, name Name, value interface{}, kind Kind, fields logger.Fields) {
	if name == "" {
		return
	}
	if kind == "" {
		kind = Counter
	}
	if log == nil {
		log = logger.GetLogger()
	}

	log.LogMetric(component, string(name), value, string(kind), cloneFields(fields))
	dispatchMetric(Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      kind,
		Fields:    cloneFields(fields),
	})
}

// ReportBufferLength emits the current length of a named channel buffer
// along with its capacity and lifetime send and drop counts.
func ReportBufferLength(log *logger.Log, name Name, buffer string, length, capacity int, sent, dropped int64) {
	EmitMetric(log, ChannelBuffers, name, length, Gauge, logger.Fields{
		"buffer":   buffer,
		"capacity": capacity,
		"sent":     sent,
		"dropped":  dropped,
	})
}

func dispatchMetric(metric Metric) {
	for _, handler := range handlers.list() {
		handler(metric)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
