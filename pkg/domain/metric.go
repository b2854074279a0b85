package domain

import "time"

// MetricType discriminates the metric point kinds the collector models.
// Only gauges and sums are ingested; other OTLP point kinds are out of scope.
type MetricType string

const (
	MetricTypeGauge MetricType = "gauge"
	MetricTypeSum   MetricType = "sum"
)

// MetricPoint is a single numeric sample.
type MetricPoint struct {
	Timestamp  time.Time                 `json:"timestamp"`
	Value      float64                   `json:"value"`
	Attributes map[string]AttributeValue `json:"attributes,omitempty"`
}

// Metric is an immutable snapshot of one OTLP metric plus its owning resource.
type Metric struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Unit        string        `json:"unit,omitempty"`
	Type        MetricType    `json:"type"`
	Points      []MetricPoint `json:"points"`
	Resource    Resource      `json:"resource"`
}

// ServiceName is the owning resource's service name.
func (m Metric) ServiceName() string { return m.Resource.ServiceName() }
