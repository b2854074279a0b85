// Package ingest is the OTLP front door: it decodes export requests, records
// service identities, persists telemetry, feeds the aggregators, and fans
// batches out to live subscribers.
package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// ServiceInfo is one registered telemetry producer.
type ServiceInfo struct {
	Name        string    `json:"name"`
	Version     string    `json:"version,omitempty"`
	Namespace   string    `json:"namespace,omitempty"`
	Environment string    `json:"environment,omitempty"`
	SDKName     string    `json:"sdkName,omitempty"`
	SDKLanguage string    `json:"sdkLanguage,omitempty"`
	SDKVersion  string    `json:"sdkVersion,omitempty"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// ServiceRegistry tracks the services seen on the ingestion path, keyed by
// service name. Upsert is idempotent: repeated exports from one service only
// advance its last-seen time.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*ServiceInfo
	now      func() time.Time
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]*ServiceInfo),
		now:      time.Now,
	}
}

// Upsert registers the resource's service identity, creating the entry on
// first sight and refreshing last-seen and SDK identity afterwards.
func (r *ServiceRegistry) Upsert(resource domain.Resource) {
	name := resource.ServiceName()
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.services[name]
	if !ok {
		info = &ServiceInfo{Name: name, FirstSeen: now}
		r.services[name] = info
	}
	info.LastSeen = now
	if v := resource.ServiceVersion(); v != "" {
		info.Version = v
	}
	if v := resource.ServiceNamespace(); v != "" {
		info.Namespace = v
	}
	if v := resource.DeploymentEnvironment(); v != "" {
		info.Environment = v
	}
	if v := resource.SDKName(); v != "" {
		info.SDKName = v
	}
	if v := resource.SDKLanguage(); v != "" {
		info.SDKLanguage = v
	}
	if v := resource.SDKVersion(); v != "" {
		info.SDKVersion = v
	}
}

// Get returns the entry for a service name.
func (r *ServiceRegistry) Get(name string) (ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.services[name]
	if !ok {
		return ServiceInfo{}, false
	}
	return *info, true
}

// List returns all registered services sorted by name.
func (r *ServiceRegistry) List() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServiceInfo, 0, len(r.services))
	for _, info := range r.services {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered services.
func (r *ServiceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
