package domain

// Well-known resource attribute keys (OTel semantic conventions).
const (
	AttrServiceName           = "service.name"
	AttrServiceVersion        = "service.version"
	AttrServiceNamespace      = "service.namespace"
	AttrServiceInstanceID     = "service.instance.id"
	AttrDeploymentEnvironment = "deployment.environment.name"
	AttrSDKLanguage           = "telemetry.sdk.language"
	AttrSDKVersion            = "telemetry.sdk.version"
	AttrSDKName               = "telemetry.sdk.name"
	AttrHostName              = "host.name"
	AttrContainerID           = "container.id"
	AttrK8sPodName            = "k8s.pod.name"
)

// UnknownService is the service name reported when a resource carries no
// service.name attribute.
const UnknownService = "unknown"

// Resource is the entity that produced a telemetry item. Every decoded span,
// log, and metric owns its own fully materialized Resource snapshot, so
// aggregates can be evicted independently of one another.
type Resource struct {
	Attributes map[string]AttributeValue `json:"attributes"`
}

func (r Resource) stringAttr(key string) string {
	v, ok := r.Attributes[key]
	if !ok || v.Kind() != KindString {
		return ""
	}
	return v.Str()
}

// ServiceName returns service.name, or "unknown" when absent.
func (r Resource) ServiceName() string {
	if name := r.stringAttr(AttrServiceName); name != "" {
		return name
	}
	return UnknownService
}

func (r Resource) ServiceVersion() string   { return r.stringAttr(AttrServiceVersion) }
func (r Resource) ServiceNamespace() string { return r.stringAttr(AttrServiceNamespace) }
func (r Resource) ServiceInstanceID() string {
	return r.stringAttr(AttrServiceInstanceID)
}
func (r Resource) DeploymentEnvironment() string { return r.stringAttr(AttrDeploymentEnvironment) }
func (r Resource) SDKLanguage() string           { return r.stringAttr(AttrSDKLanguage) }
func (r Resource) SDKVersion() string            { return r.stringAttr(AttrSDKVersion) }
func (r Resource) SDKName() string               { return r.stringAttr(AttrSDKName) }
func (r Resource) HostName() string              { return r.stringAttr(AttrHostName) }
func (r Resource) ContainerID() string           { return r.stringAttr(AttrContainerID) }
func (r Resource) PodName() string               { return r.stringAttr(AttrK8sPodName) }
