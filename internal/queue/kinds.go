package queue

// Action kinds recognized by the backend. The kind selects the mutating
// endpoint an action replays against; payloads carry all identifiers, so
// endpoint paths are static.
const (
	KindVisitorCreate  = "visitor.create"
	KindVisitorUpdate  = "visitor.update"
	KindVisitorDelete  = "visitor.delete"
	KindNotifyHost     = "notify.host"
	KindNotifySMS      = "notify.sms"
	KindAnalyticsEvent = "analytics.event"
	KindHealthReport   = "health.report"
)

type endpoint struct {
	method string
	path   string
}

var endpoints = map[string]endpoint{
	KindVisitorCreate:  {"POST", "/visitors"},
	KindVisitorUpdate:  {"PUT", "/visitors"},
	KindVisitorDelete:  {"DELETE", "/visitors"},
	KindNotifyHost:     {"POST", "/notifications/host"},
	KindNotifySMS:      {"POST", "/notifications/sms"},
	KindAnalyticsEvent: {"POST", "/events"},
	KindHealthReport:   {"POST", "/health"},
}

// Endpoint returns the method and path an action kind replays against.
func Endpoint(kind string) (method, path string, ok bool) {
	ep, ok := endpoints[kind]
	return ep.method, ep.path, ok
}

// Known reports whether kind maps to a recognized mutating endpoint.
func Known(kind string) bool {
	_, ok := endpoints[kind]
	return ok
}

// Critical reports whether an action kind must never be displaced by the
// saturation policy. Visitor mutations and notifications are critical;
// analytics and health reports are best-effort.
func Critical(kind string) bool {
	switch kind {
	case KindVisitorCreate, KindVisitorUpdate, KindVisitorDelete, KindNotifyHost, KindNotifySMS:
		return true
	default:
		return false
	}
}

// nonCriticalKinds lists displacement candidates, checked oldest-first.
var nonCriticalKinds = []string{KindAnalyticsEvent, KindHealthReport}

// Read endpoints. Reads are executed directly and never queued; a failed
// read surfaces to the caller instead of becoming a pending action.
const (
	PathVisitors = "/visitors"
	PathConfig   = "/config"
	PathStats    = "/stats"
)
