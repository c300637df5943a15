package metrics

// Service is the set of counters the analyst server exports.
type Service struct {
	Registry  *Registry
	Requests  *CounterVec
	Tasks     *CounterVec
	Fallbacks *CounterVec
	Renders   *CounterVec
	RenderKB  *CounterVec
	InFlight  *Gauge
}

// NewService registers the service counters on a fresh registry.
func NewService() *Service {
	r := NewRegistry()
	return &Service{
		Registry:  r,
		Requests:  r.Counter("analyst_http_requests_total", "HTTP requests by route and status code.", "route", "code"),
		Tasks:     r.Counter("analyst_tasks_total", "Analysis tasks by kind and outcome.", "kind", "outcome"),
		Fallbacks: r.Counter("analyst_fallback_answers_total", "Questions answered with a default value.", "kind", "question"),
		Renders:   r.Counter("analyst_plot_renders_total", "Plot renders by ladder rung and media type.", "rung", "media_type"),
		RenderKB:  r.Counter("analyst_plot_kilobytes_total", "Encoded plot kilobytes produced.", "media_type"),
		InFlight:  r.Gauge("analyst_http_inflight_requests", "Requests currently being served."),
	}
}
