package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the scrape handler for the collector's registry.
//
// OpenMetrics encoding is enabled; collection errors are logged and the
// remaining metrics are still served.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
			ErrorLog:          slogErrorLog{slog.Default().With("component", "metrics")},
		},
	)
}

// HandlerWithOptions returns a scrape handler with custom options.
func (c *Collector) HandlerWithOptions(opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(c.registry, opts)
}

// slogErrorLog adapts slog to promhttp.Logger.
type slogErrorLog struct {
	logger *slog.Logger
}

func (l slogErrorLog) Println(v ...any) {
	l.logger.Warn("metrics collection error", "detail", v)
}
