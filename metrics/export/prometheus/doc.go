// Package prometheus renders goAdmin client metrics in Prometheus text format.
//
// [NewPrometheusExporter] accepts a [goAdmin.Client] and exposes an [http.Handler].
// Counter names are prefixed goadmin_*_total; the single histogram is
// goadmin_renewal_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
