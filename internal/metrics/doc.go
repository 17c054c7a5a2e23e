/*
Package metrics exposes Prometheus instrumentation for the core event
loop, the IPC bootstrap, and the core's own status HTTP server.

# Metrics Endpoint

Metrics are served at /metrics in Prometheus text format by internal/httpd.

# Available Metrics

  - kismet_loop_iteration_duration_seconds: one select/poll/timer pass (histogram)
  - kismet_loop_state: current event loop state (gauge, one-hot by label)
  - kismet_pollable_count: registered pollables this iteration (gauge)
  - kismet_select_timeouts_total / kismet_select_errors_total (counters)
  - kismet_registry_fatal_queue_depth: fatal message queue size (gauge)
  - kismet_sigchild_reaped_total: child exits observed (counter)
  - kismet_ipc_helper_restarts_total / kismet_ipc_bootstrap_duration_seconds
  - kismet_http_requests_total / kismet_http_request_duration_seconds

kismet_ipc_helper_restarts_total stays at zero: the capture helper is not
restarted after it exits.

None of these metrics feed back into loop or registry decisions; they
are purely observational.
*/
package metrics
