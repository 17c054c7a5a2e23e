/*
Package middleware provides the two HTTP middleware components the core
status server uses: request ID tracking and Prometheus instrumentation.

Key Components:

  - Request ID: takes X-Request-ID from the request or generates a UUID v4,
    echoes it in the response header, and stores it in the request context
    (RequestIDKey, plus internal/logging's request and correlation ids)
  - Prometheus Metrics: counts each request and observes its duration in
    kismet_http_requests_total and kismet_http_request_duration_seconds

The package has no compression, CORS, rate-limiting, authentication or
latency-percentile middleware.

Middleware Stack:

	http.HandleFunc("/status",
	    middleware.PrometheusMetrics( // Layer 1: Metrics
	        middleware.RequestID(     // Layer 2: Request tracking
	            handler,              // Layer 3: Business logic
	        ),
	    ),
	)

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Thread Safety:

Both middleware components are safe for concurrent use:
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use the client library's concurrent-safe collectors

See Also:

  - internal/httpd: the status server these wrap
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
