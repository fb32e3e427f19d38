/*
Package fxapp builds upon https://godoc.org/go.uber.org/fx to provide a standardized functional driven application container.

Application Aspects

  - all running application instances are identified via a ULID instance ID
    - used for troubleshooting, e.g., querying for application instance logs, metrics, etc
  - application logging is structured
    - zerolog is used to provided structured JSON logging
    - log events are strongly typed, i.e., each event type is assigned a ULID event type ID
  - HTTP endpoints and middleware are contributed via fx value groups
    - gorilla/mux is used for routing
    - the HTTP server is only started if endpoints are registered
  - metrics
    - prometheus metrics are exposed via HTTP at /metrics
    - every HTTP request is counted and timed per route
  - health checks
    - health checks are registered with the health.Registry and run on a schedule
    - results are logged, exposed as gauges, and exposed via HTTP at /health
  - readiness and liveness probes
*/
package fxapp
