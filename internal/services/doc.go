// Package services implements the business layer between the HTTP handlers
// and the analytics core. It owns run coordination and result retention,
// keeping the handlers free of any pipeline knowledge.
//
// # Architecture
//
// Services follow these principles:
//
//	1. Context propagation for cancellation and tracing
//	2. Dependency injection for loose coupling
//	3. Sentinel errors that handlers translate to API responses
//	4. Domain-focused methods that encapsulate business rules
//
// # Available Services
//
//	- ReportService: runs the concentration pipeline, serializes runs, and
//	  retains the two most recent results for the read endpoints
//	- HealthService: health, readiness, and liveness probes plus system stats
//
// # Error Handling
//
// Services return the sentinel errors declared in errors.go; handlers match
// them with errors.Is and map them to RFC 7807 problem responses:
//
//	record, err := service.Latest()
//	if errors.Is(err, services.ErrNoRuns) {
//	    // 404 report not found
//	}
//
// # Testing
//
// Services are tested against an in-memory cache and a stub provider; no
// HTTP or filesystem is involved except where a test states it.
package services
