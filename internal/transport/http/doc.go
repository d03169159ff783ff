// Package http implements the HTTP request handlers of the gamepulse API.
// It provides a thin layer between HTTP transport and business logic, following
// the clean architecture principle of keeping handlers focused solely on HTTP concerns.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - convert service errors to HTTP responses
//	4. No business logic - all logic belongs in the service layer
//	5. Consistent patterns - standardized request/response handling
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Pipeline
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handlers
//
// The package splits the surface by resource:
//
//	- ReportHandler: POST /api/v1/reports/concentration runs the pipeline
//	  synchronously; GET /api/v1/reports/latest and /deltas read stored runs
//	- MarketHandler: GET /api/v1/groups, /api/v1/entities/{id}, and
//	  /api/v1/cache/stats read the latest run
//	- HealthHandler: /healthz probes plus version and system stats
//
// # Error Handling
//
// Service sentinel errors are matched with errors.Is and translated into
// API errors; everything else goes through the shared ErrorHandler. All
// error bodies follow RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/report/not-found",
//	    "title": "Not Found",
//	    "status": 404,
//	    "detail": "No report has been generated yet",
//	    "instance": "/api/v1/reports/latest"
//	}
//
// # Middleware Integration
//
// Handlers work with these middleware:
//
//	- RequestID: Adds unique request ID for tracing
//	- StructuredLogger: Structured logging with slog
//	- Recoverer: Handles panics gracefully
//	- CORS: Configures cross-origin requests
//
// # Testing
//
// Handlers are tested using httptest:
//
//	- Mock service dependencies
//	- Test various HTTP scenarios
//	- Verify error responses
//	- Check middleware integration
package http
