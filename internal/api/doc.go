// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

/*
Package api exposes Tracelane over HTTP using the chi router.

Every JSON response uses one envelope:

	{
	  "success": true,
	  "data": {...},
	  "error": {"code": "...", "message": "...", "details": ..., "request_id": "..."},
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 3}
	}

# Routes

Under /api/v1:

	POST /cases/{caseID}/files                     submit an ingestion job (202)
	POST /cases/{caseID}/files/validate-readers    reader id preview, no writes
	POST /files/preview                            columns and first rows
	GET  /tasks/{taskID}                           poll a background task
	GET  /tasks/{taskID}/stream                    websocket progress stream
	POST /cases/{caseID}/cross-source              cross-source match
	POST /cases/{caseID}/cross-source/async        background cross-source match (202)
	GET  /cases/{caseID}/external/sources          external source names
	GET  /cases/{caseID}/external/fields           external attribute keys
	POST /correlation/multi-case                   plates seen in several cases
	POST /cases/{caseID}/shadow                    shadow vehicle detection

Unversioned:

	GET /health    liveness and database ping
	GET /metrics   Prometheus exposition

# Middleware

Applied globally in order: request id bridge to the logging context,
RealIP, Recoverer, CORS. The /api/v1 group adds IP rate limiting, security
headers and Prometheus instrumentation keyed by route pattern.

# Errors

Validation failures return 400 VALIDATION_FAILED with field details.
Unknown tasks return 404. Store failures return 500 DATABASE_ERROR and are
logged with the request id; the client only sees a generic message.

Identity and permissions are enforced in front of this service.
*/
package api
