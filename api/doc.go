// Package api holds the request and response types of the NodeFlow
// editor API.
//
// # Endpoints
//
//	GET  /workflow                         active graph, else the saved document
//	POST /workflow                         save a document without loading it
//	POST /workflow/load                    load and install a document
//	POST /workflow/validate                dry-run load
//	GET  /workflow/version                 version of the active graph
//	GET  /workflow/nodes                   node type catalog
//	GET  /workflow/nodes/{id}/autocomplete field suggestions
//	GET  /workflow/executions              recent event traces
//	GET  /workflow/events                  notification stream (SSE)
//	GET  /workflow/events/ws               notification stream (WebSocket)
//
// Every JSON response uses the envelope {success, data, error, timestamp}.
//
// # Authentication
//
// When api keys are configured the editor endpoints require X-API-Key;
// with a JWT secret they accept Authorization: Bearer <token> instead.
package api
