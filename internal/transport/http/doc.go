// Package http contains the chi HTTP handlers of the service: the client
// verification endpoint, the operator admin API, and the health endpoint.
// Handlers translate between wire payloads and the service layer; all
// authorization logic lives below them.
package http
