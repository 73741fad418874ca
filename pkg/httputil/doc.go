// Package httputil provides HTTP utilities for standardized request and
// response handling.
//
// # Errors
//
// Service errors are mapped by class:
//
//	if err != nil {
//		httputil.WriteServiceError(w, r, err)
//		return
//	}
//
// Not found is 404, validation is 400, forbidden is 403 with the fixed body
// {"error":"insufficient permissions"}, an exceeded plan limit is 429 with
// {"error":"quota_exceeded"} and anything else is a logged 500.
//
// # Request Parsing
//
//	var req AssignPropertiesRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
package httputil
