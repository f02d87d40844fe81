// Package api serves notes over HTTP.
//
// # Endpoints
//
//   - GET /health - liveness probe with the build version
//   - POST /notes/ - create a note, 201 {message, note}
//   - GET /notes/ - list notes, 200 {total, notes, failed}
//   - PUT /notes/{id} - replace a note, 200 {message, note}
//   - DELETE /notes/{id} - delete a note, 200 {message, id}
//
// # Error Handling
//
// Errors return {"error": message}. Invalid input answers 422 with the
// rejected fields, a failed pod login answers 502, anything else 500 with a
// generic message. Details are logged, not exposed.
package api
