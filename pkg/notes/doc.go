// Package notes stores notes as individual Turtle documents inside a Solid
// container and lists them back through the container's ldp:contains index.
//
// Every request carries the DPoP-bound access token and a fresh proof signed
// with the token's own key. Writes are idempotent PUTs, so creating a note
// with an existing id overwrites it.
package notes
