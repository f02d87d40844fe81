// Package timeutil renders note timestamps for the list table, e.g.
// "3 hours ago" for a note modified this afternoon or "2026-01-04" for one
// untouched for more than a month.
package timeutil
