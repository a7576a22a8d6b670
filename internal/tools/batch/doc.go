// Package batch runs a tool operation over several event UIDs.
//
// Tools such as caldav_delete_event accept either a single UID or a list.
// ParseStringOrArray normalizes the argument, Process runs the operation
// once per UID and Summary reports the partial failures.
package batch
