// Package worker holds the capability-tagged worker registry and invoker.
// A worker is a unit invokable to produce a text response to a prompt; its
// confidence score is a pure function of the response and the descriptor, so
// scoring is testable without any real completion service.
package worker
