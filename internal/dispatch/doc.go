// Package dispatch maps a classification result to at most one gateway call
// and the reply text describing what happened.
package dispatch
