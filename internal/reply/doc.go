// Package reply turns a classified intent plus the outcome of the dispatched
// action into the text sent back to the user.
package reply
