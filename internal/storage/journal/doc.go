// Package journal persists the interaction journal: one row per handled chat
// message with the classified intent and the on-chain outcome. A JSON-lines
// file implementation backs local runs; the MySQL implementation applies the
// embedded migrations from deploy/migrations on startup.
package journal
