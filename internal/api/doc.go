// Package api exposes the webhook used by the WhatsApp gateway to push
// messages synchronously, together with the journal, health and metrics
// endpoints.
package api
