// Package bot wires the classifier and the dispatcher into the per-message
// pipeline and records what happened to every message.
package bot
