// Package inbox moves chat messages between the WhatsApp gateway and the bot.
//
// The gateway pushes JSON-encoded chat.Message envelopes onto an inbound
// queue (Redis list or RabbitMQ queue) and reads {to, text} replies from an
// outbound queue. Processor consumes the inbound side with a fixed number of
// workers, filters and de-duplicates messages, and hands each one to the
// message pipeline. Messages are never re-queued: a repeated deposit is worse
// than a lost reply.
package inbox
