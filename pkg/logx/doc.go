// Package logx is the translator's structured logging: a small value-type
// Logger over zerolog, a Service that can swap writers at runtime, and an
// optional mirror of warnings into the Slack ops channel.
package logx
