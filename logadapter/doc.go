// Package logadapter adapts zap and zerolog loggers to the key/value Logger
// interface accepted by framesock servers and connections.
package logadapter
