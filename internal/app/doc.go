// Package app wires the application together: configuration, logging,
// metrics, the token lifecycle engine with its snapshot persistence, and the
// HTTP router. It owns server startup and graceful shutdown, including the
// final token snapshot written before exit.
package app
