// Package http contains the HTTP handlers for the token service.
//
// Two surfaces live here. The access surface (/activate, /heartbeat,
// /hook_config, /sync_tokens) is what licensed client installations call;
// its request and response shapes are a compatibility contract with the
// deployed addon and must not change. The admin surface (/api/tokens/...)
// is operator tooling and uses the structured APIError envelope.
package http
