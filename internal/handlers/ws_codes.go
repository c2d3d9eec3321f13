// internal/handlers/ws_codes.go
package handlers

// Custom websocket close codes used by the duel handler. These give clients
// a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	InvalidSessionError = 3001 // Guest session token was invalid and could not be replaced.
)
