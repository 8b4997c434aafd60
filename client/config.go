package client

import (
	"net/http"

	"github.com/decred/slog"
)

// Config assembles a coordinator client.
type Config struct {
	// URL is the coordinator base URL, e.g. http://127.0.0.1:8090.
	URL string

	// Signer provides the player identity and the consent signatures
	// attached to every submission. A client without a signer can only
	// read state and watch the event feed.
	Signer *Signer

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	Log slog.Logger
}
