package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// ClientName identifies loom connections on the NATS server.
const ClientName = "loom"

// NewClient connects to the NATS server at url, falling back to the NATS_URL
// environment variable and then nats.DefaultURL. Without options the connection
// is named "loom" and uses compression.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = os.Getenv("NATS_URL")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name(ClientName), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
