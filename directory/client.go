// Package directory implements the Maker's outbound half of the directory
// interface: advertise this Maker's address and fidelity proof, retried
// forever at heartbeat cadence until one send succeeds, grounded on
// breacharbiter.go's persistent retry-until-success idiom. The Post frame
// is its own length-prefixed encoding (see encodePost), not an rpcwire
// frame: it carries no message-type tag.
package directory

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// Client posts this Maker's advertisement to a configured directory server,
// optionally over a SOCKS5 proxy when Tor is enabled.
type Client struct {
	ServerAddress string
	SocksAddress  string // empty when not using Tor
	DialTimeout   time.Duration
}

// Post sends one advertisement frame over a fresh connection. Callers
// retry this at heartbeat cadence — Post itself makes
// exactly one attempt and returns its error untouched.
func (c *Client) Post(ctx context.Context, url string, fidelityProof []byte) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("directory: dial failed: %w", err)
	}
	defer conn.Close()

	if err := encodePost(conn, url, fidelityProof); err != nil {
		return fmt.Errorf("directory: post failed: %w", err)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialTimeout := c.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 20 * time.Second
	}

	if c.SocksAddress == "" {
		d := net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "tcp", c.ServerAddress)
	}

	socksDialer, err := proxy.SOCKS5("tcp", c.SocksAddress, nil, &net.Dialer{Timeout: dialTimeout})
	if err != nil {
		return nil, fmt.Errorf("directory: failed to build socks5 dialer: %w", err)
	}
	return socksDialer.Dial("tcp", c.ServerAddress)
}

// encodePost writes the length-prefixed Post frame directly, since its
// payload shape (a URL string and an opaque fidelity-proof blob) is simple
// enough not to warrant its own rpcwire.Message implementation.
func encodePost(conn net.Conn, url string, fidelityProof []byte) error {
	urlBytes := []byte(url)

	total := 4 + len(urlBytes) + 4 + len(fidelityProof)
	buf := make([]byte, 0, 4+total)
	buf = appendUint32(buf, uint32(total))
	buf = appendUint32(buf, uint32(len(urlBytes)))
	buf = append(buf, urlBytes...)
	buf = appendUint32(buf, uint32(len(fidelityProof)))
	buf = append(buf, fidelityProof...)

	_, err := conn.Write(buf)
	return err
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
