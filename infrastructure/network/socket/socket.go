// Package socket opens the UDP socket a voice connection runs over.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ExpeditedForwarding is the DSCP EF code point shifted into the TOS byte.
const ExpeditedForwarding = 0xb8

var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is the server address of a connection.
type Endpoint struct {
	Host string
	Port uint16
}

func NewEndpoint(host string, port uint16) (Endpoint, error) {
	e := Endpoint{Host: strings.TrimSpace(host), Port: port}
	if err := e.validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

func (e Endpoint) validate() error {
	if e.Host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidEndpoint)
	}
	// Zone specifiers are not supported.
	if strings.Contains(e.Host, "%") {
		return fmt.Errorf("%w: host %q has a zone specifier", ErrInvalidEndpoint, e.Host)
	}
	if e.Port == 0 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidEndpoint)
	}
	return nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// UDPDialer dials connected UDP sockets.
type UDPDialer struct{}

func (UDPDialer) Dial(ctx context.Context, e Endpoint) (net.Conn, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", e.String())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", e, err)
	}
	return conn, nil
}

// MarkExpedited sets the traffic class of voice packets on conn.
func MarkExpedited(conn net.Conn) error {
	udp, ok := conn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("cannot set traffic class on %T", conn)
	}
	remote, ok := udp.RemoteAddr().(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("socket is not connected")
	}
	if remote.IP.To4() != nil {
		return ipv4.NewConn(udp).SetTOS(ExpeditedForwarding)
	}
	return ipv6.NewConn(udp).SetTrafficClass(ExpeditedForwarding)
}
