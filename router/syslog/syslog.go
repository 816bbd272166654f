// Package syslog delivers encoded events to a syslog style collector over
// UDP, TCP or TLS, one message per event.
package syslog

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/processor"
)

// Wire protocols accepted by the destination.
const (
	ProtocolUDP = "UDP"
	ProtocolTCP = "TCP"
	ProtocolTLS = "TLS"
)

// Config holds the destination settings.
type Config struct {
	Server        string
	Port          int
	Protocol      string
	CACertificate string
	DialTimeout   time.Duration
}

// ConfigFromConf reads the destination settings from conf.
func ConfigFromConf(conf *config.Config) Config {
	return Config{
		Server:        conf.GetString("Router.Syslog.server", ""),
		Port:          conf.GetInt("Router.Syslog.port", 514),
		Protocol:      strings.ToUpper(conf.GetString("Router.Syslog.protocol", ProtocolUDP)),
		CACertificate: conf.GetString("Router.Syslog.caCertificate", ""),
		DialTimeout:   conf.GetDuration("Router.Syslog.dialTimeout", 30, time.Second),
	}
}

// Validate reports the first configuration violation it finds.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("syslog server must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("syslog port %d is outside 1-65535", c.Port)
	}
	switch c.Protocol {
	case ProtocolUDP, ProtocolTCP:
	case ProtocolTLS:
		if strings.TrimSpace(c.CACertificate) == "" {
			return errors.New("TLS protocol requires a CA certificate")
		}
		if _, err := caCertPool(c.CACertificate); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported syslog protocol %q", c.Protocol)
	}
	return nil
}

// Destination writes events to the configured server. The connection is
// dialed lazily on the first send and dropped after a write failure so that
// the next attempt redials.
type Destination struct {
	conf      Config
	log       logger.Logger
	tlsConfig *tls.Config

	connMu sync.Mutex
	conn   net.Conn
}

// NewDestination validates conf and builds the destination without
// connecting.
func NewDestination(conf Config, log logger.Logger) (*Destination, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	d := &Destination{conf: conf, log: log.Child("syslog")}
	if conf.Protocol == ProtocolTLS {
		pool, err := caCertPool(conf.CACertificate)
		if err != nil {
			return nil, err
		}
		d.tlsConfig = &tls.Config{RootCAs: pool}
	}
	return d, nil
}

// Send writes events in order. On a write failure the connection is dropped
// and the number of events already written is returned so the caller can
// retry the remainder.
func (d *Destination) Send(ctx context.Context, events []processor.EncodedEvent) (int, error) {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if err := d.connect(ctx); err != nil {
		return 0, err
	}
	for i, event := range events {
		if _, err := d.conn.Write(d.frame(event)); err != nil {
			d.dropConn()
			return i, fmt.Errorf("writing event to %s: %w", d.addr(), err)
		}
	}
	return len(events), nil
}

// Ping dials the server and closes the connection right away, leaving any
// established send connection untouched.
func (d *Destination) Ping(ctx context.Context) error {
	conn, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", d.addr(), err)
	}
	return conn.Close()
}

// Close drops the send connection if one is established.
func (d *Destination) Close() error {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *Destination) frame(event processor.EncodedEvent) []byte {
	payload := event.Line
	if payload == "" {
		payload = string(event.Envelope)
	}
	if d.conf.Protocol == ProtocolUDP {
		return []byte(payload)
	}
	// stream transports separate messages with a line break
	return append([]byte(payload), '\n')
}

func (d *Destination) connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}
	conn, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", d.addr(), err)
	}
	d.log.Debugn("connected", logger.NewStringField("addr", d.addr()),
		logger.NewStringField("protocol", d.conf.Protocol))
	d.conn = conn
	return nil
}

func (d *Destination) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.conf.DialTimeout}
	if d.conf.Protocol == ProtocolTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: d.tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", d.addr())
	}
	network := "udp"
	if d.conf.Protocol == ProtocolTCP {
		network = "tcp"
	}
	return dialer.DialContext(ctx, network, d.addr())
}

func (d *Destination) dropConn() {
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

func (d *Destination) addr() string {
	return net.JoinHostPort(d.conf.Server, strconv.Itoa(d.conf.Port))
}

func caCertPool(certificate string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(certificate)) {
		return nil, errors.New("no usable CA certificate in the configured PEM")
	}
	return pool, nil
}
