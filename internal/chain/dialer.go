package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// EndpointDialer connects to the first reachable endpoint in configured
// order. http(s) URLs get an HTTPConn, ws(s) URLs a WSConn.
type EndpointDialer struct {
	endpoints []string
	client    *http.Client
	log       *zap.Logger
}

// DialerOption configures an EndpointDialer.
type DialerOption func(*EndpointDialer)

// WithHTTPClient overrides the client used for http(s) endpoints.
func WithHTTPClient(c *http.Client) DialerOption {
	return func(d *EndpointDialer) { d.client = c }
}

// WithLogger sets the logger used to report failed endpoints.
func WithLogger(l *zap.Logger) DialerOption {
	return func(d *EndpointDialer) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDialer validates the endpoint list.
func NewDialer(endpoints []string, opts ...DialerOption) (*EndpointDialer, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: none configured", ErrNoEndpoint)
	}
	for _, ep := range endpoints {
		if _, err := scheme(ep); err != nil {
			return nil, err
		}
	}
	d := &EndpointDialer{
		endpoints: endpoints,
		client:    &http.Client{Timeout: DefaultTimeout},
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Endpoints returns the configured endpoints in failover order.
func (d *EndpointDialer) Endpoints() []string {
	return append([]string(nil), d.endpoints...)
}

// Dial returns a connection to the first endpoint that accepts one.
func (d *EndpointDialer) Dial(ctx context.Context) (Conn, error) {
	var errs []error
	for _, ep := range d.endpoints {
		conn, err := d.dialOne(ctx, ep)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.log.Warn("chain endpoint unavailable", zap.String("endpoint", ep), zap.Error(err))
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoEndpoint, errors.Join(errs...))
}

// dialOne connects to ep. HTTP has no handshake, so an HTTP endpoint must
// answer a header request within DialCheckTimeout before it is handed out.
func (d *EndpointDialer) dialOne(ctx context.Context, ep string) (Conn, error) {
	conn, err := d.open(ctx, ep)
	if err != nil {
		return nil, err
	}
	hc, ok := conn.(*HTTPConn)
	if !ok {
		return conn, nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, DialCheckTimeout)
	defer cancel()
	if _, err := hc.BlockNumber(checkCtx); err != nil {
		hc.Close() //nolint:errcheck
		return nil, fmt.Errorf("endpoint %s: %w", ep, err)
	}
	return hc, nil
}

func (d *EndpointDialer) open(ctx context.Context, ep string) (Conn, error) {
	s, err := scheme(ep)
	if err != nil {
		return nil, err
	}
	switch s {
	case "ws", "wss":
		return DialWS(ctx, ep)
	default:
		return NewHTTPConn(ep, d.client), nil
	}
}

func scheme(ep string) (string, error) {
	u, err := url.Parse(ep)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", ep, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return u.Scheme, nil
	}
	return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", ep, u.Scheme)
}
