package gather

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fexd12/prometheus-tenda-exporter/pkg/tenda"
)

const (
	defaultTimeout               = 15 * time.Second
	defaultDialTimeout           = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second

	// maxSessionRetries bounds how often a protected call logs in again after
	// the router answered with something other than JSON.
	maxSessionRetries = 1

	maxBodySize = 4 << 20
)

type settings struct {
	timeout               time.Duration
	dialTimeout           time.Duration
	responseHeaderTimeout time.Duration
	source                tenda.DeviceSource
}

// Option adjusts a Gatherer at construction.
type Option func(*settings)

// WithTimeout bounds a whole request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithDialTimeout bounds establishing the TCP connection.
func WithDialTimeout(d time.Duration) Option {
	return func(s *settings) { s.dialTimeout = d }
}

// WithResponseHeaderTimeout bounds the wait for the router's response headers.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(s *settings) { s.responseHeaderTimeout = d }
}

// WithDeviceSource selects which API ConnectedDevices queries.
func WithDeviceSource(src tenda.DeviceSource) Option {
	return func(s *settings) { s.source = src }
}

// Gatherer talks to one router over its management API. The session cookies
// are captured on login and sent with every later request until the router
// stops honoring them.
type Gatherer struct {
	host     string
	password string

	endpoint *url.URL
	source   tenda.DeviceSource

	// mu serializes protected calls so that a session is never replaced while
	// another request is using it.
	mu      *sync.Mutex
	session []*http.Cookie
	client  *http.Client
}

func New(host, password string, opts ...Option) (*Gatherer, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("router host is required")
	}

	endpoint, err := url.Parse("http://" + host)
	if err != nil {
		return nil, errors.Wrap(err, "parse router host")
	}
	if endpoint.Host != host {
		return nil, errors.Errorf("invalid router host %q", host)
	}

	s := settings{
		timeout:               defaultTimeout,
		dialTimeout:           defaultDialTimeout,
		responseHeaderTimeout: defaultResponseHeaderTimeout,
		source:                tenda.SourceOnlineList,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Gatherer{
		host:     host,
		password: password,
		endpoint: endpoint,
		source:   s.source,

		mu: &sync.Mutex{},

		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: s.dialTimeout}).DialContext,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, //nolint:gosec // LAN router with a self-signed certificate
				},
				ResponseHeaderTimeout: s.responseHeaderTimeout,
			},
			// The router redirects to its login page once a session expires;
			// that page must reach the decoder rather than be followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: s.timeout,
		},
	}, nil
}

func (g *Gatherer) Host() string {
	return g.host
}

// Authenticated reports whether a session is currently held.
func (g *Gatherer) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.session != nil
}

// Login submits the password and keeps whatever cookies the router sets. The
// router gives no usable success signal here: a wrong password only shows up
// on the next protected call.
func (g *Gatherer) Login(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.login(ctx)
}

func (g *Gatherer) login(ctx context.Context) error {
	log := logrus.WithFields(logrus.Fields{
		"action": "login",
		"host":   g.host,
	})

	g.session = nil

	data, err := json.Marshal(tenda.NewAuthRequest(g.password))
	if err != nil {
		return errors.Wrap(err, "encode login request")
	}

	req, err := g.newRequest(ctx, http.MethodPost, tenda.ModulePath, data)
	if err != nil {
		return err
	}

	log.Debug("submitting credentials")
	resp, err := g.client.Do(req)
	if err != nil {
		log.WithError(err).Error("unable to login")
		return &ConnectivityError{Op: "login", Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()

	g.session = append([]*http.Cookie{}, resp.Cookies()...)

	log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"cookies": len(g.session),
	}).Debug("session updated")

	return nil
}

// NetworkStatus returns the system, network and traffic sections as decoded
// JSON, logging in first if there is no session.
func (g *Gatherer) NetworkStatus(ctx context.Context) (tenda.NetworkStatus, error) {
	var status tenda.NetworkStatus

	err := g.call(ctx, "getNetworkStatus", http.MethodPost, tenda.ModulePath, tenda.StatusRequest{},
		func(data []byte) error {
			status = nil
			if err := json.Unmarshal(data, &status); err != nil {
				return err
			}
			if status == nil {
				return errors.New("empty status response")
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	return status, nil
}

// ConnectedDevices lists the clients currently associated with the router,
// keyed by MAC address.
func (g *Gatherer) ConnectedDevices(ctx context.Context) (tenda.Devices, error) {
	var devices tenda.Devices

	var err error
	switch g.source {
	case tenda.SourceQoSUserList:
		err = g.call(ctx, "getQosUserList", http.MethodPost, tenda.ModulePath, tenda.NewQoSUserListRequest(),
			func(data []byte) error {
				var resp tenda.QoSUserListResponse
				if err := json.Unmarshal(data, &resp); err != nil {
					return err
				}
				devices = tenda.NormalizeDevices(resp.GetQosUserList)
				return nil
			})
	default:
		err = g.call(ctx, "getOnlineList", http.MethodGet, tenda.OnlineListPath, nil,
			func(data []byte) error {
				var entries []interface{}
				if err := json.Unmarshal(data, &entries); err != nil {
					return err
				}
				devices = tenda.NormalizeDevices(entries)
				return nil
			})
	}
	if err != nil {
		return nil, err
	}

	return devices, nil
}

// call performs a protected request and hands the body to decode. A body that
// does not decode means the router dropped the session: it is cleared and the
// request is repeated after a fresh login, at most maxSessionRetries times.
func (g *Gatherer) call(ctx context.Context, action, method, path string, payload interface{}, decode func([]byte) error) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "encode %s request", action)
		}
	}

	log := logrus.WithFields(logrus.Fields{
		"action": action,
		"host":   g.host,
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	var expired *sessionExpiredError
	for attempt := 0; attempt <= maxSessionRetries; attempt++ {
		if g.session == nil {
			log.Debug("no session, logging in")
			if err := g.login(ctx); err != nil {
				return err
			}
		}

		err := g.fetch(ctx, log, action, method, path, body, decode)
		if err == nil {
			return nil
		}
		if !errors.As(err, &expired) {
			return err
		}

		log.WithError(err).WithField("attempt", attempt+1).Info("session rejected, clearing")
		g.session = nil
	}

	return &ProtocolError{Op: action, Err: expired.Err}
}

func (g *Gatherer) fetch(ctx context.Context, log *logrus.Entry, action, method, path string, body []byte, decode func([]byte) error) error {
	req, err := g.newRequest(ctx, method, path, body)
	if err != nil {
		log.Error("unable to prepare request")
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		log.WithError(err).Error("unable to complete request")
		return &ConnectivityError{Op: action, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &ConnectivityError{Op: action, Err: err}
	}
	log.WithField("status", resp.StatusCode).Tracef("%s", data)

	if err := decode(data); err != nil {
		return &sessionExpiredError{Err: err}
	}
	return nil
}

func (g *Gatherer) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	u := *g.endpoint
	u.Path = path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errors.Wrap(err, "prepare request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	for _, cookie := range g.session {
		req.AddCookie(cookie)
	}

	return req, nil
}
