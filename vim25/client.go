// Package vim25 implements a thin client for the vSphere Web Services
// (vim25) SOAP API: session management, property-collector traversal and
// pagination, and task polling. Higher-level convenience operations live
// in the vsphere package.
package vim25

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/smnsjas/go-vsphere/vim25/transport"
)

// DefaultIdleTimeout is assumed when the server does not advertise a
// session timeout.
const DefaultIdleTimeout = 900 * time.Second

// Client is a vim25 API client bound to one endpoint and one login
// session. A Client is not safe for concurrent calls; callers needing
// parallelism must use independent Client instances, each with its own
// session and cookie state.
type Client struct {
	endpoint  string
	username  string
	password  string
	transport *transport.HTTPTransport
	log       *slog.Logger
	clock     Clock

	content     *ServiceContent
	loggedIn    bool
	lastCall    time.Time
	idleTimeout time.Duration
	idleFetched bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger attaches a logger. Credentials are never logged.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the vim service at endpoint
// (https://host/sdk/vimService). No network traffic happens until the
// first call; the session is established lazily.
func NewClient(endpoint, username, password string, tr *transport.HTTPTransport, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		username:    username,
		password:    password,
		transport:   tr,
		clock:       realClock{},
		idleTimeout: DefaultIdleTimeout,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("session", uuid.New().String()[:8])
	return c
}

// Endpoint returns the vim service URL.
func (c *Client) Endpoint() string { return c.endpoint }

// ServiceContent retrieves (and caches) the well-known managed object
// references of the endpoint. This call needs no authentication.
func (c *Client) ServiceContent(ctx context.Context) (*ServiceContent, error) {
	if c.content != nil {
		return c.content, nil
	}

	body, err := c.invoke(ctx, NewMethod("RetrieveServiceContent", ServiceInstanceMOID))
	if err != nil {
		return nil, fmt.Errorf("retrieve service content: %w", err)
	}

	var resp struct {
		XMLName xml.Name       `xml:"Envelope"`
		Content ServiceContent `xml:"Body>RetrieveServiceContentResponse>returnval"`
	}
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, &ProtocolError{Op: "RetrieveServiceContent", Reason: "unparseable response", Cause: err}
	}
	if resp.Content.RootFolder.IsZero() || resp.Content.SessionManager.IsZero() {
		return nil, &ProtocolError{Op: "RetrieveServiceContent", Reason: "response missing rootFolder or sessionManager"}
	}

	c.content = &resp.Content
	return c.content, nil
}

// Login establishes a session with the stored credentials. It is called
// automatically by Call; explicit use is only needed to validate
// credentials up front.
func (c *Client) Login(ctx context.Context) error {
	sc, err := c.ServiceContent(ctx)
	if err != nil {
		return err
	}

	m := NewMethod("Login", sc.SessionManager).
		Elem("userName", c.username).
		Elem("password", c.password)

	if _, err := c.invoke(ctx, m); err != nil {
		var f *Fault
		if errors.As(err, &f) {
			// Bad credentials and missing privileges are both fatal;
			// surface the server's message verbatim.
			return &AuthError{Message: f.Message, Cause: f}
		}
		return fmt.Errorf("login: %w", err)
	}

	c.loggedIn = true
	c.lastCall = c.clock.Now()
	c.log.Info("logged in", "endpoint", c.endpoint, "user", c.username)

	c.fetchIdleTimeout(ctx)
	return nil
}

// Logout explicitly ends the session and reports a server-side failure.
// Local state and cookies are cleared either way, so a failed Logout never
// leaves a half-open session behind. Teardown paths should use Close,
// which swallows the error.
func (c *Client) Logout(ctx context.Context) error {
	if !c.loggedIn {
		return nil
	}
	c.loggedIn = false

	sc, err := c.ServiceContent(ctx)
	if err == nil {
		_, err = c.invoke(ctx, NewMethod("Logout", sc.SessionManager))
	}
	c.transport.ResetCookies()
	if err != nil {
		c.log.Warn("logout failed", "error", err)
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close is the teardown entry point: best-effort logout plus connection
// cleanup. Teardown failures are logged and swallowed.
func (c *Client) Close(ctx context.Context) {
	_ = c.Logout(ctx)
	c.transport.CloseIdleConnections()
}

// Call issues one vim25 method call with full session management: the
// session is established or refreshed up front, and a NotAuthenticated
// fault (session expired between the check and the server) triggers one
// transparent re-login and retry. A second authentication failure
// surfaces as *AuthError.
func (c *Client) Call(ctx context.Context, m *Method) ([]byte, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	body, err := c.invoke(ctx, m)
	if err == nil {
		c.lastCall = c.clock.Now()
		return body, nil
	}

	var f *Fault
	if !errors.As(err, &f) || !f.IsNotAuthenticated() {
		return nil, err
	}

	c.log.Debug("session expired mid-call, re-authenticating", "method", m.Name())
	c.loggedIn = false
	if lerr := c.Login(ctx); lerr != nil {
		return nil, lerr
	}

	body, err = c.invoke(ctx, m)
	if err == nil {
		c.lastCall = c.clock.Now()
		return body, nil
	}
	var f2 *Fault
	if errors.As(err, &f2) && f2.IsNotAuthenticated() {
		return nil, &AuthError{Message: f2.Message, Cause: f2}
	}
	return nil, err
}

// ensureSession logs in when there is no session, or proactively re-logs
// in when the cached idle timeout has elapsed since the last successful
// call, avoiding a round trip doomed to a NotAuthenticated fault.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.loggedIn && c.clock.Now().Sub(c.lastCall) < c.idleTimeout {
		return nil
	}
	if c.loggedIn {
		c.log.Debug("session idle past timeout, re-authenticating")
		c.loggedIn = false
	}
	return c.Login(ctx)
}

// invoke performs one call with no session management. Login, Logout and
// ServiceContent use it directly so an expired session can never recurse
// into another login attempt.
func (c *Client) invoke(ctx context.Context, m *Method) ([]byte, error) {
	env, err := m.Envelope()
	if err != nil {
		return nil, err
	}

	body, err := c.transport.Post(ctx, c.endpoint, SOAPAction, env)
	if err != nil {
		// vim25 delivers faults as HTTP 500; unwrap those into *Fault.
		var se *transport.StatusError
		if errors.As(err, &se) {
			if f, perr := ParseFault(se.Body); perr == nil && f != nil {
				return nil, fmt.Errorf("%s: %w", m.Name(), f)
			}
		}
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}

	if err := CheckFault(body); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return body, nil
}

// fetchIdleTimeout reads the server-advertised session timeout once. Any
// failure leaves the default in place.
func (c *Client) fetchIdleTimeout(ctx context.Context) {
	if c.idleFetched {
		return
	}
	c.idleFetched = true

	sc := c.content
	if sc == nil || sc.OptionManager.IsZero() {
		return
	}

	bag, err := c.Retrieve(ctx, Query{
		Type:       sc.OptionManager.Type,
		Object:     &sc.OptionManager,
		Properties: []string{"setting"},
	})
	if err != nil {
		c.log.Debug("session timeout not available, using default", "error", err)
		return
	}

	settings, ok := bag[sc.OptionManager]["setting"]
	if !ok {
		return
	}
	list, ok := settings.([]any)
	if !ok {
		return
	}
	for _, item := range list {
		opt, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if opt["key"] != "vpxd.session.timeout" {
			continue
		}
		val, ok := opt["value"].(string)
		if !ok {
			continue
		}
		minutes, err := strconv.Atoi(val)
		if err != nil || minutes <= 0 {
			continue
		}
		c.idleTimeout = time.Duration(minutes) * time.Minute
		c.log.Debug("session timeout from server", "timeout", c.idleTimeout)
		return
	}
}
