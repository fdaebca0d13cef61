package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/net/websocket"
)

var (
	ErrPeerIdentityRequired = errors.New("ws: verified peer identity required")
	ErrOriginNotAllowed     = errors.New("ws: origin not allowed")
)

// Host accepts guest websocket connections.
type Host struct {
	cfg       transport.Config
	onConnect func(*Conn)

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
}

// NewHost returns a host that calls onConnect once per accepted guest. The
// connection stays open until onConnect's Conn is closed or the guest leaves;
// onConnect should not block.
func NewHost(cfg transport.Config, onConnect func(*Conn)) (*Host, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return &Host{
		cfg:       cfg,
		onConnect: onConnect,
		conns:     make(map[*Conn]struct{}),
	}, nil
}

// ServeHTTP upgrades r to a websocket connection.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server := websocket.Server{
		Handshake: h.checkOrigin,
		Handler:   h.handle,
	}
	server.ServeHTTP(w, r)
}

// checkOrigin accepts clients that send no Origin (non-browser guests),
// same-host origins, and origins listed in cfg.AllowedOrigins.
func (h *Host) checkOrigin(cfg *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(cfg, r)
	if err != nil {
		return err
	}
	cfg.Origin = origin
	if origin == nil || strings.EqualFold(origin.Host, r.Host) {
		return nil
	}
	want := strings.ToLower(origin.Scheme + "://" + origin.Host)
	for _, allowed := range h.cfg.AllowedOrigins {
		allowed = strings.ToLower(strings.TrimRight(strings.TrimSpace(allowed), "/"))
		if allowed == "*" || allowed == want {
			return nil
		}
	}
	log.Warn().Str("remote", r.RemoteAddr).Str("origin", origin.String()).Msg("ws guest rejected: origin")
	return fmt.Errorf("%w: %s", ErrOriginNotAllowed, origin)
}

func (h *Host) handle(wsConn *websocket.Conn) {
	peer := ""
	if r := wsConn.Request(); r != nil && r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		peer = transport.PeerIdentity(r.TLS.PeerCertificates[0])
	}
	mutual := h.cfg.TLS.Mutual || h.cfg.SecurityMode == transport.SecurityModeProduction
	if mutual && peer == "" {
		log.Warn().Str("remote", wsConn.Request().RemoteAddr).Err(ErrPeerIdentityRequired).Msg("ws guest rejected")
		_ = wsConn.Close()
		return
	}

	c := newConn(wsConn, h.cfg, peer)
	if !h.track(c) {
		_ = c.Close()
		return
	}
	defer h.untrack(c)

	log.Info().Str("remote", c.RemoteAddr()).Str("peer", peer).Msg("ws guest connected")
	if h.onConnect != nil {
		h.onConnect(c)
	}
	c.run()
	log.Info().Str("remote", c.RemoteAddr()).Msg("ws guest disconnected")
}

// Conns returns the number of open guest connections.
func (h *Host) Conns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every tracked connection and rejects new ones.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (h *Host) track(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Host) untrack(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
