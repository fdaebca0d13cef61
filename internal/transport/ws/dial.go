package ws

import (
	"context"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"
)

// Dial connects to a host at rawURL (ws:// or wss://), retrying with backoff
// until it succeeds, ctx ends, or cfg.MaxDialAttempts is reached. The
// returned Conn is already reading.
func Dial(ctx context.Context, rawURL string, cfg transport.Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	wsCfg, err := clientConfig(rawURL, cfg)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		wsConn, err := wsCfg.DialContext(dialCtx)
		cancel()
		if err == nil {
			c := newConn(wsConn, cfg, "")
			go c.run()
			log.Info().Str("url", rawURL).Int("attempt", attempt).Msg("ws connected")
			return c, nil
		}
		log.Warn().Err(err).Str("url", rawURL).Int("attempt", attempt).Msg("ws dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !cfg.ShouldRetry(attempt) {
			return nil, err
		}
		if err := transport.SleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func clientConfig(rawURL string, cfg transport.Config) (*websocket.Config, error) {
	loc, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return nil, err
	}
	wsCfg, err := websocket.NewConfig(rawURL, originFor(loc))
	if err != nil {
		return nil, err
	}
	if wsCfg.Location.Scheme == "wss" && !cfg.TLS.Enabled {
		cfg.TLS.Enabled = true
	}
	tlsCfg, err := cfg.ClientTLSConfig(hostPort(wsCfg.Location))
	if err != nil {
		return nil, err
	}
	wsCfg.TlsConfig = tlsCfg
	wsCfg.Dialer = &net.Dialer{Timeout: cfg.DialTimeout}
	return wsCfg, nil
}

// originFor names the host itself as the origin so same-host checks pass.
func originFor(u *url.URL) string {
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "wss" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
