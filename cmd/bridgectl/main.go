package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/bridgectl/internal/bridge"
	"github.com/danmuck/bridgectl/internal/codec"
	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/transport/stdio"
	"github.com/danmuck/bridgectl/internal/transport/ws"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	name       string
	codec      string
	timeout    time.Duration
	addr       string
	url        string
	op         string
	payload    string
	role       string
	command    []string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	mode := os.Args[1]
	opts, err := parseFlags(mode, os.Args[2:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fatalf("%v", err)
	}

	role := string(bridge.RoleHost)
	if mode == "guest" || (mode == "stdio" && opts.role != string(bridge.RoleHost)) {
		role = string(bridge.RoleGuest)
	}
	observability.InitLogger("bridgectl", role)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	applyFlags(&cfg, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "host":
		err = runHost(ctx, cfg)
	case "guest":
		err = runGuest(ctx, cfg, opts.op, opts.payload, os.Stdout)
	case "stdio":
		err = runStdio(ctx, cfg, bridge.Role(role))
	case "spawn":
		err = runSpawn(ctx, cfg, opts.command, opts.op, opts.payload, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Str("mode", mode).Msg("bridgectl stopped")
	}
}

func parseFlags(mode string, args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("bridgectl "+mode, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to config.toml")
	fs.StringVar(&opts.name, "name", "", "channel name used in logs")
	fs.StringVar(&opts.codec, "codec", "", "wire codec: json | frame | zstd | zstd+frame")
	fs.DurationVar(&opts.timeout, "timeout", 0, "request timeout")
	switch mode {
	case "host":
		fs.StringVar(&opts.addr, "addr", "", "listen address")
	case "guest", "spawn":
		if mode == "guest" {
			fs.StringVar(&opts.url, "url", "", "host websocket url")
		}
		fs.StringVar(&opts.op, "op", opPing, "operation to invoke")
		fs.StringVar(&opts.payload, "payload", "", "JSON request payload")
	case "stdio":
		fs.StringVar(&opts.role, "role", string(bridge.RoleGuest), "bridge role: host | guest")
	default:
		usage()
		return options{}, fmt.Errorf("unknown mode %q (supported: host, guest, stdio, spawn)", mode)
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if mode == "spawn" {
		opts.command = fs.Args()
		if len(opts.command) == 0 {
			return options{}, fmt.Errorf("spawn: command required after flags")
		}
	}
	return opts, nil
}

func applyFlags(cfg *config, opts options) {
	if opts.name != "" {
		cfg.Name = opts.name
	}
	if opts.codec != "" {
		cfg.Codec = opts.codec
	}
	if opts.timeout != 0 {
		cfg.Timeout = opts.timeout
	}
	if opts.addr != "" {
		cfg.ListenAddr = opts.addr
	}
	if opts.url != "" {
		cfg.URL = opts.url
	}
}

// newChannel builds a channel with the configured codec. The returned func
// releases codec resources after the channel is closed.
func newChannel(adapter bridge.Adapter, cfg config, role bridge.Role, name string) (*bridge.Channel, func(), error) {
	cd, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := cd.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if name == "" {
		name = cfg.Name
	}
	ch, err := bridge.New(adapter,
		bridge.WithRole(role),
		bridge.WithName(name),
		bridge.WithCodec(cd),
		bridge.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	registerDemo(ch)
	return ch, release, nil
}

func runHost(ctx context.Context, cfg config) error {
	if _, err := codec.ByName(cfg.Codec); err != nil {
		return err
	}
	host, err := ws.NewHost(cfg.Transport, func(conn *ws.Conn) {
		ch, release, err := newChannel(conn, cfg, bridge.RoleHost, conn.RemoteAddr())
		if err != nil {
			log.Error().Err(err).Str("remote", conn.RemoteAddr()).Msg("bridge channel setup failed")
			_ = conn.Close()
			return
		}
		if err := announce(ch); err != nil {
			log.Warn().Err(err).Msg("announce failed")
		}
		go func() {
			select {
			case <-conn.Done():
			case <-ctx.Done():
			}
			_ = ch.Close()
			_ = conn.Close()
			release()
		}()
	})
	if err != nil {
		return err
	}
	tlsCfg, err := cfg.Transport.ServerTLSConfig()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, host)
	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: cfg.Transport.HandshakeTimeout,
	}}
	if cfg.MetricsAddr == "" {
		mux.Handle("/metrics", observability.Handler())
	} else {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", observability.Handler())
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: cfg.Transport.HandshakeTimeout,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Bool("tls", srv.TLSConfig != nil).Msg("bridgectl host listening")
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := host.Close()
		for _, srv := range servers {
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}
		log.Info().Msg("bridgectl host stopped")
		return err
	})
	return g.Wait()
}

func runGuest(ctx context.Context, cfg config, op, payload string, out io.Writer) error {
	body, err := parsePayload(payload)
	if err != nil {
		return err
	}

	conn, err := ws.Dial(ctx, cfg.URL, cfg.Transport)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, release, err := newChannel(conn, cfg, bridge.RoleGuest, "")
	if err != nil {
		return err
	}
	defer release()
	defer ch.Close()
	if err := announce(ch); err != nil {
		log.Warn().Err(err).Msg("announce failed")
	}
	return invoke(ctx, ch, op, body, out)
}

// runSpawn starts command as a child speaking the bridge over its stdio,
// invokes op on it from the host role, and prints the result.
func runSpawn(ctx context.Context, cfg config, command []string, op, payload string, out io.Writer) error {
	body, err := parsePayload(payload)
	if err != nil {
		return err
	}
	proc, err := stdio.Spawn(ctx, cfg.Transport, command[0], command[1:]...)
	if err != nil {
		return err
	}
	ch, release, err := newChannel(proc, cfg, bridge.RoleHost, command[0])
	if err != nil {
		_, _ = proc.Wait()
		return err
	}
	defer release()

	callErr := invoke(ctx, ch, op, body, out)
	_ = ch.Close()
	code, waitErr := proc.Wait()
	if code != 0 {
		log.Warn().Int32("exit_code", code).Str("stderr", proc.Stderr()).Msg("child exited")
	}
	if callErr != nil {
		return callErr
	}
	return waitErr
}

func invoke(ctx context.Context, ch *bridge.Channel, op string, body json.RawMessage, out io.Writer) error {
	start := time.Now()
	result, err := ch.Request(ctx, op, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info().Str("operation", op).Dur("elapsed", time.Since(start)).Msg("request complete")
	_, err = fmt.Fprintln(out, string(result))
	return err
}

func parsePayload(payload string) (json.RawMessage, error) {
	p := strings.TrimSpace(payload)
	if p == "" {
		return nil, nil
	}
	if !json.Valid([]byte(p)) {
		return nil, fmt.Errorf("payload is not valid JSON: %q", p)
	}
	return json.RawMessage(p), nil
}

// runStdio serves the bridge over stdin/stdout until the peer closes the
// stream or the process is signalled.
func runStdio(ctx context.Context, cfg config, role bridge.Role) error {
	conn := stdio.New(os.Stdin, os.Stdout, cfg.Transport, os.Stdin)
	ch, release, err := newChannel(conn, cfg, role, "")
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer release()
	if err := announce(ch); err != nil {
		log.Warn().Err(err).Msg("announce failed")
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
	}
	return multierr.Combine(ch.Close(), conn.Close(), conn.Err())
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: bridgectl <mode> [flags]

modes:
  host    accept guest websocket connections and serve the demo operations
  guest   dial a host, invoke one operation, print the JSON result
  stdio   serve the bridge over stdin/stdout
  spawn   run a command speaking stdio, invoke one operation on it, print the result
          (bridgectl spawn -op system.ping -- bridgectl stdio)

run "bridgectl <mode> -h" for mode flags
`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "bridgectl: "+format+"\n", args...)
	os.Exit(1)
}
