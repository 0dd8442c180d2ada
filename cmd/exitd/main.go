// Command exitd runs the VPN exit node's server-side datapath: address
// allocation, the TUN packet pump per client session, and the
// transparent TCP proxy helper (§1 OVERVIEW of SPEC_FULL.md).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/delta4chat/geph4-exit/internal/addralloc"
	"github.com/delta4chat/geph4-exit/internal/config"
	"github.com/delta4chat/geph4-exit/internal/metrics"
	"github.com/delta4chat/geph4-exit/internal/proxyhelper"
	"github.com/delta4chat/geph4-exit/internal/proxyloop"
	"github.com/delta4chat/geph4-exit/internal/routing"
	"github.com/delta4chat/geph4-exit/internal/session"
	"github.com/delta4chat/geph4-exit/internal/transport"
	"github.com/delta4chat/geph4-exit/internal/tundev"
)

func main() {
	configPath := flag.String("config", "/etc/geph4-exit/exitd.yaml", "path to YAML configuration")
	listenAddr := flag.String("listen", "0.0.0.0:9443", "address to accept VPN sessions on")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("exitd: %v", err)
	}
	tundev.SetTraceLogging(cfg.TraceLogging)

	pool, err := addralloc.New(cfg.CIDR)
	if err != nil {
		log.Fatalf("exitd: address pool: %v", err)
	}
	table, err := routing.New(routing.DefaultCapacity)
	if err != nil {
		log.Fatalf("exitd: route table: %v", err)
	}

	natEnabled := cfg.NATInterface != ""
	gatewayCIDR := gatewayFromCIDR(cfg.CIDR)

	var tun *tundev.Device
	if natEnabled {
		tun, err = tundev.Open(cfg.Tun.Device, cfg.Tun.MTU, gatewayCIDR, table)
		if err != nil {
			log.Fatalf("exitd: tun: %v", err)
		}
		defer tun.Close()
	}

	mx := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			log.Printf("exitd: metrics listening on %s", cfg.Metrics.Listen)
			if err := http.ListenAndServe(cfg.Metrics.Listen, metrics.Handler()); err != nil {
				log.Printf("exitd: metrics server: %v", err)
			}
		}()
	}
	go reportOccupancy(ctx, pool, table, mx)

	sampleLimiter := rate.NewLimiter(rate.Every(time.Second), 1)
	accountant := session.NewBandwidthAccountant(cfg.StatKey(), mx, sampleLimiter)

	portTables := session.NewPortTables(cfg.Egress.BlackPorts, cfg.Egress.WhitePorts, cfg.Egress.PortWhitelist)
	gateway := net.ParseIP("100.64.0.1")

	proxyLoop := loopStub{}
	helper, err := proxyhelper.New(proxyLoop)
	if err != nil {
		log.Fatalf("exitd: proxy helper: %v", err)
	}
	go func() {
		if err := helper.Run(ctx, cfg.ProxyHelper.Listen); err != nil {
			log.Printf("exitd: proxy helper: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/vpn", func(w http.ResponseWriter, r *http.Request) {
		sess, err := transport.Accept(w, r)
		if err != nil {
			log.Printf("exitd: accept: %v", err)
			return
		}
		defer sess.Close()

		var tunInit func(context.Context) error
		var writer session.TunWriter
		if tun != nil {
			tunInit = tun.EnsureReady
			writer = tun
		}

		var sessionLimiter *rate.Limiter
		if cfg.RateLimit.BytesPerSecond > 0 {
			sessionLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.BytesPerSecond), cfg.RateLimit.Burst)
		}

		pump := session.New(session.Config{
			Pool:       pool,
			Table:      table,
			Tun:        writer,
			TunInit:    tunInit,
			Transport:  sess,
			Limiter:    sessionLimiter,
			Tables:     portTables,
			Gateway:    gateway,
			Accountant: accountant,
			NATEnabled: natEnabled,
		})
		if err := pump.Run(r.Context()); err != nil {
			log.Printf("exitd: session ended: %v", err)
		}
	})

	server := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("exitd: listening on %s", *listenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("exitd: %v", err)
	}
}

// gatewayFromCIDR derives the TUN interface's own address (first usable
// address in the pool's CIDR, at /prefixlen) from the configured CGNAT
// range, matching the original's "100.64.0.1/10" convention.
func gatewayFromCIDR(cidr string) string {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "100.64.0.1/10"
	}
	ones, _ := ipnet.Mask.Size()
	gw := ipnet.IP.To4()
	gw[3] |= 1
	return fmt.Sprintf("%s/%d", gw, ones)
}

func reportOccupancy(ctx context.Context, pool *addralloc.Pool, table *routing.Table, mx *metrics.Client) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	var lastFailed uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			mx.SetPoolOccupancy(pool.Capacity(), pool.Size())
			mx.SetRouteTableLen(table.Len())
			failed := pool.FailedDraws()
			mx.AddFailedDraws(failed - lastFailed)
			lastFailed = failed
		}
	}
}

// loopStub is the process's placeholder proxyloop.Loop: dialing and
// shuttling bytes to the recovered upstream destination is outside this
// datapath's scope (§8 Non-goals: "upstream connection handling").
type loopStub struct{}

func (loopStub) Run(ctx context.Context, conn net.Conn, clientID uint64, dst string) error {
	log.Printf("exitd: proxy hand-off for client %d to %s not implemented", clientID, dst)
	return conn.Close()
}

var _ proxyloop.Loop = loopStub{}
