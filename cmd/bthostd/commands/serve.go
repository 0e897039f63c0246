package commands

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	bthost "github.com/emulab/bthost"
	"github.com/emulab/bthost/cmd/bthostd/config"
	"github.com/emulab/bthost/internal/metrics"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a bthost peer against a configured transport",
	Long: `serve accepts counterpart connections on the configured transport
one at a time, builds a fresh emulated Bluetooth host for each, and pumps
H4 frames between the socket and that Host for the lifetime of the
connection — matching the teacher's one-device-at-a-time HCI socket model.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logrus.StandardLogger()
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if lerr := http.ListenAndServe(cfg.Metrics.Addr, mux); lerr != nil {
				log.WithError(lerr).Error("bthostd: metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.Metrics.Addr).Info("bthostd: metrics endpoint listening")
	}

	ln, err := listen(cfg.Transport.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Transport.Addr, err)
	}
	defer ln.Close()
	log.WithField("addr", cfg.Transport.Addr).Info("bthostd: listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("bthostd: shutdown signal received")
		ln.Close()
	}()

	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			log.WithError(aerr).Info("bthostd: listener closed")
			return nil
		}
		log.WithField("remote", conn.RemoteAddr()).Info("bthostd: peer connected")
		serveConn(conn, cfg, log, m)
	}
}

// listen parses a "tcp://host:port" or "unix:///path" address, per
// SPEC_FULL.md §1.
func listen(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		return net.Listen("tcp", strings.TrimPrefix(addr, "tcp://"))
	case strings.HasPrefix(addr, "unix://"):
		path := strings.TrimPrefix(addr, "unix://")
		os.Remove(path)
		return net.Listen("unix", path)
	default:
		return nil, fmt.Errorf("unsupported transport address %q (want tcp:// or unix://)", addr)
	}
}

// serveConn wires one Host to one counterpart connection until it
// closes, reading one H4 frame per Read call (spec §6: "frames are
// never split across calls at the transport boundary").
func serveConn(conn net.Conn, cfg *config.Config, log *logrus.Logger, m *metrics.Collector) {
	defer conn.Close()

	h := bthost.New()
	h.SetLogger(log)
	h.SetMetrics(m)
	h.SetACLMTU(cfg.Host.ACLMTU)
	h.SetISOMTU(cfg.Host.ISOMTU)
	if cfg.Pairing.PINCode != "" {
		pin := cfg.Pairing.PINCode
		h.SetPINCode(&pin)
	}
	h.SetIOCapability(cfg.Pairing.IOCapability)
	h.SetAuthReq(cfg.Pairing.AuthReq)
	h.SetSCSupport(cfg.Pairing.SCSupport)
	h.SetRejectUserConfirm(cfg.Pairing.RejectUserConfirm)
	h.SetSendHandler(func(frame []byte) error {
		_, werr := conn.Write(frame)
		return werr
	})

	h.Start()

	buf := make([]byte, 4096)
	for {
		n, rerr := conn.Read(buf)
		if rerr != nil {
			log.WithError(rerr).Info("bthostd: peer connection closed")
			return
		}
		if n == 0 {
			continue
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		h.ReceiveH4(frame)
	}
}
