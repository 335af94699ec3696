package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skdp/skdp/pkg/keyhierarchy"
	"github.com/skdp/skdp/pkg/metrics"
	"github.com/skdp/skdp/pkg/skdp"
	"github.com/skdp/skdp/pkg/version"
)

// singleBranchStore serves one branch key record, the common case for a
// standalone skdpd instance (one server, one issuing master).
type singleBranchStore struct {
	branch keyhierarchy.BranchKeyRecord
}

func (s singleBranchStore) Lookup(mid, bid []byte) (keyhierarchy.BranchKeyRecord, bool) {
	kid := s.branch.KID
	if string(kid.MID()) == string(padMID(mid)) && string(kid.BID()) == string(padBID(bid)) {
		return s.branch, true
	}
	return keyhierarchy.BranchKeyRecord{}, false
}

func padMID(mid []byte) []byte { return pad(mid, 4) }
func padBID(bid []byte) []byte { return pad(bid, 4) }
func pad(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func newServeCommand() *cobra.Command {
	var (
		addr          string
		branchPath    string
		maxPerIP      int
		handshakeRate float64
		logLevel      string
		logFormat     string
		obsAddr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a branch server, accepting device connections",
		Long: `serve runs the responder side of the SKDP handshake (spec §4) for
every incoming device connection, echoing received application payloads
back to the sender. Grounded on cmd/quantum-vpn/demo.go's demo server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr, branchPath, maxPerIP, handshakeRate, logLevel, logFormat, obsAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8443", "listen address")
	cmd.Flags().StringVar(&branchPath, "branch", "", "path to the branch key record (required)")
	cmd.Flags().IntVar(&maxPerIP, "max-per-ip", 0, "max concurrent connections per source IP, 0 disables")
	cmd.Flags().Float64Var(&handshakeRate, "handshake-rate", 0, "max handshakes/sec globally, 0 disables")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error, silent")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")
	cmd.Flags().StringVar(&obsAddr, "metrics-addr", "", "observability server address (/metrics, /health, /healthz, /readyz); empty disables it")
	_ = cmd.MarkFlagRequired("branch")

	return cmd
}

func runServe(cmd *cobra.Command, addr, branchPath string, maxPerIP int, handshakeRate float64, logLevel, logFormat, obsAddr string) error {
	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		return err
	}

	kid, key, expiration, err := readRecord(branchPath)
	if err != nil {
		return fmt.Errorf("read branch record: %w", err)
	}
	branch := keyhierarchy.BranchKeyRecord{KID: kid, BDK: key, Expiration: expiration}

	listener, err := skdp.Listen("tcp", addr, singleBranchStore{branch: branch})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = listener.Close() }()

	cfg := skdp.DefaultConfig()
	cfg.RateLimit.MaxConnectionsPerIP = maxPerIP
	cfg.RateLimit.HandshakeRateLimit = handshakeRate
	cfg.RateLimitObserver = metrics.NewRateLimitObserver(metrics.Global(), logger)
	listener.SetConfig(cfg)

	if obsAddr != "" {
		obsServer := metrics.NewServer(metrics.ServerConfig{
			Collector:        metrics.Global(),
			Version:          version.Full(),
			Namespace:        "skdp",
			EnablePrometheus: true,
			EnableHealth:     true,
		})
		go func() {
			if err := obsServer.ListenAndServe(obsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observability server error", metrics.Fields{"error": err.Error()})
			}
		}()
		logger.Info("observability server listening", metrics.Fields{"addr": obsAddr})
	}

	logger.Info("listening", metrics.Fields{"addr": listener.Addr().String()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down", nil)
		_ = listener.Close()
	}()

	connNum := 0
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			metrics.NewSessionObserver(metrics.SessionObserverConfig{Logger: logger, Role: "responder"}).OnSessionFailed(err)
			continue
		}
		connNum++
		observer := metrics.NewSessionObserver(metrics.SessionObserverConfig{
			Logger: logger,
			KID:    conn.KID().Bytes(),
			Role:   "responder",
		})
		observer.OnSessionStart()
		logger.Info("connection established", metrics.Fields{
			"conn":   connNum,
			"remote": conn.RemoteAddr().String(),
		})
		go serveConnection(conn, connNum, observer)
	}
}

func serveConnection(conn *skdp.Connection, connNum int, observer *metrics.SessionObserver) {
	defer func() {
		_ = conn.Close()
		observer.OnSessionEnd()
	}()

	for {
		_, done := observer.OnReceive(nil, 0)
		data, err := conn.Receive()
		done(err)
		if err != nil {
			observer.Logger().Info("connection closed", metrics.Fields{"conn": connNum, "error": err.Error()})
			return
		}

		response := append([]byte("echo: "), data...)
		_, sendDone := observer.OnSend(nil, len(response))
		err = conn.Send(response)
		sendDone(err)
		if err != nil {
			observer.OnProtocolError(err)
			return
		}
	}
}
