// Command riostackd runs one end of a RapidIO link-layer engine over a TCP
// demo carrier, exposing its diagnostics counters on a Prometheus endpoint.
// It either dials a peer or listens for one, per -listen.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	riolink "github.com/mfkiwl/OpenRIO"
	"github.com/mfkiwl/OpenRIO/transport"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML Config file (optional, defaults applied otherwise)")
		listenAddr = pflag.String("listen", "", "address to listen on (mutually exclusive with -dial)")
		dialAddr   = pflag.String("dial", "", "peer address to dial (mutually exclusive with -listen)")
		metricsAddr = pflag.String("metrics", ":9100", "address to serve /metrics on")
		tick        = pflag.Duration("tick", 2*time.Millisecond, "symbol pump interval over the TCP demo carrier")
	)
	pflag.Parse()

	logger := log.Default()

	cfg := riolink.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadConfigFile(*configPath)
		if err != nil {
			logger.Fatal("load config", "err", err)
		}
		cfg = loaded
	}

	stack, err := riolink.Open(cfg)
	if err != nil {
		logger.Fatal("open stack", "err", err)
	}
	stack.PortSetTime(timeNow())
	stack.PortSetStatus(true)

	if err := prometheus.Register(stack.Collector()); err != nil {
		logger.Fatal("register collector", "err", err)
	}
	go serveMetrics(*metricsAddr, logger)

	conn, err := connect(*listenAddr, *dialAddr)
	if err != nil {
		logger.Fatal("connect", "err", err)
	}
	logger.Info("connected", "remote", conn.RemoteAddr())

	carrier := transport.NewTCPCarrier(conn, stack, *tick)
	defer carrier.Close()

	tickTime := time.NewTicker(*tick)
	defer tickTime.Stop()
	for {
		select {
		case err, ok := <-carrier.Errs():
			if !ok {
				logger.Info("carrier stopped")
				return
			}
			logger.Error("carrier error", "err", err)
			return
		case t := <-tickTime.C:
			stack.PortSetTime(t)
			if stack.GetLinkIsInitialized() {
				logger.Debug("link up", "inbound_used", stack.InboundQueueUsed())
			}
		}
	}
}

func timeNow() time.Time { return time.Now() }

func connect(listenAddr, dialAddr string) (net.Conn, error) {
	switch {
	case listenAddr != "" && dialAddr != "":
		return nil, fmt.Errorf("-listen and -dial are mutually exclusive")
	case listenAddr != "":
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", listenAddr, err)
		}
		defer ln.Close()
		return ln.Accept()
	case dialAddr != "":
		return net.Dial("tcp", dialAddr)
	default:
		return nil, fmt.Errorf("exactly one of -listen or -dial is required")
	}
}

func serveMetrics(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func loadConfigFile(path string) (riolink.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return riolink.Config{}, err
	}
	defer f.Close()

	var cfg riolink.Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return riolink.Config{}, err
	}
	if err := cfg.Check(); err != nil {
		return riolink.Config{}, err
	}
	return cfg, nil
}
