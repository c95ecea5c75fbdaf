// tcpreconstruct runs the TCP flow reconstruction network function on
// the configured ports: every finished TCP flow has its reassembled
// payload dumped. SIGHUP/SIGUSR1 atomically reload the application
// section of the configuration; SIGINT/SIGTERM shut down cleanly.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/netsys-io/netbricks/batch"
	"github.com/netsys-io/netbricks/config"
	"github.com/netsys-io/netbricks/nf/reconstruct"
	"github.com/netsys-io/netbricks/packets"
	"github.com/netsys-io/netbricks/port"
	"github.com/netsys-io/netbricks/scheduler"
	"github.com/netsys-io/netbricks/state"
)

// appConfig is the hot-reloadable application section.
type appConfig struct {
	// DumpPayloads controls whether finished flows are printed.
	DumpPayloads bool `toml:"dump_payloads"`
	// MaxDumpBytes truncates printed payloads; 0 means unlimited.
	MaxDumpBytes int `toml:"max_dump_bytes"`
}

func defaultAppConfig() appConfig {
	return appConfig{DumpPayloads: true}
}

func readAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = toml.Unmarshal(data, &cfg)
	return cfg, err
}

func main() {
	flags := config.BasicFlags("tcpreconstruct")
	tui := flags.FlagSet().Bool("tui", false, "Show a live stats view instead of log output")
	metricsAddr := flags.FlagSet().String("metrics", "", "Expose prometheus metrics on this address (e.g. :9464)")
	appConfPath := flags.FlagSet().String("app-configuration", "", "TOML file with the reloadable application section")

	cfg, err := flags.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("app", "tcpreconstruct")
	log.Infof("🚀 starting: %s", cfg.Name)

	appConf, err := readAppConfig(*appConfPath)
	if err != nil {
		log.WithError(err).Error("configuration error")
		os.Exit(1)
	}
	appAtom := state.NewAtom(appConf)
	stopSignals := config.WatchSignals(appAtom, func() (appConfig, error) {
		return readAppConfig(*appConfPath)
	})
	defer stopSignals()

	ctx, err := scheduler.Initialize(cfg)
	if err != nil {
		log.WithError(err).Error("initialization failed")
		os.Exit(1)
	}
	prometheus.MustRegister(ctx.Metrics)

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.WithError(err).Warn("metrics endpoint failed")
			}
		}()
	}

	var flowsDumped atomic.Uint64
	byteCounts := state.NewMergeableStoreCP(func(a, b uint64) uint64 { return a + b })
	dump := func(flow packets.Flow, payload []byte) {
		flowsDumped.Add(1)
		conf := appAtom.Get()
		if !conf.DumpPayloads {
			return
		}
		if conf.MaxDumpBytes > 0 && len(payload) > conf.MaxDumpBytes {
			payload = payload[:conf.MaxDumpBytes]
		}
		fmt.Printf("%s\n%s\n", flow, payload)
	}

	ctx.StartSchedulers()
	ctx.AddPipeline(func(rxqs []*port.PortQueue, s *scheduler.Scheduler) {
		for _, q := range rxqs {
			pipeline := batch.Send(
				reconstruct.Reconstruction(batch.Receive(q), byteCounts.DPStore(), dump),
				q,
			)
			s.AddTask(pipeline)
		}
	})
	ctx.Execute()
	log.Info("🔄 pipelines running")

	if *tui {
		if err := runTui(ctx, &flowsDumped); err != nil {
			log.WithError(err).Error("stats view failed")
		}
		ctx.Shutdown()
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()
	for {
		select {
		case <-statsTicker.C:
			byteCounts.Sync()
			log.WithFields(logrus.Fields{
				"flows_dumped": flowsDumped.Load(),
				"flows_live":   byteCounts.Len(),
			}).Info("📊 stats")
		case sig := <-sigs:
			log.WithField("signal", sig).Info("shutting down")
			ctx.Shutdown()
			return
		}
	}
}
