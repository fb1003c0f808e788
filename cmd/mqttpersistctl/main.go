// Command mqttpersistctl runs a standalone mochi-mqtt broker with the
// persist plugin registered, for manual testing and as a wiring example.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"

	persist "github.com/mqttsql/persist"
	"github.com/mqttsql/persist/internal/logging"
)

func main() {
	var (
		addr           = flag.String("addr", ":1883", "TCP address to listen on")
		storePath      = flag.String("store", "mqttpersist.db", "path to the SQLite store file")
		excludeTopics  = flag.String("exclude-topics", "", "comma-separated MQTT filter patterns to skip persisting")
		excludeHeaders = flag.String("exclude-headers", "", "comma-separated user-property names to drop, or '#' to disable headers")
		batchSize      = flag.Int("batch-size", persist.DefaultBatchSize, "queue-size threshold that triggers an early drain")
		flushMs        = flag.Int("flush-interval-ms", int(persist.DefaultFlushInterval.Milliseconds()), "writer timeout in milliseconds")
		retentionDays  = flag.Int("retention-days", 0, "delete rows older than N days; 0 disables")
		brokerVersion  = flag.Int("broker-version", persist.SupportedBrokerVersion, "broker interface version; only 5 is accepted")
		verbose        = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg, err := persist.ParseOptions([]persist.Option{
		{Key: "exclude_topics", Value: *excludeTopics},
		{Key: "exclude_headers", Value: *excludeHeaders},
		{Key: "batch_size", Value: fmt.Sprintf("%d", *batchSize)},
		{Key: "flush_interval", Value: fmt.Sprintf("%d", *flushMs)},
		{Key: "retention_days", Value: fmt.Sprintf("%d", *retentionDays)},
		{Key: "broker_version", Value: fmt.Sprintf("%d", *brokerVersion)},
	})
	if err != nil {
		log.Fatalf("parse options: %v", err)
	}
	cfg.StorePath = *storePath

	server := mqtt.New(nil)

	hook := persist.New()
	if err := server.AddHook(hook, cfg); err != nil {
		log.Fatalf("register persist hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "mqttpersistctl", Address: *addr})
	if err := server.AddListener(tcp); err != nil {
		log.Fatalf("add listener: %v", err)
	}

	logger.Info("starting broker", "addr", *addr, "store", *storePath)
	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal")

	if err := server.Close(); err != nil {
		logger.Error("error closing broker", "error", err)
	}
	logger.Info("broker stopped")
}
