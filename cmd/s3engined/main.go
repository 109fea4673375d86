// Command s3engined runs the engine as a long-lived process: the scheduler's
// work executor, the endpoint-table reaper, and an observability sidecar
// (health/status/metrics) that a load balancer or Prometheus scraper can
// poll. It does not expose upload submission over HTTP: embedding
// pkg/s3engine directly is the engine's API surface; this binary is for
// operators who want the engine warm and observable as a service (e.g.
// behind a separate ingestion process using UploadAsync).
//
// Grounded on the teacher's cmd/server/main.go: environment-variable
// configuration with the same fail-fast-on-missing-required-var shape,
// gin router handed to router.Run(":"+port).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"s3transfer/pkg/housekeeping"
	"s3transfer/pkg/httpstatus"
	"s3transfer/pkg/metrics"
	"s3transfer/pkg/pool"
	"s3transfer/pkg/resume"
	"s3transfer/pkg/s3engine"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}

	poolCfg := pool.DefaultConfig()
	if v := os.Getenv("AWS_REGION"); v != "" {
		poolCfg.Region = v
	}
	poolCfg.EndpointURL = os.Getenv("S3_ENDPOINT_URL")
	poolCfg.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	poolCfg.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	poolCfg.UserAgent = "s3engined/" + getVersion()

	throughput := 10.0
	if v := os.Getenv("THROUGHPUT_TARGET_GBPS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Fatal("invalid THROUGHPUT_TARGET_GBPS:", err)
		}
		throughput = parsed
	}

	var store resume.Store
	if dsn := os.Getenv("DB_CONNECTION_STRING"); dsn != "" {
		fmt.Println("initializing resume checkpoint store with postgres backend...")
		db, err := resume.NewDBStore(dsn)
		if err != nil {
			log.Fatal("failed to initialize checkpoint store:", err)
		}
		store = db
	}

	collector := metrics.New()

	engine := s3engine.New(context.Background(), s3engine.Config{
		Pool:                 poolCfg,
		ThroughputTargetGbps: throughput,
		ResumeStore:          store,
		Metrics:              collector,
	})
	defer engine.Close()

	reaper := housekeeping.New(engine.Table())
	if err := reaper.Start("*/5 * * * *"); err != nil {
		log.Fatal("failed to start housekeeping reaper:", err)
	}
	defer reaper.Stop()

	router := httpstatus.NewRouter(engine, engine.Table(), collector)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("s3engined: shutting down...")
		reaper.Stop()
		engine.Close()
		os.Exit(0)
	}()

	fmt.Printf("starting s3engined on port %s...\n", port)
	fmt.Printf("status: http://localhost:%s/status\n", port)
	fmt.Printf("health: http://localhost:%s/healthz\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("failed to start server:", err)
	}
}
