// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cobaltcore-dev/placement-reporter/internal/compute"
	"github.com/cobaltcore-dev/placement-reporter/internal/reportclient"
	"github.com/cobaltcore-dev/placement-reporter/pkg/conf"
	"github.com/cobaltcore-dev/placement-reporter/pkg/keystone"
	"github.com/cobaltcore-dev/placement-reporter/pkg/monitoring"
	"github.com/cobaltcore-dev/placement-reporter/pkg/openstack"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"go.uber.org/automaxprocs/maxprocs"
)

// Run the prometheus metrics server for monitoring.
func runMonitoringServer(ctx context.Context, registry *monitoring.Registry, config conf.MonitoringConfig) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	slog.Info("metrics listening", "port", config.Port)
	addr := fmt.Sprintf(":%d", config.Port)
	if err := httpext.ListenAndServeContext(ctx, addr, mux); err != nil {
		panic(err)
	}
}

// Session factory for the placement client. Every new session starts from
// a fresh keystone token and service catalog.
func placementSessions(keystoneAPI keystone.KeystoneClient) reportclient.SessionFactory {
	return func(ctx context.Context) (reportclient.Transport, error) {
		keystoneAPI.Reset()
		client, err := openstack.PlacementClient(ctx, keystoneAPI)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		// If called with `--version`, report version and exit (the Dockerfile
		// uses this to check if the binary was built correctly)
		bininfo.HandleVersionArgument()
	}

	config := conf.GetConfigOrDie[*conf.Config]()
	config.LoggingConfig.SetDefaultLogger()
	must.Succeed(config.Validate())

	// Set runtime concurrency to match CPU limit imposed by Kubernetes
	undoMaxprocs := must.Return(maxprocs.Set(maxprocs.Logger(slog.Debug)))
	defer undoMaxprocs()

	// Override User-Agent header for all requests made by this process.
	wrap := httpext.WrapTransport(&http.DefaultTransport)
	wrap.SetOverrideUserAgent(bininfo.Component(), bininfo.VersionOr("rolling"))

	// This context will gracefully shutdown when the process receives the
	// standard shutdown signal SIGINT, with a 10-second delay to allow
	// Kubernetes to stop sending new requests well before the process starts
	// to shut down.
	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)

	registry := monitoring.NewRegistry(config.MonitoringConfig)
	go runMonitoringServer(ctx, registry, config.MonitoringConfig)

	keystoneAPI := keystone.NewKeystoneClient(config.KeystoneConfig)
	placement := reportclient.NewClient(placementSessions(keystoneAPI), reportclient.Options{
		RefreshInterval: config.PlacementConfig.AssociationRefresh(),
		RetryDelay:      retryDelay(config.PlacementConfig),
		Monitor:         reportclient.NewMonitor(registry),
	})

	var source compute.CapacitySource
	switch config.ReporterConfig.Source {
	case conf.CapacitySourceNova:
		// Nova gets its own keystone session, so placement session resets
		// don't interfere with it.
		source = compute.NewNovaSource(keystone.NewKeystoneClient(config.KeystoneConfig))
	default:
		source = compute.NewStaticSource(config.ReporterConfig.ComputeNodes)
	}
	reporter := compute.NewReporter(placement, source, config.ReservedConfig, config.ReporterConfig, compute.NewMonitor(registry))
	go reporter.ReportPeriodically(ctx)

	// Run an api server that serves some basic endpoints and can be extended.
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	apiConf := config.APIConfig
	addr := fmt.Sprintf(":%d", apiConf.Port)
	slog.Info("api listening", "port", apiConf.Port)
	if err := httpext.ListenAndServeContext(ctx, addr, mux); err != nil {
		panic(err)
	}
}

// The client treats a zero delay as unset, so an explicitly disabled delay
// is passed as a negative one.
func retryDelay(config conf.PlacementConfig) time.Duration {
	delay := config.RetryDelay()
	if delay == 0 {
		return -1
	}
	return delay
}
