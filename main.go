// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"

	billingapi "github.com/sapcc/weighbridge/internal/billing/api"
	billingdb "github.com/sapcc/weighbridge/internal/billing/db"
	"github.com/sapcc/weighbridge/internal/billing/weightclient"
	registrationapi "github.com/sapcc/weighbridge/internal/registration/api"
	"github.com/sapcc/weighbridge/internal/registration/auth"
	"github.com/sapcc/weighbridge/internal/registration/billingclient"
	registrationdb "github.com/sapcc/weighbridge/internal/registration/db"
	"github.com/sapcc/weighbridge/internal/registration/workflow"
	weightapi "github.com/sapcc/weighbridge/internal/weight/api"
	weightdb "github.com/sapcc/weighbridge/internal/weight/db"
	"github.com/sapcc/weighbridge/internal/weight/engine"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("WEIGHBRIDGE_DEBUG")

	if len(os.Args) != 2 {
		printUsageAndExit()
	}

	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)
	switch os.Args[1] {
	case "serve-weight":
		taskServeWeight(ctx)
	case "serve-billing":
		taskServeBilling(ctx)
	case "serve-registration":
		taskServeRegistration(ctx)
	default:
		printUsageAndExit()
	}
}

var usageMessage = strings.TrimSpace(`
Usage:
	%[1]s serve-weight
	%[1]s serve-billing
	%[1]s serve-registration
`) + "\n"

func printUsageAndExit() {
	fmt.Fprintf(os.Stderr, usageMessage, os.Args[0])
	os.Exit(1)
}

func taskServeWeight(ctx context.Context) {
	dbm := must.Return(weightdb.Init())

	maxContainerKilos, err := strconv.ParseInt(osext.GetenvOrDefault("WEIGHBRIDGE_WEIGHT_MAX_CONTAINER_KG", "100000"), 10, 64)
	if err != nil {
		logg.Fatal("could not parse WEIGHBRIDGE_WEIGHT_MAX_CONTAINER_KG: %s", err.Error())
	}
	ingestCfg := engine.IngestConfig{
		Directory:        osext.GetenvOrDefault("WEIGHBRIDGE_WEIGHT_INGEST_DIR", "/var/lib/weighbridge/in"),
		MaxFileSizeBytes: engine.DefaultMaxIngestFileSize,
	}

	eng := engine.NewEngine(dbm, maxContainerKilos, time.Now)
	serveAPI(ctx,
		osext.GetenvOrDefault("WEIGHBRIDGE_WEIGHT_LISTEN_ADDRESS", ":8081"),
		weightapi.NewV1API(dbm, eng, ingestCfg, time.Now),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check:          func() error { return dbm.Db.Ping() },
		},
	)
}

func taskServeBilling(ctx context.Context) {
	dbm := must.Return(billingdb.Init())

	weightAPIURL := osext.MustGetenv("WEIGHBRIDGE_WEIGHT_API_URL")
	timeoutSecs, err := strconv.Atoi(osext.GetenvOrDefault("WEIGHBRIDGE_WEIGHT_API_TIMEOUT_SECONDS", "30"))
	if err != nil {
		logg.Fatal("could not parse WEIGHBRIDGE_WEIGHT_API_TIMEOUT_SECONDS: %s", err.Error())
	}
	weightClient := weightclient.NewClient(weightAPIURL, time.Duration(timeoutSecs)*time.Second)

	serveAPI(ctx,
		osext.GetenvOrDefault("WEIGHBRIDGE_BILLING_LISTEN_ADDRESS", ":8082"),
		billingapi.NewV1API(dbm, weightClient, time.Now),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check:          func() error { return dbm.Db.Ping() },
		},
	)
}

func taskServeRegistration(ctx context.Context) {
	dbm := must.Return(registrationdb.Init())

	billingClient := billingclient.NewClient(osext.MustGetenv("WEIGHBRIDGE_BILLING_API_URL"), 0)
	tokenIssuer := must.Return(auth.NewTokenIssuerFromEnv())
	wf := workflow.NewWorkflow(dbm, billingClient, time.Now)

	serveAPI(ctx,
		osext.GetenvOrDefault("WEIGHBRIDGE_REGISTRATION_LISTEN_ADDRESS", ":8083"),
		registrationapi.NewV1API(wf, tokenIssuer),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check:          func() error { return dbm.Db.Ping() },
		},
	)
}

// serveAPI wires the common HTTP plumbing (request logging, CORS, metrics)
// around the given APIs and serves until SIGINT/SIGTERM.
func serveAPI(ctx context.Context, listenAddress string, apis ...httpapi.API) {
	handler := httpapi.Compose(apis...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	allowedOriginStr := strings.ReplaceAll(os.Getenv("WEIGHBRIDGE_API_CORS_ALLOWED_ORIGINS"), " ", "")
	if allowedOriginStr != "" {
		mux.Handle("/", cors.New(cors.Options{
			AllowedOrigins: strings.Split(allowedOriginStr, "||"),
			AllowedMethods: []string{"HEAD", "GET", "POST", "PUT"},
			AllowedHeaders: []string{"Content-Type", "User-Agent", "Authorization"},
		}).Handler(handler))
	} else {
		mux.Handle("/", handler)
	}

	logg.Info("listening on %s", listenAddress)
	must.Succeed(httpext.ListenAndServeContext(ctx, listenAddress, mux))
}
