// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package db contains the database layer of the Billing service.
package db

import (
	"database/sql"
	"net/url"
	"os"

	"github.com/dlmiddlecote/sqlstats"
	gorp "github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/osext"
	"github.com/sapcc/go-bits/sqlext"
)

// Configuration returns the easypg.Configuration object that is needed to
// initialize the connection to the Billing service database.
func Configuration() easypg.Configuration {
	return easypg.Configuration{
		Migrations: sqlMigrations,
	}
}

// Init initializes the connection to the Billing service database and
// registers its connection-pool statistics with Prometheus.
func Init() (*gorp.DbMap, error) {
	dbURL, err := easypg.URLFrom(easypg.URLParts{
		HostName:          osext.GetenvOrDefault("WEIGHBRIDGE_BILLING_DB_HOSTNAME", "localhost"),
		Port:              osext.GetenvOrDefault("WEIGHBRIDGE_BILLING_DB_PORT", "5432"),
		UserName:          osext.GetenvOrDefault("WEIGHBRIDGE_BILLING_DB_USERNAME", "postgres"),
		Password:          os.Getenv("WEIGHBRIDGE_BILLING_DB_PASSWORD"),
		ConnectionOptions: os.Getenv("WEIGHBRIDGE_BILLING_DB_CONNECTION_OPTIONS"),
		DatabaseName:      osext.GetenvOrDefault("WEIGHBRIDGE_BILLING_DB_NAME", "weighbridge_billing"),
	})
	if err != nil {
		return nil, err
	}
	dbConn, err := easypg.Connect(dbURL, Configuration())
	if err != nil {
		return nil, err
	}
	prometheus.MustRegister(sqlstats.NewStatsCollector("weighbridge_billing", dbConn))
	return InitORM(dbConn), nil
}

// InitFromURL connects to the given database. This is used by the test
// harness, which does not want the env-based configuration or the metrics
// registration of Init().
func InitFromURL(dbURL url.URL) (*gorp.DbMap, error) {
	dbConn, err := easypg.Connect(dbURL, Configuration())
	if err != nil {
		return nil, err
	}
	return InitORM(dbConn), nil
}

// InitORM wraps a database connection into a gorp.DbMap instance.
func InitORM(dbConn *sql.DB) *gorp.DbMap {
	// ensure that this process does not starve the other weighbridge services
	// for DB connections
	dbConn.SetMaxOpenConns(10)

	dbMap := &gorp.DbMap{Db: dbConn, Dialect: gorp.PostgresDialect{}}
	initGorp(dbMap)
	return dbMap
}

// Interface provides the common methods that both SQL connections and
// transactions implement.
type Interface interface {
	// from database/sql
	sqlext.Executor

	// from github.com/go-gorp/gorp
	Insert(args ...any) error
	Update(args ...any) (int64, error)
	Delete(args ...any) (int64, error)
	Select(i any, query string, args ...any) ([]any, error)
	SelectOne(holder any, query string, args ...any) error
}
