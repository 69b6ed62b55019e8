// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP INDEX trucks_provider_idx;
		DROP TABLE rates;
		DROP TABLE trucks;
		DROP TABLE providers;
	`,
	"001_initial.up.sql": `
		CREATE TABLE providers (
			id    BIGSERIAL  NOT NULL PRIMARY KEY,
			name  TEXT       NOT NULL UNIQUE
		);

		CREATE TABLE trucks (
			id           TEXT    NOT NULL PRIMARY KEY,
			provider_id  BIGINT  NOT NULL REFERENCES providers ON DELETE RESTRICT
		);

		CREATE TABLE rates (
			id       BIGSERIAL  NOT NULL PRIMARY KEY,
			product  TEXT       NOT NULL,
			rate     BIGINT     NOT NULL,
			scope    TEXT       NOT NULL DEFAULT 'ALL'
		);

		CREATE INDEX trucks_provider_idx ON trucks (provider_id);
	`,
}
