// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP INDEX candidates_status_idx;
		DROP TABLE candidates;
	`,
	"001_initial.up.sql": `
		CREATE TABLE candidates (
			id                     TEXT       NOT NULL PRIMARY KEY,
			company_name           TEXT       NOT NULL,
			contact_email          TEXT       NOT NULL UNIQUE,
			phone                  TEXT       DEFAULT NULL,
			products               JSONB      NOT NULL,
			truck_count            BIGINT     NOT NULL,
			capacity_tons_per_day  BIGINT     NOT NULL,
			location               TEXT       DEFAULT NULL,
			status                 TEXT       NOT NULL DEFAULT 'pending',
			created_at             TIMESTAMP  NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMP  NOT NULL DEFAULT NOW(),
			provider_id            BIGINT     DEFAULT NULL,
			version                BIGINT     NOT NULL DEFAULT 1,
			rejection_reason       TEXT       DEFAULT NULL
		);

		CREATE INDEX candidates_status_idx ON candidates (status);
	`,
}
