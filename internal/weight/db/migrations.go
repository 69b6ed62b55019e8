// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package db

var sqlMigrations = map[string]string{
	"001_initial.down.sql": `
		DROP INDEX transactions_session_direction_idx;
		DROP INDEX transactions_datetime_idx;
		DROP INDEX transactions_truck_idx;
		DROP INDEX transactions_direction_idx;
		DROP INDEX transactions_session_idx;
		DROP TABLE transactions;
		DROP TABLE registered_containers;
	`,
	"001_initial.up.sql": `
		CREATE TABLE registered_containers (
			container_id  TEXT    NOT NULL PRIMARY KEY,
			weight        BIGINT  DEFAULT NULL,
			unit          TEXT    NOT NULL DEFAULT 'kg'
		);

		CREATE TABLE transactions (
			id          BIGSERIAL  NOT NULL PRIMARY KEY,
			session_id  TEXT       NOT NULL,
			datetime    TIMESTAMP  NOT NULL DEFAULT NOW(),
			direction   TEXT       NOT NULL,
			truck       TEXT       DEFAULT NULL,
			containers  TEXT       NOT NULL DEFAULT '',
			bruto       BIGINT     NOT NULL,
			truck_tara  BIGINT     DEFAULT NULL,
			neto        BIGINT     DEFAULT NULL,
			produce     TEXT       DEFAULT NULL
		);

		CREATE INDEX transactions_session_idx ON transactions (session_id);
		CREATE INDEX transactions_direction_idx ON transactions (direction);
		CREATE INDEX transactions_truck_idx ON transactions (truck);
		CREATE INDEX transactions_datetime_idx ON transactions (datetime);
		CREATE INDEX transactions_session_direction_idx ON transactions (session_id, direction);
	`,
}
