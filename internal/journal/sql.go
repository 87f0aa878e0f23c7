package journal

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      uuid,
                      start_time,
                      mode,
                      config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    uuid,
    start_time,
    mode,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    uuid,
    start_time,
    mode,
    config
FROM sessions
ORDER BY start_time`

	insertDecisionSQL = `
    INSERT INTO decisions (
        session_id,
        timestamp_us,
        energy_dbm,
        threshold_dbm,
        status,
        mode,
        forced,
        attempts,
        elapsed_us
    )
    VALUES `

	decisionPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
)

//go:embed schema.sql
var initSchemaSQL string
