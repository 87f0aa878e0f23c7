package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Journal persists channel-access decisions to a SQLite database. Writes
// go through a WAL connection so appends from the decision path never
// block concurrent readers; reads use a separate read-only connection.
// All methods are safe for concurrent use.
type Journal struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a journal backed by the database file at dbPath. The file
// and schema are created lazily on first write.
func New(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (j *Journal) getWriteDB() (*sql.DB, error) {
	j.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", j.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			j.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			j.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		j.writeDB = db
	})

	return j.writeDB, j.writeDBErr
}

func (j *Journal) getReadDB() (*sql.DB, error) {
	j.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", j.dbPath, "mode=ro"))
		if err != nil {
			j.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		j.readDB = db
	})

	return j.readDB, j.readDBErr
}

// CreateSession opens a new journaling session and returns its ID.
// Config may be a string, []byte, or any JSON-serializable value; it is
// stored verbatim so a journal can be interpreted without the original
// configuration file.
func (j *Journal) CreateSession(ctx context.Context, mode string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := j.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, uuid.NewString(), mode, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// Session returns a session by its ID.
func (j *Journal) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := j.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.Mode, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// Sessions returns all sessions ordered by start time.
func (j *Journal) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := j.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.Mode, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	return
}

// Append journals a single decision.
func (j *Journal) Append(ctx context.Context, sessionID int64, d Decision) error {
	return j.BatchAppend(ctx, sessionID, []Decision{d})
}

// BatchAppend journals a batch of decisions in one transaction. The
// scheduler accumulates decisions off the sensing path and flushes them
// here, so a batch is the common case.
func (j *Journal) BatchAppend(ctx context.Context, sessionID int64, decisions []Decision) (err error) {
	if len(decisions) == 0 {
		return
	}

	db, err := j.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(decisions)*9)

	var sb strings.Builder
	sb.WriteString(insertDecisionSQL)

	for i, d := range decisions {
		row := toDecisionRow(sessionID, d)
		values = append(values,
			row.SessionID,
			row.TimestampUs,
			row.EnergyDBm,
			row.ThresholdDBm,
			row.Status,
			row.Mode,
			row.Forced,
			row.Attempts,
			row.ElapsedUs,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(decisionPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting decisions: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close closes both database connections. It is safe to call multiple
// times.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		var writeErr, readErr error

		if j.writeDB != nil {
			writeErr = j.writeDB.Close()
			j.writeDB = nil
		}

		if j.readDB != nil {
			readErr = j.readDB.Close()
			j.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			j.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			j.closeErr = writeErr
		case readErr != nil:
			j.closeErr = readErr
		}
	})

	return j.closeErr
}
