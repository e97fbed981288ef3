package radiolog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalsfoundry/directional-radio-medium/core"
	"github.com/signalsfoundry/directional-radio-medium/internal/logging"
	"github.com/signalsfoundry/directional-radio-medium/kb"
)

// Recorder writes the connections of one run.
type Recorder struct {
	db    *sql.DB
	runID string
	log   logging.Logger

	// rows maps connection IDs to their row for the end-of-transmission
	// update.
	rows map[uint64]int64
}

// NewRecorder registers a run and returns its recorder.
func NewRecorder(ctx context.Context, db *sql.DB, runID string, params core.Params, log logging.Logger) (*Recorder, error) {
	if log == nil {
		log = logging.Noop()
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at_ms, params_json) VALUES (?, ?, ?)`,
		runID, time.Now().UnixMilli(), string(raw),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Recorder{db: db, runID: runID, log: log, rows: make(map[uint64]int64)}, nil
}

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Record stores a connection and its current members in one transaction.
func (r *Recorder) Record(ctx context.Context, tick uint64, conn *core.Connection) error {
	return r.record(ctx, tick, conn, conn.Destinations(), conn.Interfered())
}

func (r *Recorder) record(ctx context.Context, tick uint64, conn *core.Connection, dests, intf []kb.Handle) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO connections (run_id, tick, connection_id, source, transmit_range, interference_range)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.runID, int64(tick), int64(conn.ID), int(conn.Source), conn.TransmitRange, conn.InterferenceRange,
	)
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("insert connection: %w", err)
	}
	row, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()

		return fmt.Errorf("connection row id: %w", err)
	}
	if err := insertMembers(ctx, tx, row, "destination", dests); err != nil {
		_ = tx.Rollback()

		return err
	}
	if err := insertMembers(ctx, tx, row, "interfered", intf); err != nil {
		_ = tx.Rollback()

		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	r.rows[conn.ID] = row
	return nil
}

// End stamps the tick at which a recorded connection was deactivated.
func (r *Recorder) End(ctx context.Context, tick uint64, conn *core.Connection) error {
	row, ok := r.rows[conn.ID]
	if !ok {
		return nil
	}
	delete(r.rows, conn.ID)
	if _, err := r.db.ExecContext(ctx, `UPDATE connections SET ended_tick = ? WHERE id = ?`, int64(tick), row); err != nil {
		return fmt.Errorf("end connection: %w", err)
	}
	return nil
}

func insertMembers(ctx context.Context, tx *sql.Tx, row int64, role string, hs []kb.Handle) error {
	if len(hs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO connection_members (connection_row, radio, role) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare members: %w", err)
	}
	defer stmt.Close()
	for _, h := range hs {
		if _, err := stmt.ExecContext(ctx, row, int(h), role); err != nil {
			return fmt.Errorf("insert %s %d: %w", role, h, err)
		}
	}
	return nil
}

// TickListener records activations and deactivations found in the events
// of each tick. Members are taken from the activation snapshot carried by
// the event. Write failures are logged and do not stop the run.
func (r *Recorder) TickListener() core.TickListener {
	return func(ctx context.Context, tick uint64, events []core.Event) {
		for _, ev := range events {
			if ev.Kind != core.EventConnectionsChanged || ev.Connection == nil {
				continue
			}
			var err error
			if ev.Activated {
				err = r.record(ctx, tick, ev.Connection, ev.Destinations, ev.Interfered)
			} else {
				err = r.End(ctx, tick, ev.Connection)
			}
			if err != nil {
				r.log.Error(ctx, "radiolog write failed", logging.Uint64("connection", ev.Connection.ID), logging.Err(err))
			}
		}
	}
}

// Summary aggregates a run.
type Summary struct {
	Connections int
	Receptions  map[kb.Handle]int
	Interfered  map[kb.Handle]int
}

// Summarize counts connections and per-radio roles for the run.
func (r *Recorder) Summarize(ctx context.Context) (Summary, error) {
	s := Summary{Receptions: make(map[kb.Handle]int), Interfered: make(map[kb.Handle]int)}
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE run_id = ?`, r.runID,
	).Scan(&s.Connections); err != nil {
		return Summary{}, fmt.Errorf("count connections: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT m.radio, m.role, COUNT(*)
		 FROM connection_members m JOIN connections c ON c.id = m.connection_row
		 WHERE c.run_id = ?
		 GROUP BY m.radio, m.role`, r.runID)
	if err != nil {
		return Summary{}, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			radio int
			role  string
			n     int
		)
		if err := rows.Scan(&radio, &role, &n); err != nil {
			return Summary{}, fmt.Errorf("scan members: %w", err)
		}
		if role == "destination" {
			s.Receptions[kb.Handle(radio)] = n
		} else {
			s.Interfered[kb.Handle(radio)] = n
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate members: %w", err)
	}
	return s, nil
}
