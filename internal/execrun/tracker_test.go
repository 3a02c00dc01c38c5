package execrun

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/rules"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// call records one statement issued against the fake.
type call struct {
	sql  string
	args []any
}

// fakeDB stubs the DBTX surface the tracker touches so the statements and
// their arguments can be asserted without a database.
type fakeDB struct {
	calls   []call
	execTag pgconn.CommandTag
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return f.execTag, nil
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.calls = append(f.calls, call{sql: sql, args: args})
	return insertedRow{}
}

// insertedRow satisfies the returning clause of Create.
type insertedRow struct{}

func (insertedRow) Scan(dest ...any) error {
	*(dest[0].(*uuid.UUID)) = uuid.New()
	*(dest[1].(*time.Time)) = time.Now()
	return nil
}

func TestCreateRecordsStep(t *testing.T) {
	db := &fakeDB{}

	ex, err := Create(context.Background(), db, "t1", uuid.New(), StepStage, "abc123")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if ex.Step != StepStage {
		t.Errorf("step = %q, want %q", ex.Step, StepStage)
	}
	if ex.Status != StatusRunning {
		t.Errorf("status = %q, want running", ex.Status)
	}

	args := db.calls[0].args
	if args[2] != StepStage {
		t.Errorf("inserted step = %v, want %q", args[2], StepStage)
	}
}

func TestFinishPersistsOutcome(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}
	stats := rules.Stats{RulesTried: 2, RowsAffected: 1}

	err := Finish(context.Background(), db, "t1", uuid.New(), StatusSuccess,
		Outcome{RowsIn: 3, RowsOut: 3, Stats: stats}, nil)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	args := db.calls[0].args // status, rows_in, rows_out, stats, error, ...
	if args[1] != 3 || args[2] != 3 {
		t.Errorf("rows in/out = %v/%v, want 3/3", args[1], args[2])
	}

	payload, ok := args[3].([]byte)
	if !ok || !json.Valid(payload) {
		t.Fatalf("stats argument is not valid JSON: %v", args[3])
	}
	var got rules.Stats
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode stored stats: %v", err)
	}
	if got.RulesTried != 2 || got.RowsAffected != 1 {
		t.Errorf("stored stats = %+v, want %+v", got, stats)
	}
}

func TestFinishWithoutStatsStoresNull(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 1")}

	err := Finish(context.Background(), db, "t1", uuid.New(), StatusSuccess, Outcome{RowsIn: 1, RowsOut: 1}, nil)
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if payload := db.calls[0].args[3].([]byte); len(payload) != 0 {
		t.Errorf("stats should be empty when no stats are supplied, got %q", payload)
	}
}

func TestFinishReportsNotFoundWhenAlreadyTerminal(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("UPDATE 0")}

	err := Finish(context.Background(), db, "t1", uuid.New(), StatusSuccess, Outcome{}, nil)
	if !errs.IsNotFound(err) {
		t.Errorf("Finish() on a terminal record = %v, want not-found", err)
	}
}

func TestRecordFailureTruncatesAndKeepsStep(t *testing.T) {
	db := &fakeDB{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	long := errors.New(strings.Repeat("x", 600))

	if err := RecordFailure(context.Background(), db, "t1", uuid.New(), StepStage, "abc123", long); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	args := db.calls[0].args // tenant, run, step, hash, status, error
	if args[2] != StepStage {
		t.Errorf("step = %v, want %q", args[2], StepStage)
	}
	if args[4] != StatusFailed {
		t.Errorf("status = %v, want failed", args[4])
	}
	if msg := args[5].(string); len(msg) != 500 {
		t.Errorf("stored error length = %d, want 500", len(msg))
	}
}
