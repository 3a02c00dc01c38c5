package rawstore

import (
	"context"
	"strings"
	"testing"

	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/errs"
	"github.com/Monochrome-Compliance-Dev/compliance-reporting-server-sub001/internal/tenant"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// recordingTx stubs the transaction surface Ingest touches, logging the
// order of statements so replace-on-reimport can be asserted.
type recordingTx struct {
	pgx.Tx
	ops    []string
	copied [][]any
}

func (f *recordingTx) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	if strings.Contains(sql, "delete from raw_row") {
		f.ops = append(f.ops, "clear")
	} else {
		f.ops = append(f.ops, "exec")
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *recordingTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	f.ops = append(f.ops, "copy")
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, vals)
		n++
	}
	return n, src.Err()
}

func TestIngestReplacesPriorImport(t *testing.T) {
	rec := &recordingTx{}
	tx := tenant.NewTx(tenant.Context{TenantID: "t1"}, rec)
	runID := uuid.New()

	const body = "Payer,Amount\nAcme,100.00\nBeta,250.50\n"

	n, err := Ingest(context.Background(), tx, runID, strings.NewReader(body), IngestOptions{})
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("first Ingest() = %d rows, want 2", n)
	}

	n, err = Ingest(context.Background(), tx, runID, strings.NewReader(body), IngestOptions{})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("second Ingest() = %d rows, want 2", n)
	}

	// Each import clears the run before it copies; without the clear the
	// second import would collide on (tenant, run, row_no).
	want := []string{"clear", "copy", "clear", "copy"}
	if len(rec.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", rec.ops, want)
	}
	for i := range want {
		if rec.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", rec.ops, want)
		}
	}

	// Row numbers restart at 1 on the second import.
	if got := rec.copied[2][2]; got != 1 {
		t.Errorf("second import first row_no = %v, want 1", got)
	}
}

func TestIngestRejectsEmptyHeaderWithoutClearing(t *testing.T) {
	rec := &recordingTx{}
	tx := tenant.NewTx(tenant.Context{TenantID: "t1"}, rec)

	_, err := Ingest(context.Background(), tx, uuid.New(), strings.NewReader(",,\n"), IngestOptions{})
	if !errs.IsValidation(err) {
		t.Fatalf("Ingest() with empty header = %v, want validation error", err)
	}
	if len(rec.ops) != 0 {
		t.Errorf("a rejected file must not touch stored rows, got ops %v", rec.ops)
	}
}
