package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/invoice-extractor/constants"
	"github.com/docuflow/invoice-extractor/internal/aggregate"
	"github.com/docuflow/invoice-extractor/internal/jobs"
	"github.com/docuflow/invoice-extractor/internal/pool"
	"github.com/docuflow/invoice-extractor/internal/store"
	"github.com/docuflow/invoice-extractor/internal/stream"
	"github.com/docuflow/invoice-extractor/internal/validate"
)

type fakeClient struct {
	fn func(ctx context.Context, prompt, imagePath string) (string, error)
}

func (f fakeClient) Infer(ctx context.Context, prompt, imagePath string) (string, error) {
	return f.fn(ctx, prompt, imagePath)
}

func payloadFor(invoice string) string {
	return fmt.Sprintf(`{
		"metadata": {"document_type": "invoice", "confidence": 0.9},
		"invoice_details": {"invoice_number": %q, "invoice_date": "2024-07-01", "due_date": null},
		"amounts": {"subtotal": "100.00", "tax": "10.00", "discount": null, "shipping": null, "total": "110.00"},
		"company": {"name": "Acme Corp", "tax_id": null,
			"address": {"street": null, "city": null, "state": null, "postal_code": null, "country": null},
			"contact": {"phone": null, "email": null, "website": null}},
		"line_items": [{"item": "Widget", "description": null, "quantity": "2", "unit_price": "50.00", "total": "100.00"}],
		"notes": null,
		"payment_info": {"payment_method": "wire"}
	}`, invoice)
}

func buildArchive(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("image-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type testEnv struct {
	svc           *Service
	jobs          *jobs.Store
	rows          *store.SQLiteStore
	processedPath string
}

// newTestEnv wires the full pipeline with a scripted inference client, a
// file-backed sqlite sink and fast polling intervals.
func newTestEnv(t *testing.T, infer func(ctx context.Context, prompt, imagePath string) (string, error), masterRows []string) *testEnv {
	t.Helper()
	base := t.TempDir()
	processedPath := filepath.Join(base, "extracted_data", "processed_data.csv")

	masterPath := ""
	if masterRows != nil {
		masterPath = filepath.Join(base, "master.csv")
		content := "invoice_number,subtotal,tax,total,item,quantity,unit_price,line_total\n" +
			strings.Join(masterRows, "\n") + "\n"
		require.NoError(t, os.WriteFile(masterPath, []byte(content), 0o644))
	}

	jobStore := jobs.NewStore(nil)
	workerPool := pool.New(fakeClient{fn: infer}, jobStore, nil, pool.WithConcurrency(2))
	agg := aggregate.New(processedPath, nil)
	validator := validate.New(validate.Config{
		ProcessedPath: processedPath,
		MasterPath:    masterPath,
	}, jobStore, nil)
	streamer := stream.New(jobStore, nil, stream.WithInterval(5*time.Millisecond))

	rows, err := store.OpenSQLite(filepath.Join(base, "rows.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rows.Close() })

	svc := New(Config{
		ImageDir: filepath.Join(base, "images"),
		Table:    "extracted_invoices",
	}, jobStore, workerPool, agg, validator, streamer, rows, nil)

	return &testEnv{svc: svc, jobs: jobStore, rows: rows, processedPath: processedPath}
}

// drain consumes the status stream to completion and returns every event.
func drain(t *testing.T, ch <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("status stream did not terminate")
		}
	}
}

func TestSubmitProcessesArchiveEndToEnd(t *testing.T) {
	infer := func(_ context.Context, _, imagePath string) (string, error) {
		switch {
		case strings.Contains(imagePath, "inv1"):
			return payloadFor("INV-1001"), nil
		case strings.Contains(imagePath, "inv2"):
			return payloadFor("INV-1002"), nil
		default:
			return "", fmt.Errorf("unreadable image")
		}
	}
	env := newTestEnv(t, infer, []string{
		"INV-1001,100.00,10.00,110.00,Widget,2,50.00,100.00",
		"INV-1002,100.00,10.00,110.00,Widget,2,50.00,100.00",
	})
	ctx := context.Background()

	id, err := env.svc.Submit(ctx, buildArchive(t, "inv1.jpg", "inv2.png", "bad.jpg"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	events := drain(t, env.svc.StreamStatus(ctx, id))
	require.NotEmpty(t, events)

	var progress []int
	partials, finals := 0, 0
	for _, ev := range events {
		switch ev.Type {
		case stream.EventProgress:
			progress = append(progress, ev.Percentage)
		case stream.EventPartialResult:
			partials++
		case stream.EventFinal:
			finals++
		}
	}
	assert.Equal(t, []int{33, 66, 100}, progress)
	assert.Equal(t, 1, partials)
	assert.Equal(t, 1, finals)

	final := events[len(events)-1]
	assert.Equal(t, stream.EventFinal, final.Type)
	assert.Equal(t, constants.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	// one failing item drops out; the others flatten to one row per line item
	assert.Equal(t, 2, final.Result.RowsProcessed)

	job, err := env.svc.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ItemsProcessed)
	require.NotNil(t, job.Validation)
	assert.Equal(t, 2, job.Validation.TotalInvoices)
	assert.Equal(t, 2, job.Validation.ValidInvoices)

	// processed sink exists, relational sink holds the rows
	_, err = os.Stat(env.processedPath)
	require.NoError(t, err)
	persisted, err := env.rows.ReadRecords(ctx, "extracted_invoices")
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestSubmitArchiveWithoutImages(t *testing.T) {
	infer := func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("must not be called")
	}
	env := newTestEnv(t, infer, nil)
	ctx := context.Background()

	id, err := env.svc.Submit(ctx, buildArchive(t, "notes.txt"))
	require.NoError(t, err)

	events := drain(t, env.svc.StreamStatus(ctx, id))
	require.Len(t, events, 1)
	assert.Equal(t, stream.EventFinal, events[0].Type)
	assert.Equal(t, constants.JobStatusCompleted, events[0].Status)
	assert.Equal(t, "no items", events[0].Message)
	assert.Zero(t, events[0].ItemsTotal)
}

func TestSubmitCorruptArchiveFailsJob(t *testing.T) {
	infer := func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("must not be called")
	}
	env := newTestEnv(t, infer, nil)
	ctx := context.Background()

	id, err := env.svc.Submit(ctx, []byte("not a zip archive"))
	require.NoError(t, err)

	events := drain(t, env.svc.StreamStatus(ctx, id))
	final := events[len(events)-1]
	assert.Equal(t, stream.EventFinal, final.Type)
	assert.Equal(t, constants.JobStatusFailed, final.Status)
	assert.Contains(t, final.Message, "error during processing")
}

func TestStreamValidationAfterCompletion(t *testing.T) {
	infer := func(_ context.Context, _, _ string) (string, error) {
		return payloadFor("INV-1001"), nil
	}
	env := newTestEnv(t, infer, []string{
		"INV-1001,100.00,10.00,199.99,Widget,2,50.00,100.00",
	})
	ctx := context.Background()

	id, err := env.svc.Submit(ctx, buildArchive(t, "inv1.jpg"))
	require.NoError(t, err)
	drain(t, env.svc.StreamStatus(ctx, id))

	var events []validate.Event
	for ev := range env.svc.StreamValidation(ctx, id) {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, validate.EventRecord, events[0].Type)
	assert.Equal(t, "INV-1001", events[0].Record.InvoiceNumber)
	assert.False(t, events[0].Record.IsValid)
	assert.Contains(t, events[0].Record.Discrepancies[0], "total mismatch")
	assert.Equal(t, validate.EventSummary, events[1].Type)
	assert.Equal(t, 1, events[1].Summary.InvalidInvoices)
}

func TestStreamValidationWhileStillProcessing(t *testing.T) {
	release := make(chan struct{})
	infer := func(ctx context.Context, _, _ string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return payloadFor("INV-1001"), nil
	}
	env := newTestEnv(t, infer, nil)
	ctx := context.Background()

	id, err := env.svc.Submit(ctx, buildArchive(t, "inv1.jpg"))
	require.NoError(t, err)

	// the job cannot have completed yet; validation reports pending
	var events []validate.Event
	for ev := range env.svc.StreamValidation(ctx, id) {
		events = append(events, ev)
	}
	close(release)

	require.Len(t, events, 1)
	assert.Equal(t, validate.EventPending, events[0].Type)

	drain(t, env.svc.StreamStatus(ctx, id))
}
