package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/mark3labs/mcp-go/mcp"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*Service, *db.Record) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s := interview.NewSession([]string{"Alice", "Bob"}, []string{"Teamwork?", "Conflict?"}, t0)
	s.Questions[0].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Alice", `I said "yes", then stopped`, t0.Add(10*time.Second)),
		interview.NewPending("Bob", 4, t0.Add(11*time.Second)),
		interview.NewResolved("Bob", "   ", t0.Add(12*time.Second)),
	}
	s.Questions[1].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Bob", "We talked it through.", t0.Add(70*time.Second)),
	}
	s.State = interview.StateEnded
	rec := db.NewRecord(s, t0.Add(2*time.Minute))
	if err := store.Put(rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	return New(store), rec
}

func TestList(t *testing.T) {
	svc, rec := seed(t)

	list, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %d, want 1", len(list))
	}
	if list[0].ID != rec.ID || list[0].Entries != 2 || list[0].TotalQuestions != 2 {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestGetStripsPending(t *testing.T) {
	svc, rec := seed(t)

	got, err := svc.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, e := range got.FullSessionData.Questions[0].Transcript {
		if e.IsPending() {
			t.Errorf("pending entry exported: %+v", e)
		}
	}
	if _, err := svc.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestWriteCSV(t *testing.T) {
	svc, rec := seed(t)
	got, _ := svc.Get(rec.ID)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, got); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != "Question_Number,Question,Speaker,Text,Timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][2] != "Alice" || rows[1][3] != `I said "yes", then stopped` {
		t.Errorf("row 1 = %v", rows[1])
	}
	if rows[2][0] != "2" || rows[2][1] != "Conflict?" || rows[2][4] != "2026-03-01T10:01:10Z" {
		t.Errorf("row 2 = %v", rows[2])
	}
}

func TestWriteJSON(t *testing.T) {
	svc, rec := seed(t)
	got, _ := svc.Get(rec.ID)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, got); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var back db.Record
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.ID != rec.ID || len(back.FullSessionData.Questions[0].Transcript) != 2 {
		t.Errorf("exported record = %+v", back)
	}
	if strings.Contains(buf.String(), interview.PendingText) {
		t.Error("export contains a pending placeholder")
	}
}

func TestDeleteAndClear(t *testing.T) {
	svc, rec := seed(t)

	if err := svc.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing: err = %v", err)
	}
	if err := svc.Delete(rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, err := svc.Clear(); err != nil || n != 0 {
		t.Errorf("Clear = %d, %v, want 0", n, err)
	}
}

func TestFileName(t *testing.T) {
	rec := &db.Record{Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)}
	if got := FileName(rec, "csv"); got != "interview-2026-03-01-1000.csv" {
		t.Errorf("FileName = %q", got)
	}
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestMCPTools(t *testing.T) {
	svc, rec := seed(t)
	ctx := context.Background()

	res, err := svc.listTool(ctx, callTool(nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(resultText(t, res), rec.ID) {
		t.Error("list result missing interview id")
	}

	res, _ = svc.exportTool(ctx, callTool(map[string]any{"id": rec.ID, "format": "csv"}))
	if !strings.HasPrefix(resultText(t, res), "Question_Number,") {
		t.Errorf("export = %q", resultText(t, res))
	}

	res, _ = svc.getTool(ctx, callTool(map[string]any{"id": "missing"}))
	if !res.IsError {
		t.Error("get missing: expected tool error")
	}

	res, _ = svc.clearTool(ctx, callTool(map[string]any{"confirm": false}))
	if !res.IsError {
		t.Error("clear without confirm: expected tool error")
	}

	res, _ = svc.deleteTool(ctx, callTool(map[string]any{"id": rec.ID}))
	if res.IsError {
		t.Errorf("delete: %s", resultText(t, res))
	}
	if list, _ := svc.List(); len(list) != 0 {
		t.Errorf("list after delete = %d", len(list))
	}
}
