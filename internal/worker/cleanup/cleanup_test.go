package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockAudit struct {
	before time.Time
	count  int64
	err    error
	calls  int
}

func (m *mockAudit) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	m.calls++
	m.before = before
	return m.count, m.err
}

type mockTokens struct {
	now   time.Time
	count int64
	err   error
	calls int
}

func (m *mockTokens) ClearExpiredPortalTokens(_ context.Context, now time.Time) (int64, error) {
	m.calls++
	m.now = now
	return m.count, m.err
}

type mockRecorder struct {
	counts map[string]int64
}

func (m *mockRecorder) RecordCleanup(kind string, count int64) {
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[kind] += count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

var fixedNow = time.Date(2026, 6, 30, 3, 0, 0, 0, time.UTC)

func newTestJob(audit *mockAudit, tokens *mockTokens, rec *mockRecorder, buf *bytes.Buffer) *CleanupJob {
	job := NewCleanupJob(audit, tokens, rec, newTestLogger(buf))
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockAudit{}, &mockTokens{}, nil, newTestLogger(&buf))
	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestRun_UsesRetentionCutoffAndCurrentTime(t *testing.T) {
	var buf bytes.Buffer
	audit := &mockAudit{count: 12}
	tokens := &mockTokens{count: 3}
	rec := &mockRecorder{}
	job := newTestJob(audit, tokens, rec, &buf)
	job.RetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := fixedNow.AddDate(0, 0, -30); !audit.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", audit.before, want)
	}
	if !tokens.now.Equal(fixedNow) {
		t.Errorf("token cutoff = %v, want %v", tokens.now, fixedNow)
	}
	if rec.counts["audit_logs"] != 12 || rec.counts["portal_tokens"] != 3 {
		t.Errorf("recorded = %v", rec.counts)
	}
}

func TestRun_LogsCounts(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockAudit{count: 7}, &mockTokens{count: 2}, nil, &buf)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log is not JSON: %v (%s)", err, buf.String())
	}
	if entry["deleted_audit_logs"] != float64(7) || entry["cleared_portal_tokens"] != float64(2) {
		t.Errorf("log entry = %v", entry)
	}
	if entry["retention_days"] != float64(90) {
		t.Errorf("retention_days = %v", entry["retention_days"])
	}
}

func TestRun_AuditFailure_StillClearsTokens(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("connection refused")
	audit := &mockAudit{err: boom}
	tokens := &mockTokens{count: 1}
	rec := &mockRecorder{}
	job := newTestJob(audit, tokens, rec, &buf)

	err := job.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if tokens.calls != 1 {
		t.Error("token cleanup should still run")
	}
	if _, ok := rec.counts["audit_logs"]; ok {
		t.Error("failed step should not be recorded")
	}
	if !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("error should be logged: %s", buf.String())
	}
}

func TestRun_BothFail_JoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	e1, e2 := errors.New("audit"), errors.New("tokens")
	job := newTestJob(&mockAudit{err: e1}, &mockTokens{err: e2}, nil, &buf)

	err := job.Run(context.Background())
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("err = %v", err)
	}
}

// syncBuffer はゴルーチンから書き込まれるログを安全に読むためのバッファ。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf syncBuffer
	job := NewCleanupJob(&mockAudit{}, &mockTokens{}, nil, slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if strings.Contains(buf.String(), "クリーンアップジョブが完了しました") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first run did not happen")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
