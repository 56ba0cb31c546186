package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/kiwi/characters/internal/config"
	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/ai"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/store/sqlite"
)

var cast = []string{"Ahmed", "Fatima", "Omar"}

// scriptedClient names every cast member found in a prompt and embeds each
// of them on its own axis.
type scriptedClient struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *scriptedClient) GenerateCompletionWithFormat(
	_ context.Context,
	name string,
	_ string,
	prompt string,
	out any,
	_ ...ai.GenerateOption,
) error {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()

	var found []string
	for _, n := range cast {
		if strings.Contains(prompt, n) {
			found = append(found, n)
		}
	}

	var reply any
	switch name {
	case "name_query":
		entries := make([]ai.NameEntry, 0, len(found))
		for _, n := range found {
			entries = append(entries, ai.NameEntry{Name: n})
		}
		reply = ai.NamesResponse{Characters: entries}
	case "summary":
		reply = ai.SummaryResponse{Summary: "The story so far mentions " + strings.Join(found, ", ")}
	case "profile_refresher":
		profiles := make([]ai.ProfileData, 0, len(found))
		for _, n := range found {
			profiles = append(profiles, ai.ProfileData{Name: n, Role: "villager"})
		}
		reply = ai.ProfileDiffResponse{Profiles: profiles}
	default:
		return fmt.Errorf("unexpected prompt %s", name)
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *scriptedClient) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	v := make([]float32, len(cast)+1)
	v[len(cast)] = 1
	for i, n := range cast {
		if bytes.Contains(input, []byte(n)) {
			v = make([]float32, len(cast)+1)
			v[i] = 1
			break
		}
	}
	return v, nil
}

func (c *scriptedClient) ResetMetrics()               {}
func (c *scriptedClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func useScriptedClient(t *testing.T) *scriptedClient {
	t.Helper()
	client := &scriptedClient{calls: map[string]int{}}
	prev := newAIClient
	newAIClient = func(context.Context, config.AI) (ai.Client, error) {
		return client, nil
	}
	t.Cleanup(func() { newAIClient = prev })
	return client
}

// writeConfig points the checkpoint database into dir and keeps chunks small.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(dir, "kiwi.yaml")
	content := fmt.Sprintf(`checkpoint_db: %s
ai:
  chat_model: chat
  embed_model: embed
pipeline:
  chunk_size: 40
  chunk_overlap: 0
  skip_validation: true
`, filepath.Join(dir, "checkpoints.db"))
	mustWriteFile(t, path, content)
	return path
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand("test")
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type line struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id"`
	BookID  string `json:"book_id"`
	Outcome string `json:"outcome"`
	Total   int    `json:"total_chunks"`
}

func parseLines(t *testing.T, out string) []line {
	t.Helper()
	var lines []line
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("expected JSON line, got %q: %v", sc.Text(), err)
		}
		lines = append(lines, l)
	}
	return lines
}

func results(lines []line) map[string]line {
	out := map[string]line{}
	for _, l := range lines {
		if l.Type == resultType {
			out[l.BookID] = l
		}
	}
	return out
}

func TestAnalyzeAndResumeFinishedRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	client := useScriptedClient(t)

	book := filepath.Join(dir, "market.txt")
	mustWriteFile(t, book, "Ahmed walks into the old market.\n\nFatima waits by the river bank.")
	runID := util.NewRunID()

	out, err := execute(t, "analyze", "--config", cfgPath, "--run-id", runID, book)
	if err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, out)
	}
	res, ok := results(parseLines(t, out))["market"]
	if !ok {
		t.Fatalf("expected result for book market, got %s", out)
	}
	if res.Outcome != "completed" || res.RunID != runID {
		t.Fatalf("expected completed run %s, got %+v", runID, res)
	}
	if res.Total < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", res.Total)
	}
	if client.calls["name_query"] == 0 || client.calls["profile_refresher"] == 0 {
		t.Fatalf("expected model calls, got %v", client.calls)
	}

	out, err = execute(t, "resume", "--config", cfgPath, runID)
	if err != nil {
		t.Fatalf("resume failed: %v\n%s", err, out)
	}
	lines := parseLines(t, out)
	if len(lines) != 1 || lines[0].Outcome != "finished" {
		t.Fatalf("expected one finished result, got %+v", lines)
	}
}

func TestAnalyzeParallelBooks(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	useScriptedClient(t)

	var files []string
	for i, n := range cast {
		path := filepath.Join(dir, fmt.Sprintf("book%d.txt", i))
		mustWriteFile(t, path, n+" walks into the old market.")
		files = append(files, path)
	}

	args := append([]string{"analyze", "--config", cfgPath, "--parallel", "2"}, files...)
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("analyze failed: %v\n%s", err, out)
	}
	got := results(parseLines(t, out))
	for i := range cast {
		id := fmt.Sprintf("book%d", i)
		if got[id].Outcome != "completed" {
			t.Fatalf("expected %s to complete, got %+v", id, got[id])
		}
	}
}

func TestAnalyzeReportsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	useScriptedClient(t)

	good := filepath.Join(dir, "good.txt")
	mustWriteFile(t, good, "Omar sells bread near the gate.")
	missing := filepath.Join(dir, "missing.txt")

	out, err := execute(t, "analyze", "--config", cfgPath, good, missing)
	if err == nil || !strings.Contains(err.Error(), "missing.txt") {
		t.Fatalf("expected error naming missing.txt, got %v", err)
	}
	if results(parseLines(t, out))["good"].Outcome != "completed" {
		t.Fatalf("expected good book to complete, got %s", out)
	}
}

func TestAnalyzeFlagValidation(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	useScriptedClient(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"parallel", []string{"--parallel", "0", "a.txt"}, "--parallel"},
		{"book id with many files", []string{"--book-id", "x", "a.txt", "b.txt"}, "exactly one file"},
		{"run id", []string{"--run-id", "not-a-uuid", "a.txt"}, "invalid run id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"analyze", "--config", cfgPath}, tt.args...)
			_, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestPause(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	ctx := context.Background()

	db, err := sqlite.Open(ctx, filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, cp := range []store.Checkpoint{
		{RunID: "running", BookID: "b", Status: store.StatusRunning, State: json.RawMessage(`{}`)},
		{RunID: "done", BookID: "b", Status: store.StatusCompleted, State: json.RawMessage(`{}`)},
	} {
		if err := db.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := execute(t, "pause", "--config", cfgPath, "running"); err != nil {
		t.Fatalf("expected pause to succeed, got %v", err)
	}
	if _, err := execute(t, "pause", "--config", cfgPath, "done"); err == nil {
		t.Fatalf("expected error pausing a completed run")
	}
	if _, err := execute(t, "pause", "--config", cfgPath, "unknown"); err == nil {
		t.Fatalf("expected error pausing an unknown run")
	}

	db, err = sqlite.Open(ctx, filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	paused, err := db.PauseRequested(ctx, "running")
	if err != nil || !paused {
		t.Fatalf("expected pause flag, got %v %v", paused, err)
	}
}

func TestDatabaseCommandsNeedDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	for _, args := range [][]string{
		{"migrate", "--config", cfgPath},
		{"characters", "--config", cfgPath, "book"},
	} {
		_, err := execute(t, args...)
		if !errors.Is(err, errNoDatabase) {
			t.Fatalf("%s: expected errNoDatabase, got %v", args[0], err)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || out != "kiwi test\n" {
		t.Fatalf("expected version line, got %q %v", out, err)
	}
}
