package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/askdoc/internal/testutil"
	"github.com/xhad/askdoc/pkg/config"
	"github.com/xhad/askdoc/pkg/llm"
	"github.com/xhad/askdoc/pkg/session"
)

// lockedBuffer tolerates the spinner's render goroutine writing concurrently.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := "llm:\n  provider: googleai\nloader:\n  temp_dir: " + dir + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fakeSessions(t *testing.T) {
	t.Helper()
	orig := newSession
	newSession = func(_ context.Context, cfg *config.Config, _ string) (*session.Session, error) {
		return session.Assemble(cfg, &llm.Provider{
			Chat:       &testutil.ChatModel{Response: testutil.StringPtr("The capital of France is Paris.")},
			Embeddings: &testutil.EmbeddingClient{},
		})
	}
	t.Cleanup(func() { newSession = orig })
}

func TestChat(t *testing.T) {
	fakeSessions(t)
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "sample.pdf")
	require.NoError(t, os.WriteFile(pdfPath, testutil.BuildPDF("Intro.", "The capital of France is Paris."), 0o600))

	var stdout, stderr lockedBuffer
	code := realMain(context.Background(), []string{
		"-config", writeConfig(t, dir),
		"-env-file", filepath.Join(dir, "none.env"),
		"-file", pdfPath,
	}, func(string) string { return "test-key" }, streams{
		in:  strings.NewReader("What is the capital of France?\n\nexit\n"),
		out: &stdout,
		err: &stderr,
	})

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Document processed into 1 chunks")
	assert.Contains(t, stdout.String(), "Assistant: The capital of France is Paris.")
}

func TestMissingCredential(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "sample.pdf")
	require.NoError(t, os.WriteFile(pdfPath, testutil.BuildPDF("text"), 0o600))

	var stdout, stderr bytes.Buffer
	code := realMain(context.Background(), []string{
		"-config", writeConfig(t, dir),
		"-env-file", filepath.Join(dir, "none.env"),
		"-file", pdfPath,
	}, func(string) string { return "" }, streams{in: strings.NewReader(""), out: &stdout, err: &stderr})

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "GOOGLE_API_KEY not found")
}

func TestArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no file", args: nil, want: "-file"},
		{name: "not a pdf", args: []string{"-file", "notes.txt"}, want: "only PDF files are accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := realMain(context.Background(), tt.args, func(string) string { return "" },
				streams{in: strings.NewReader(""), out: &bytes.Buffer{}, err: &stderr})
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}

func TestUnreadablePDF(t *testing.T) {
	fakeSessions(t)
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(pdfPath, nil, 0o600))

	var stderr lockedBuffer
	code := realMain(context.Background(), []string{
		"-config", writeConfig(t, dir),
		"-env-file", filepath.Join(dir, "none.env"),
		"-file", pdfPath,
	}, func(string) string { return "test-key" }, streams{in: strings.NewReader(""), out: &lockedBuffer{}, err: &stderr})

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "failed to process document")
}
