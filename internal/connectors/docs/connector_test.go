package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, c *Connector, since time.Time) []domain.DocumentChange {
	t.Helper()
	changesCh, errsCh := c.ListDocumentsSince(context.Background(), since)
	var changes []domain.DocumentChange
	for change := range changesCh {
		changes = append(changes, change)
	}
	require.NoError(t, <-errsCh)
	return changes
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := writeFile(t, t.TempDir(), "f.md", "x")
	_, err = New(file)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCapabilitiesIndexOnly(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	caps := c.Capabilities()
	assert.True(t, caps.SupportsIndexing)
	assert.False(t, caps.SupportsLiveFetch)

	_, err = c.LiveFetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNotSupported)
}

func TestListDocumentsSinceWalksMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "onboarding.md", "# Onboarding Guide\n\nWelcome to the team.")
	writeFile(t, dir, "runbooks/deploy.md", "# Deploy Runbook\n\nSteps to deploy.")
	writeFile(t, dir, "assets/logo.png", "not text")
	writeFile(t, dir, ".hidden/secret.md", "# Hidden")

	c, err := New(dir)
	require.NoError(t, err)

	changes := collect(t, c, time.Time{})
	require.Len(t, changes, 2, "only markdown outside hidden directories")

	byID := make(map[string]domain.Document)
	for _, change := range changes {
		assert.Equal(t, domain.ChangeUpserted, change.Type)
		byID[change.Document.ID] = change.Document
	}

	doc, ok := byID["docs:onboarding.md"]
	require.True(t, ok)
	assert.Equal(t, "Onboarding Guide", doc.Title)
	assert.Contains(t, doc.Body, "Welcome to the team.")
	assert.Equal(t, domain.SourceDocs, doc.Kind)

	_, ok = byID["docs:runbooks/deploy.md"]
	assert.True(t, ok)
}

func TestListDocumentsSinceSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.md", "# Old")

	c, err := New(dir)
	require.NoError(t, err)

	changes := collect(t, c, time.Now().Add(time.Hour))
	assert.Empty(t, changes, "files older than the checkpoint are skipped")
}

func TestTitleFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "no heading here, just text")

	c, err := New(dir)
	require.NoError(t, err)

	changes := collect(t, c, time.Time{})
	require.Len(t, changes, 1)
	assert.Equal(t, "notes", changes[0].Document.Title)
}

func TestWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	go func() {
		_ = c.Watch(ctx, 10*time.Millisecond, func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "new.md", "# New Doc")

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire on file creation")
	}
}
