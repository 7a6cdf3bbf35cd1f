package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherIngestsNewFiles(t *testing.T) {
	in, db, dir := setupPipelineTest(t)

	w, err := NewWatcher(in, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	reports := make(chan *FileReport, 4)
	w.OnReport(func(fr *FileReport) { reports <- fr })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := writeFile(t, filepath.Join(dir, "fresh.txt"), "Freshly written.")

	select {
	case fr := <-reports:
		assert.Equal(t, path, fr.Path)
		assert.True(t, fr.OK())
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not ingest the new file")
	}

	c, err := db.Get(context.Background(), "fresh.txt_sentence_1")
	require.NoError(t, err)
	assert.NotNil(t, c)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherRejectsFile(t *testing.T) {
	in, _, dir := setupPipelineTest(t)
	w, err := NewWatcher(in, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	file := writeFile(t, filepath.Join(dir, "x.txt"), "x")
	assert.ErrorIs(t, w.Add(file), ErrNotDirectory)
}

func TestWatcherReportsUnreadableTree(t *testing.T) {
	in, _, dir := setupPipelineTest(t)
	w, err := NewWatcher(in, 0, nil)
	require.NoError(t, err)
	defer w.Close()

	var got []*FileReport
	w.OnReport(func(fr *FileReport) { got = append(got, fr) })

	gone := filepath.Join(dir, "gone")
	w.scheduleTree(context.Background(), gone)

	require.Len(t, got, 1)
	assert.Equal(t, gone, got[0].Path)
	assert.Equal(t, StatusReadError, got[0].Status)
}
