package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackrunner/internal/fsutil"
	"github.com/banshee-data/trackrunner/internal/telemetry"
)

// setFlags points the package flags at the given values for one test.
func setFlags(t *testing.T, csv, db, png, html string, listRuns bool) {
	t.Helper()
	oldCSV, oldDB, oldPNG, oldHTML, oldList := *csvPath, *dbPath, *pngOut, *htmlOut, *list
	*csvPath, *dbPath, *pngOut, *htmlOut, *list = csv, db, png, html, listRuns
	t.Cleanup(func() {
		*csvPath, *dbPath, *pngOut, *htmlOut, *list = oldCSV, oldDB, oldPNG, oldHTML, oldList
	})
}

func writeCSV(t *testing.T, mfs *fsutil.MemoryFileSystem, path string) {
	t.Helper()
	sink, err := telemetry.NewCSVSink(mfs, path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Record(telemetry.Sample{Heading: float64(i) / 10, Diff: float64(i * 40)}))
	}
	require.NoError(t, sink.Close())
}

func TestRun_FromCSV(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	writeCSV(t, mfs, "run.csv")
	setFlags(t, "run.csv", "", "run.png", "run.html", false)

	var out bytes.Buffer
	require.NoError(t, run(mfs, &out))

	assert.Contains(t, out.String(), "5 samples")
	assert.True(t, mfs.Exists("run.png"))
	assert.True(t, mfs.Exists("run.html"))
}

func TestRun_FromDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := telemetry.OpenDB(path)
	require.NoError(t, err)
	start := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	sink, err := db.NewRun(telemetry.RunInfo{StartedAt: start, BaseSpeed: 40, Kp: 400, Kd: 10})
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, sink.Record(telemetry.Sample{Seq: i, Elapsed: time.Duration(i) * 30 * time.Millisecond, Left: 40, Right: 40}))
	}
	require.NoError(t, sink.Finish(start.Add(30*time.Second), "deadline"))
	require.NoError(t, db.Close())

	mfs := fsutil.NewMemoryFileSystem()
	setFlags(t, "", path, "", "out.html", false)
	var out bytes.Buffer
	require.NoError(t, run(mfs, &out))
	assert.Contains(t, out.String(), "run "+sink.ID())
	assert.True(t, mfs.Exists("out.html"))

	setFlags(t, "", path, "", "", true)
	out.Reset()
	require.NoError(t, run(mfs, &out))
	assert.Contains(t, out.String(), sink.ID())
	assert.Contains(t, out.String(), "30s")
	assert.Contains(t, out.String(), "deadline")
}

func TestRun_FlagErrors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()

	setFlags(t, "", "", "x.png", "", false)
	assert.ErrorContains(t, run(mfs, io.Discard), "exactly one of -csv or -db")

	setFlags(t, "a.csv", "b.db", "x.png", "", false)
	assert.ErrorContains(t, run(mfs, io.Discard), "exactly one of -csv or -db")

	setFlags(t, "a.csv", "", "", "", false)
	assert.ErrorContains(t, run(mfs, io.Discard), "nothing to do")

	setFlags(t, "a.csv", "", "", "", true)
	assert.ErrorContains(t, run(mfs, io.Discard), "-list needs -db")

	setFlags(t, "missing.csv", "", "x.png", "", false)
	assert.ErrorContains(t, run(mfs, io.Discard), "open missing.csv")
}
