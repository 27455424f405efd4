// Command trackplot renders the telemetry of a run as PNG and HTML charts.
// Input is either a CSV log or a run stored in the run database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trackrunner/internal/fsutil"
	"github.com/banshee-data/trackrunner/internal/report"
	"github.com/banshee-data/trackrunner/internal/steering"
	"github.com/banshee-data/trackrunner/internal/telemetry"
	"github.com/banshee-data/trackrunner/internal/version"
)

var (
	csvPath     = flag.String("csv", "", "CSV telemetry log to plot")
	dbPath      = flag.String("db", "", "Run database to read from")
	runID       = flag.String("run", "", "Run id in -db (latest when empty)")
	list        = flag.Bool("list", false, "List the runs in -db and exit")
	pngOut      = flag.String("png", "", "Write a PNG plot to this file")
	htmlOut     = flag.String("html", "", "Write an HTML report to this file")
	title       = flag.String("title", "", "Chart title")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trackplot"))
		return
	}

	if err := run(fsutil.OSFileSystem{}, os.Stdout); err != nil {
		log.Fatalf("trackplot: %v", err)
	}
}

func run(fs fsutil.FileSystem, out io.Writer) error {
	if (*csvPath == "") == (*dbPath == "") {
		return errors.New("exactly one of -csv or -db is required")
	}

	if *list {
		if *dbPath == "" {
			return errors.New("-list needs -db")
		}
		db, err := telemetry.OpenDB(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		return listRuns(db, out)
	}

	if *pngOut == "" && *htmlOut == "" {
		return errors.New("nothing to do: set -png and/or -html")
	}

	samples, label, err := loadSamples(fs)
	if err != nil {
		return err
	}
	opts := report.Options{Title: *title}
	if opts.Title == "" {
		opts.Title = label
	}

	fmt.Fprintf(out, "%s: %s\n", label, telemetry.Summarize(samples, steering.MaxSpeed))
	if *pngOut != "" {
		if err := report.WritePNG(fs, *pngOut, samples, opts); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *pngOut)
	}
	if *htmlOut != "" {
		if err := report.WriteHTMLFile(fs, *htmlOut, samples, opts); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *htmlOut)
	}
	return nil
}

func loadSamples(fs fsutil.FileSystem) ([]telemetry.Sample, string, error) {
	if *csvPath != "" {
		f, err := fs.Open(*csvPath)
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", *csvPath, err)
		}
		defer f.Close()
		rows, err := telemetry.ReadCSV(f)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", *csvPath, err)
		}
		return report.SamplesFromRows(rows), *csvPath, nil
	}

	db, err := telemetry.OpenDB(*dbPath)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()

	id := *runID
	if id == "" {
		runs, err := db.Runs()
		if err != nil {
			return nil, "", err
		}
		if len(runs) == 0 {
			return nil, "", fmt.Errorf("no runs in %s", *dbPath)
		}
		id = runs[0].ID
	}
	samples, err := db.Samples(id)
	if err != nil {
		return nil, "", err
	}
	return samples, "run " + id, nil
}

func listRuns(db *telemetry.DB, out io.Writer) error {
	runs, err := db.Runs()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tSAMPLES\tBASE\tKP\tKD\tKI\tEXIT")
	for _, r := range runs {
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		exit := r.ExitReason
		if exit == "" {
			exit = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%g\t%g\t%g\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), dur, r.Samples, r.BaseSpeed, r.Kp, r.Kd, r.Ki, exit)
	}
	return tw.Flush()
}
