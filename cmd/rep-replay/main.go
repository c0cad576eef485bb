// Command rep-replay runs a recorded pose log through one rep tracker and
// prints every completed rep followed by a session summary. Optionally the
// session is persisted to SQLite and the reps are plotted.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/rep.report/internal/config"
	"github.com/banshee-data/rep.report/internal/db"
	"github.com/banshee-data/rep.report/internal/monitoring"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/poselog"
	"github.com/banshee-data/rep.report/internal/profile"
	"github.com/banshee-data/rep.report/internal/report"
	"github.com/banshee-data/rep.report/internal/tracker"
	"github.com/banshee-data/rep.report/internal/version"
)

var (
	profileName = flag.String("profile", "bicep_curl", "built-in exercise profile ("+strings.Join(config.BuiltinNames(), ", ")+")")
	profileFile = flag.String("profile-file", "", "path to a JSON or YAML profile (overrides -profile)")
	sideFlag    = flag.String("side", "", "limb to measure: left or right (default: profile's default side)")
	inputPath   = flag.String("input", "-", "pose log in JSON-lines form, - for stdin")
	dbPath      = flag.String("db", "", "SQLite file to record the session in")
	plotPath    = flag.String("plot", "", "write rep angle trajectories to this image (.png, .svg, .pdf)")
	chartPath   = flag.String("chart", "", "write per-rep score chart to this HTML file")
	debug       = flag.Bool("debug", false, "log per-frame pipeline traces")
	showVersion = flag.Bool("version", false, "print version and exit")
)

type options struct {
	profileName string
	profileFile string
	side        string
	input       string
	dbPath      string
	plotPath    string
	chartPath   string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	opts := options{
		profileName: *profileName,
		profileFile: *profileFile,
		side:        *sideFlag,
		input:       *inputPath,
		dbPath:      *dbPath,
		plotPath:    *plotPath,
		chartPath:   *chartPath,
	}

	in := io.Reader(os.Stdin)
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	if err := run(opts, in, os.Stdout); err != nil {
		log.Fatalf("rep-replay: %v", err)
	}
}

func loadProfile(name, file string) (profile.Profile, error) {
	if file == "" {
		return profile.Builtin(name)
	}
	cfg, err := config.LoadProfileConfig(file)
	if err != nil {
		return profile.Profile{}, err
	}
	return profile.New(cfg)
}

func run(opts options, in io.Reader, out io.Writer) error {
	p, err := loadProfile(opts.profileName, opts.profileFile)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	side := p.DefaultSide
	if opts.side != "" {
		if side, err = pose.ParseSide(opts.side); err != nil {
			return err
		}
	}

	printer := tracker.ListenerFunc(func(r tracker.CompletedRep) {
		fmt.Fprintln(out, formatRep(r))
	})
	trOpts := []tracker.Option{tracker.WithListener(printer)}

	var store *db.DB
	var recorder *db.RepRecorder
	if opts.dbPath != "" {
		if store, err = db.OpenDB(opts.dbPath); err != nil {
			return err
		}
		defer store.Close()
		recorder = db.NewRepRecorder(store)
		trOpts = append(trOpts, tracker.WithListener(recorder))
	}

	tr := tracker.New(p, trOpts...)
	if side != p.DefaultSide {
		tr.SetActiveSide(side)
	}
	if store != nil {
		if err := store.CreateSession(tr.SessionID(), p.Name, side.String(), time.Now()); err != nil {
			return err
		}
	}
	log.Printf("replaying %s (%s side), session %s", p.Name, side, tr.SessionID())

	r := poselog.NewReader(in)
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		tr.Process(f)
	}

	sum := tr.Summary()
	fmt.Fprint(out, formatSummary(sum))

	if store != nil {
		if err := store.EndSession(sum, time.Now()); err != nil {
			return err
		}
		if n := recorder.Failed(); n > 0 {
			log.Printf("%d reps could not be recorded in %s", n, opts.dbPath)
		}
	}

	reps := tr.History()
	if len(reps) == 0 {
		if opts.plotPath != "" || opts.chartPath != "" {
			log.Printf("no reps completed, skipping plot and chart")
		}
		return nil
	}
	if opts.plotPath != "" {
		if err := report.PlotTrajectories(reps, opts.plotPath); err != nil {
			return err
		}
		log.Printf("wrote %s", opts.plotPath)
	}
	if opts.chartPath != "" {
		if err := writeChart(opts.chartPath, p.Name, reps); err != nil {
			return err
		}
		log.Printf("wrote %s", opts.chartPath)
	}
	return nil
}

func writeChart(path, title string, reps []tracker.CompletedRep) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.RenderFormChart(f, title, reps); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatRep(r tracker.CompletedRep) string {
	s := fmt.Sprintf("rep %d  rom=%s (%.0f-%.0f)  smooth=%.0f  tempo=%s (%.2fs)  form=%.1f",
		r.Number, r.ROM.Label, r.ROM.Min, r.ROM.Max, r.Smoothness,
		r.Tempo.Label, r.Tempo.Duration.Seconds(), r.FormScore)
	if r.Stability.Present {
		s += fmt.Sprintf("  stability=%.0f", r.Stability.Score)
	}
	if r.TooShort {
		s += "  [too short]"
	}
	return s
}

func formatSummary(s tracker.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %s\n", s.SessionID, s.Exercise)
	fmt.Fprintf(&b, "  frames     %d\n", s.Frames)
	fmt.Fprintf(&b, "  reps       %d (flagged %d, discarded %d)\n", s.Counted, s.Flagged, s.Discarded)
	fmt.Fprintf(&b, "  form       avg %.1f, best %.1f, stddev %.1f\n", s.AverageForm, s.BestForm, s.Consistency)
	labels := make([]string, 0, len(s.ROMLabels))
	for l := range s.ROMLabels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(&b, "  rom %-10s %d\n", l, s.ROMLabels[l])
	}
	return b.String()
}
