// Command uncoresim drives the core against a newline-delimited
// reference trace read from stdin, and prints a stats.Snapshot report
// to stdout once the trace is exhausted.
//
// Each line is one reference: "process thread kind addr issue_time",
// kind one of R, W, WB. Blank lines and lines starting with # are
// skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/prime-uncore/config"
	"github.com/joeycumines/prime-uncore/simlog"
	"github.com/joeycumines/prime-uncore/stats"
	"github.com/joeycumines/prime-uncore/trace"
	"github.com/joeycumines/prime-uncore/uncore"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "uncoresim:", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out, logw io.Writer) error {
	fs := flag.NewFlagSet("uncoresim", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the TOML configuration file")
	verbose := fs.Bool("v", false, "log at Debug instead of Info")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("missing required -config flag")
	}

	level := logiface.LevelInformational
	if *verbose {
		level = logiface.LevelDebug
	}
	log := simlog.New(logw, level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	d, err := uncore.New(cfg.Build(), log)
	if err != nil {
		return err
	}

	numThreads := cfg.Simulator.NumRecvThreads
	if numThreads <= 0 {
		numThreads = 1
	}

	lanes := make([]chan trace.Ref, numThreads)
	for i := range lanes {
		lanes[i] = make(chan trace.Ref, 64)
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i, lane := range lanes {
		i, lane := i, lane
		g.Go(func() error {
			for ref := range lane {
				if _, err := d.Access(ref.Process, ref.Thread, ref, ref.IssueAt); err != nil {
					return fmt.Errorf("receiver %d: process %d thread %d addr %#x: %w", i, ref.Process, ref.Thread, ref.Addr, err)
				}
			}
			return nil
		})
	}

	// A worker that errors out stops draining its lane; select against
	// ctx.Done() so a still-scanning producer doesn't block forever on
	// a now-abandoned channel.
	scanErr := scanRefs(in, func(ref trace.Ref) bool {
		lane := lanes[ref.Thread%len(lanes)]
		select {
		case lane <- ref:
			return true
		case <-ctx.Done():
			return false
		}
	})
	for _, lane := range lanes {
		close(lane)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}

	fmt.Fprint(out, stats.Collect(d).String())
	return nil
}

// scanRefs parses newline-delimited "process thread kind addr
// issue_time" records from r, invoking emit for each one. emit
// returns false to signal early termination (e.g. a receiver died).
func scanRefs(r io.Reader, emit func(trace.Ref) bool) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := parseRef(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !emit(ref) {
			return nil
		}
	}
	return scanner.Err()
}

func parseRef(line string) (trace.Ref, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return trace.Ref{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	process, err := strconv.Atoi(fields[0])
	if err != nil {
		return trace.Ref{}, fmt.Errorf("process: %w", err)
	}
	thread, err := strconv.Atoi(fields[1])
	if err != nil {
		return trace.Ref{}, fmt.Errorf("thread: %w", err)
	}
	var kind trace.Kind
	switch fields[2] {
	case "R":
		kind = trace.Read
	case "W":
		kind = trace.Write
	case "WB":
		kind = trace.Writeback
	default:
		return trace.Ref{}, fmt.Errorf("kind: unrecognised %q", fields[2])
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[3], "0x"), 16, 64)
	if err != nil {
		return trace.Ref{}, fmt.Errorf("addr: %w", err)
	}
	issueAt, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return trace.Ref{}, fmt.Errorf("issue_time: %w", err)
	}
	return trace.Ref{Kind: kind, Process: process, Thread: thread, Addr: addr, IssueAt: issueAt}, nil
}
