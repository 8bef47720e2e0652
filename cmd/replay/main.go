package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/config"
	"jiaming2012/labor-export/logger"
	"jiaming2012/labor-export/models"
	"jiaming2012/labor-export/pipeline"
	"jiaming2012/labor-export/service/diff"
	"jiaming2012/labor-export/service/external"
)

type replayEntry struct {
	ID       uint `csv:"id"`
	Approved bool `csv:"approved"`
	Deleted  bool `csv:"deleted"`
	models.RawEntry
}

func readEntries(path string, changedAt time.Time) ([]diff.MemoryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*replayEntry
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	entries := make([]diff.MemoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, diff.MemoryEntry{
			ID:        r.ID,
			Approved:  r.Approved,
			Deleted:   r.Deleted,
			ChangedAt: changedAt,
			RawEntry:  r.RawEntry,
		})
	}

	return entries, nil
}

func readEmployees(path string) ([]models.EmployeeUnion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var employees []models.EmployeeUnion
	if err := gocsv.UnmarshalFile(f, &employees); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return employees, nil
}

func readPayCodes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			codes = append(codes, line)
		}
	}

	return codes, scanner.Err()
}

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: replay <entries.csv> <employees.csv> <paycodes.txt>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatal(err)
	}

	now := time.Now()

	entries, err := readEntries(os.Args[1], now.Add(-time.Minute))
	if err != nil {
		log.Fatal(err)
	}

	employees, err := readEmployees(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}

	payCodes, err := readPayCodes(os.Args[3])
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := diff.NewEngine(diff.NewMemoryStore(entries), cfg.EngineConfig())
	reference := external.StaticReference{PayCodes: payCodes, Employees: employees}

	summary, err := pipeline.NewRunner(pipeline.NewConfig(cfg, now), engine, reference, nil).Run(ctx)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	log.Infof("replayed %d entries into %s (%d rows)", summary.Entries, summary.OutputPath, summary.Emitted)
}
