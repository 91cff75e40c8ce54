package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "habitlog.db")

	gdb, err := db.Open(db.Options{Path: path, Silent: true})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	defer func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	habits := service.NewHabitService(gdb)
	entries := service.NewEntryService(gdb, habits, service.NewProgressCache(gdb), nil)

	habit, err := habits.Create(1, service.HabitInput{Name: "读书"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	for _, day := range []int{12, 13, 14} {
		date := time.Date(2026, 4, day, 0, 0, 0, 0, time.UTC)
		if _, err := entries.Toggle(context.Background(), 1, habit.ID, date); err != nil {
			t.Fatalf("failed to toggle %v: %v", date, err)
		}
	}
	return path
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("habitctl %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestStreakCommand(t *testing.T) {
	path := seedDatabase(t)

	out := runCLI(t, "--db", path, "--tz", "UTC", "--date", "2026-04-15", "streak")
	if !strings.Contains(out, "current 3 days") {
		t.Fatalf("expected current streak of 3, got %q", out)
	}
	if !strings.Contains(out, "today pending") {
		t.Fatalf("expected today to be pending, got %q", out)
	}
}

func TestWeekCommand(t *testing.T) {
	path := seedDatabase(t)

	out := runCLI(t, "--db", path, "--tz", "UTC", "--date", "2026-04-15", "week")
	if !strings.Contains(out, "week 2026-04-13") {
		t.Fatalf("expected ISO week starting Monday, got %q", out)
	}
	if !strings.Contains(out, "读书") || !strings.Contains(out, "2/7") {
		t.Fatalf("expected habit rollup 2/7, got %q", out)
	}
}

func TestInsightsCommandWithoutData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")

	out := runCLI(t, "--db", path, "--tz", "UTC", "insights", "--category", "bias")
	if !strings.Contains(out, "No insights found.") {
		t.Fatalf("expected empty insights, got %q", out)
	}
}

func TestInvalidDateFlag(t *testing.T) {
	path := seedDatabase(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--db", path, "--date", "15/04/2026", "streak"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("读书", 4); got != "读书  " {
		t.Fatalf("expected rune-aware padding, got %q", got)
	}
	if got := padRight("meditation", 4); got != "meditation" {
		t.Fatalf("expected long value unchanged, got %q", got)
	}
}
