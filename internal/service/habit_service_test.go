package service

import (
	"errors"
	"testing"
	"time"

	"github.com/habitlog/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testUser uint = 1

func setupServiceTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestHabitServiceCreateAndList(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewHabitService(db.DB)

	habit, err := svc.Create(testUser, HabitInput{
		Name:    "  晨跑 <b>5km</b> ",
		Emoji:   "🏃",
		Notes:   "每天 **5 公里**",
		Cadence: "Daily",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if habit.ID == 0 {
		t.Fatal("expected habit to have ID")
	}
	if habit.Name != "晨跑 5km" {
		t.Fatalf("expected markup to be stripped, got %q", habit.Name)
	}
	if habit.ProgressRule != "ALL" || habit.CompletionThreshold != 100 {
		t.Fatalf("expected ALL/100 defaults, got %s/%d", habit.ProgressRule, habit.CompletionThreshold)
	}
	if habit.WeeklyTarget != 7 || habit.MonthlyTarget != 30 {
		t.Fatalf("unexpected daily targets: %d/%d", habit.WeeklyTarget, habit.MonthlyTarget)
	}

	if _, err := svc.Create(2, HabitInput{Name: "别人的习惯"}); err != nil {
		t.Fatalf("Create for other user returned error: %v", err)
	}

	habits, err := svc.List(testUser, HabitFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(habits) != 1 {
		t.Fatalf("expected 1 habit for user, got %d", len(habits))
	}

	// 其他用户不可见
	if _, err := svc.Get(2, habit.ID); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound across users, got %v", err)
	}
}

func TestHabitServiceValidation(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewHabitService(db.DB)

	cases := []struct {
		name  string
		input HabitInput
		want  error
	}{
		{"missing name", HabitInput{Name: "  "}, ErrInvalidHabit},
		{"bad cadence", HabitInput{Name: "阅读", Cadence: "yearly"}, ErrInvalidHabit},
		{"bad rule", HabitInput{Name: "阅读", ProgressRule: "MOST"}, ErrInvalidProgressRule},
		{"threshold too high", HabitInput{Name: "阅读", ProgressRule: "PERCENTAGE", CompletionThreshold: 101}, ErrInvalidProgressRule},
		{"threshold missing", HabitInput{Name: "阅读", ProgressRule: "POINTS"}, ErrInvalidProgressRule},
		{"negative target", HabitInput{Name: "阅读", WeeklyTarget: -1}, ErrInvalidHabit},
	}

	for _, tc := range cases {
		if _, err := svc.Create(testUser, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	var count int64
	db.DB.Model(&db.Habit{}).Count(&count)
	if count != 0 {
		t.Fatalf("invalid input must not write, found %d habits", count)
	}
}

func TestHabitServiceUpdate(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewHabitService(db.DB)
	habit, err := svc.Create(testUser, HabitInput{Name: "冥想"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	updated, err := svc.Update(testUser, habit.ID, HabitInput{
		Name:                "冥想训练",
		Cadence:             "weekly",
		HasSubTasks:         true,
		ProgressRule:        "percentage",
		CompletionThreshold: 60,
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if updated.Name != "冥想训练" {
		t.Fatalf("expected name to update, got %s", updated.Name)
	}
	if updated.ProgressRule != "PERCENTAGE" || updated.CompletionThreshold != 60 {
		t.Fatalf("unexpected rule: %s/%d", updated.ProgressRule, updated.CompletionThreshold)
	}
	if updated.WeeklyTarget != 1 || updated.MonthlyTarget != 4 {
		t.Fatalf("unexpected weekly targets: %d/%d", updated.WeeklyTarget, updated.MonthlyTarget)
	}

	if _, err := svc.Update(testUser, 999, HabitInput{Name: "x"}); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestHabitServiceArchiveRestoreDelete(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	svc := NewHabitService(db.DB)
	svc.now = fixedClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	habit, err := svc.Create(testUser, HabitInput{Name: "喝水"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	archived, err := svc.Archive(testUser, habit.ID)
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if !archived.Archived() {
		t.Fatal("expected habit to be archived")
	}

	active, _ := svc.List(testUser, HabitFilter{})
	if len(active) != 0 {
		t.Fatalf("archived habit should be hidden, got %d", len(active))
	}
	all, _ := svc.List(testUser, HabitFilter{IncludeArchived: true})
	if len(all) != 1 {
		t.Fatalf("expected archived habit with IncludeArchived, got %d", len(all))
	}

	if _, err := svc.Restore(testUser, habit.ID); err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}

	// 有打卡历史时删除退化为归档
	if err := db.DB.Create(&db.HabitEntry{UserID: testUser, HabitID: habit.ID, EntryDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Completed: true}).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
	wasArchived, err := svc.Delete(testUser, habit.ID)
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !wasArchived {
		t.Fatal("expected delete with history to archive")
	}
	if _, err := svc.Get(testUser, habit.ID); err != nil {
		t.Fatalf("archived habit should still load: %v", err)
	}

	fresh, _ := svc.Create(testUser, HabitInput{Name: "拉伸"})
	wasArchived, err = svc.Delete(testUser, fresh.ID)
	if err != nil || wasArchived {
		t.Fatalf("expected hard delete, archived=%v err=%v", wasArchived, err)
	}
	if _, err := svc.Get(testUser, fresh.ID); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected deleted habit to be gone, got %v", err)
	}
}
