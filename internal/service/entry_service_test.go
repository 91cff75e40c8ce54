package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/guard"
)

type entryFixture struct {
	habits   *HabitService
	cache    *ProgressCache
	entries  *EntryService
	subTasks *SubTaskService
}

func newEntryFixture(g guard.Guard, today time.Time) entryFixture {
	habits := NewHabitService(db.DB).WithClock(fixedClock(today)).WithLocation(time.UTC)
	cache := NewProgressCache(db.DB)
	return entryFixture{
		habits:   habits,
		cache:    cache,
		entries:  NewEntryService(db.DB, habits, cache, g),
		subTasks: NewSubTaskService(db.DB, habits, cache).WithClock(fixedClock(today)).WithLocation(time.UTC),
	}
}

func TestEntryToggleRoundTrip(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 21, 30, 0, 0, time.UTC)
	f := newEntryFixture(nil, day)
	ctx := context.Background()

	habit, err := f.habits.Create(testUser, HabitInput{Name: "阅读"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	first, err := f.entries.Toggle(ctx, testUser, habit.ID, day)
	if err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}
	if !first.Completed {
		t.Fatal("expected first toggle to complete")
	}

	second, err := f.entries.Toggle(ctx, testUser, habit.ID, day)
	if err != nil {
		t.Fatalf("second Toggle returned error: %v", err)
	}
	if second.Completed {
		t.Fatal("expected second toggle to un-complete")
	}

	// 取消后记录被删除，再次打卡不会撞上唯一索引
	var count int64
	db.DB.Model(&db.HabitEntry{}).Where("habit_id = ?", habit.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no entry after round trip, got %d", count)
	}

	third, err := f.entries.Toggle(ctx, testUser, habit.ID, day)
	if err != nil || !third.Completed {
		t.Fatalf("expected re-toggle to complete, got %+v err=%v", third, err)
	}

	entries, err := f.entries.ListEntries(testUser, habit.ID, day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if !entries[0].EntryDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("entry date should be normalized, got %s", entries[0].EntryDate)
	}
}

func TestEntryToggleInFlight(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	g := guard.NewMemoryGuard()
	f := newEntryFixture(g, day)
	ctx := context.Background()

	habit, _ := f.habits.Create(testUser, HabitInput{Name: "阅读"})

	release, err := g.Acquire(ctx, guard.Key(habit.ID, day))
	if err != nil {
		t.Fatalf("failed to hold guard: %v", err)
	}

	if _, err := f.entries.Toggle(ctx, testUser, habit.ID, day); !errors.Is(err, ErrToggleInFlight) {
		t.Fatalf("expected ErrToggleInFlight, got %v", err)
	}
	release()

	if _, err := f.entries.Toggle(ctx, testUser, habit.ID, day); err != nil {
		t.Fatalf("Toggle after release returned error: %v", err)
	}
}

func TestEntryToggleRejectsSubTaskHabit(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newEntryFixture(nil, day)

	habit, _ := f.habits.Create(testUser, HabitInput{Name: "晨间流程", HasSubTasks: true})
	if _, err := f.entries.Toggle(context.Background(), testUser, habit.ID, day); !errors.Is(err, ErrInvalidHabit) {
		t.Fatalf("expected ErrInvalidHabit, got %v", err)
	}
}

func TestSubTaskProgressMirrorsEntry(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newEntryFixture(nil, day)

	habit, err := f.habits.Create(testUser, HabitInput{
		Name:                "晨间流程",
		HasSubTasks:         true,
		ProgressRule:        "POINTS",
		CompletionThreshold: 70,
	})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	heavy, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "冥想", Weight: 7})
	if err != nil {
		t.Fatalf("failed to create sub-task: %v", err)
	}
	light, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "喝水", Weight: 3})
	if err != nil {
		t.Fatalf("failed to create sub-task: %v", err)
	}

	progress, err := f.entries.SetSubTask(testUser, light.ID, SubTaskLogInput{Date: day, Completed: true, TimeSpentMinutes: 2})
	if err != nil {
		t.Fatalf("SetSubTask returned error: %v", err)
	}
	if progress.Result.IsCompleted || progress.Result.CompletionPercentage != 30 {
		t.Fatalf("expected 30%% incomplete, got %+v", progress.Result)
	}

	progress, err = f.entries.SetSubTask(testUser, heavy.ID, SubTaskLogInput{Date: day, Completed: true})
	if err != nil {
		t.Fatalf("SetSubTask returned error: %v", err)
	}
	if !progress.Result.IsCompleted || progress.Result.EarnedPoints != 10 {
		t.Fatalf("expected completion with 10 points, got %+v", progress.Result)
	}

	var mirrored int64
	db.DB.Model(&db.HabitEntry{}).Where("habit_id = ? AND entry_date = ?", habit.ID, day).Count(&mirrored)
	if mirrored != 1 {
		t.Fatalf("expected mirrored entry, got %d", mirrored)
	}

	cached, err := f.cache.Get(*habit, day)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !cached.Cached || !cached.Result.IsCompleted {
		t.Fatalf("expected cached completed snapshot, got %+v", cached)
	}

	// 取消子任务后快照与镜像一起回退
	if _, err := f.entries.SetSubTask(testUser, heavy.ID, SubTaskLogInput{Date: day, Completed: false}); err != nil {
		t.Fatalf("SetSubTask uncheck returned error: %v", err)
	}
	db.DB.Model(&db.HabitEntry{}).Where("habit_id = ? AND entry_date = ?", habit.ID, day).Count(&mirrored)
	if mirrored != 0 {
		t.Fatalf("expected mirrored entry removed, got %d", mirrored)
	}

	detail, err := f.entries.Progress(testUser, habit.ID, day)
	if err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	if len(detail.Result.Breakdown) != 2 || detail.Result.Breakdown[0].Title != "冥想" {
		t.Fatalf("unexpected breakdown: %+v", detail.Result.Breakdown)
	}
}

func TestSubTaskDefinitionChangeRefreshesToday(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := newEntryFixture(nil, day)

	habit, _ := f.habits.Create(testUser, HabitInput{Name: "整理", HasSubTasks: true})
	first, _ := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "桌面", IsRequired: true})
	if _, err := f.entries.SetSubTask(testUser, first.ID, SubTaskLogInput{Date: day, Completed: true}); err != nil {
		t.Fatalf("SetSubTask returned error: %v", err)
	}

	cached, _ := f.cache.Get(*habit, day)
	if !cached.Result.IsCompleted {
		t.Fatal("expected habit completed with its only required sub-task done")
	}

	// 新增必做子任务后，今天不再完成
	second, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "抽屉", IsRequired: true})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	cached, _ = f.cache.Get(*habit, day)
	if cached.Result.IsCompleted || cached.Result.CompletionPercentage != 50 {
		t.Fatalf("expected refreshed 50%% snapshot, got %+v", cached.Result)
	}

	reordered, err := f.subTasks.Reorder(testUser, habit.ID, []uint{second.ID, first.ID})
	if err != nil {
		t.Fatalf("Reorder returned error: %v", err)
	}
	if reordered[0].ID != second.ID {
		t.Fatalf("expected %d first after reorder, got %d", second.ID, reordered[0].ID)
	}

	if _, err := f.subTasks.Reorder(testUser, habit.ID, []uint{first.ID}); !errors.Is(err, ErrInvalidSubTask) {
		t.Fatalf("expected ErrInvalidSubTask for partial reorder, got %v", err)
	}

	if err := f.subTasks.Delete(testUser, second.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	cached, _ = f.cache.Get(*habit, day)
	if !cached.Result.IsCompleted {
		t.Fatalf("expected completion restored after delete, got %+v", cached.Result)
	}
}

func TestHabitRuleChangeRebuildsProgress(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	yesterday := day.AddDate(0, 0, -1)
	f := newEntryFixture(nil, day)
	stats := NewStatsService(db.DB, f.habits, f.cache).WithClock(fixedClock(day))

	input := HabitInput{Name: "复盘", HasSubTasks: true, ProgressRule: "PERCENTAGE", CompletionThreshold: 50}
	habit, err := f.habits.Create(testUser, input)
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	first, _ := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "记录"})
	if _, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "总结"}); err != nil {
		t.Fatalf("failed to create sub-task: %v", err)
	}
	for _, d := range []time.Time{yesterday, day} {
		if _, err := f.entries.SetSubTask(testUser, first.ID, SubTaskLogInput{Date: d, Completed: true}); err != nil {
			t.Fatalf("SetSubTask returned error: %v", err)
		}
	}

	countMirrored := func() int64 {
		var n int64
		db.DB.Model(&db.HabitEntry{}).Where("habit_id = ?", habit.ID).Count(&n)
		return n
	}
	if got := countMirrored(); got != 2 {
		t.Fatalf("expected 2 mirrored entries at 50%%, got %d", got)
	}

	// 提高阈值后，已缓存的每一天都按新规则重算
	input.CompletionThreshold = 100
	if _, err := f.habits.Update(testUser, habit.ID, input); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	for _, d := range []time.Time{yesterday, day} {
		cached, err := f.cache.Get(*habit, d)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if !cached.Cached || cached.Result.IsCompleted || cached.Result.CompletionPercentage != 50 {
			t.Fatalf("expected stale snapshot replaced on %s, got %+v", d.Format("2006-01-02"), cached)
		}
	}
	if got := countMirrored(); got != 0 {
		t.Fatalf("expected mirrored entries removed, got %d", got)
	}

	streak, err := stats.Streak(context.Background(), testUser, day)
	if err != nil {
		t.Fatalf("Streak returned error: %v", err)
	}
	if streak.TodayComplete || streak.Current != 0 {
		t.Fatalf("expected no completion under the stricter rule, got %+v", streak)
	}

	input.CompletionThreshold = 50
	if _, err := f.habits.Update(testUser, habit.ID, input); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got := countMirrored(); got != 2 {
		t.Fatalf("expected mirrored entries restored, got %d", got)
	}

	// 关闭子任务后快照与镜像打卡一并清除
	input.HasSubTasks = false
	if _, err := f.habits.Update(testUser, habit.ID, input); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	var snapshots int64
	db.DB.Model(&db.HabitProgress{}).Where("habit_id = ?", habit.ID).Count(&snapshots)
	if snapshots != 0 {
		t.Fatalf("expected snapshots cleared, got %d", snapshots)
	}
	if got := countMirrored(); got != 0 {
		t.Fatalf("expected mirrored entries cleared, got %d", got)
	}
}

func TestSubTaskRefreshUsesUserLocation(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	// UTC 23:30 在 UTC+8 已是第二天
	now := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	shanghai := time.FixedZone("UTC+8", 8*3600)
	habits := NewHabitService(db.DB)
	subTasks := NewSubTaskService(db.DB, habits, NewProgressCache(db.DB)).
		WithClock(fixedClock(now)).
		WithLocation(shanghai)

	habit, _ := habits.Create(testUser, HabitInput{Name: "夜读", HasSubTasks: true})
	if _, err := subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "一章"}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	var local, utc int64
	db.DB.Model(&db.HabitProgress{}).
		Where("habit_id = ? AND progress_date = ?", habit.ID, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)).
		Count(&local)
	db.DB.Model(&db.HabitProgress{}).
		Where("habit_id = ? AND progress_date = ?", habit.ID, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)).
		Count(&utc)
	if local != 1 || utc != 0 {
		t.Fatalf("expected snapshot for the user's day only, got local=%d utc=%d", local, utc)
	}
}

func TestSubTaskValidation(t *testing.T) {
	cleanup := setupServiceTestDB(t)
	defer cleanup()

	f := newEntryFixture(nil, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	plain, _ := f.habits.Create(testUser, HabitInput{Name: "跑步"})
	if _, err := f.subTasks.Create(testUser, plain.ID, SubTaskInput{Title: "热身"}); !errors.Is(err, ErrInvalidSubTask) {
		t.Fatalf("expected ErrInvalidSubTask on plain habit, got %v", err)
	}

	habit, _ := f.habits.Create(testUser, HabitInput{Name: "训练", HasSubTasks: true})
	if _, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "深蹲", Weight: 11}); !errors.Is(err, ErrInvalidSubTask) {
		t.Fatalf("expected ErrInvalidSubTask for weight 11, got %v", err)
	}
	created, err := f.subTasks.Create(testUser, habit.ID, SubTaskInput{Title: "深蹲"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Weight != 1 {
		t.Fatalf("expected default weight 1, got %d", created.Weight)
	}

	if _, err := f.subTasks.Update(2, created.ID, SubTaskInput{Title: "x"}); !errors.Is(err, ErrSubTaskNotFound) {
		t.Fatalf("expected ErrSubTaskNotFound across users, got %v", err)
	}
}
