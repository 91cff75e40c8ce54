package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/habitlog/internal/config"
	"github.com/habitlog/internal/db"
	"github.com/habitlog/internal/service"
	"gorm.io/gorm"
)

const (
	seedUser = 1
	seedDays = 60
)

// 测试数据生成器
func main() {
	cfg := config.Load()
	if err := db.Init(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
	}); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	now := time.Now().In(cfg.Location)
	habits, err := createTestHabits(db.DB, now)
	if err != nil {
		log.Fatal("生成习惯失败:", err)
	}
	executions, err := createTestSystems(db.DB, now)
	if err != nil {
		log.Fatal("生成系统失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("习惯: %d 个，覆盖最近 %d 天\n", habits, seedDays)
	fmt.Printf("系统执行记录: %d 条\n", executions)
}

// createTestHabits 创建普通习惯与子任务习惯，并按不同完成率生成历史打卡
func createTestHabits(gdb *gorm.DB, now time.Time) (int, error) {
	var count int64
	gdb.Model(&db.Habit{}).Where("user_id = ?", seedUser).Count(&count)
	if count > 0 {
		fmt.Println("习惯已存在，跳过创建")
		return 0, nil
	}

	habits := service.NewHabitService(gdb)
	cache := service.NewProgressCache(gdb)
	subTasks := service.NewSubTaskService(gdb, habits, cache).
		WithClock(func() time.Time { return now }).
		WithLocation(now.Location())
	entries := service.NewEntryService(gdb, habits, cache, nil)
	rng := rand.New(rand.NewPCG(7, 42))

	plain := []struct {
		input service.HabitInput
		rate  float64
	}{
		{service.HabitInput{Name: "喝 8 杯水", Emoji: "💧"}, 0.9},
		{service.HabitInput{Name: "阅读 20 页", Emoji: "📚", Notes: "睡前 **不看手机**"}, 0.7},
		{service.HabitInput{Name: "周末长跑", Emoji: "🏃", Cadence: service.CadenceWeekly}, 0.3},
	}
	for _, p := range plain {
		habit, err := habits.Create(seedUser, p.input)
		if err != nil {
			return 0, err
		}
		for i := seedDays; i >= 1; i-- {
			if rng.Float64() >= p.rate {
				continue
			}
			if _, err := entries.Toggle(context.Background(), seedUser, habit.ID, now.AddDate(0, 0, -i)); err != nil {
				return 0, err
			}
		}
	}

	routine, err := habits.Create(seedUser, service.HabitInput{
		Name:                "晨间流程",
		Emoji:               "🌅",
		HasSubTasks:         true,
		ProgressRule:        "POINTS",
		CompletionThreshold: 60,
	})
	if err != nil {
		return 0, err
	}

	steps := []service.SubTaskInput{
		{Title: "拉伸", Weight: 2, EstimatedMinutes: 10},
		{Title: "冥想", Weight: 3, IsRequired: true, EstimatedMinutes: 15},
		{Title: "写日记", Weight: 1, EstimatedMinutes: 10},
	}
	created := make([]*db.SubTask, 0, len(steps))
	for _, step := range steps {
		st, err := subTasks.Create(seedUser, routine.ID, step)
		if err != nil {
			return 0, err
		}
		created = append(created, st)
	}

	for i := seedDays; i >= 1; i-- {
		date := now.AddDate(0, 0, -i)
		for _, st := range created {
			if rng.Float64() >= 0.65 {
				continue
			}
			spent := st.EstimatedMinutes + rng.IntN(st.EstimatedMinutes+1)
			if _, err := entries.SetSubTask(seedUser, st.ID, service.SubTaskLogInput{
				Date:             date,
				Completed:        true,
				TimeSpentMinutes: spent,
			}); err != nil {
				return 0, err
			}
		}
	}

	return len(plain) + 1, nil
}

// createTestSystems 创建两个系统：一个持续有效，一个逐渐失效
func createTestSystems(gdb *gorm.DB, now time.Time) (int, error) {
	var count int64
	gdb.Model(&db.AdaptiveSystem{}).Where("user_id = ?", seedUser).Count(&count)
	if count > 0 {
		fmt.Println("系统已存在，跳过创建")
		return 0, nil
	}

	systems := service.NewSystemService(gdb)
	momentum := service.NewMomentumService(gdb)
	rng := rand.New(rand.NewPCG(11, 3))

	steady, err := systems.Create(seedUser, service.SystemInput{Name: "早睡早起", AutoAdapt: true})
	if err != nil {
		return 0, err
	}
	fading, err := systems.Create(seedUser, service.SystemInput{Name: "午休后深度工作", Description: "13:30-15:30"})
	if err != nil {
		return 0, err
	}

	total := 0
	for i := seedDays; i >= 1; i-- {
		at := now.AddDate(0, 0, -i)
		progress := float64(seedDays-i) / seedDays

		if _, _, err := systems.RecordExecution(seedUser, steady.ID, service.ExecutionInput{
			ExecutedAt:            at,
			CompletionRate:        70 + 25*progress,
			EnergyCost:            40 - 20*progress,
			ContextFit:            75 + rng.Float64()*10,
			SequenceEffectiveness: 70 + rng.Float64()*20,
		}); err != nil {
			return 0, err
		}
		total++

		if i%2 == 0 {
			if _, _, err := systems.RecordExecution(seedUser, fading.ID, service.ExecutionInput{
				ExecutedAt:            at,
				CompletionRate:        85 - 60*progress,
				EnergyCost:            50 + 35*progress,
				ContextFit:            60 - 30*progress,
				SequenceEffectiveness: 60 + rng.Float64()*10,
			}); err != nil {
				return 0, err
			}
			total++
		}

		// 每周保存一次动量，供趋势与周变化使用
		if i%7 == 0 {
			if _, err := momentum.Compute(context.Background(), seedUser, at.AddDate(0, 0, -service.DefaultMomentumWindow), at); err != nil {
				return 0, err
			}
		}
	}

	return total, nil
}
