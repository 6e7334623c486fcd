package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockProcessor simulates image processing for testing
type mockProcessor struct {
	delay     time.Duration
	failPaths map[string]bool // inputs that should fail
	callCount atomic.Int32
}

func (m *mockProcessor) Process(ctx context.Context, task Task) (string, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failPaths != nil && m.failPaths[task.Input] {
		return "", errors.New("simulated failure")
	}

	if task.Output != "" {
		return task.Output, nil
	}
	return strings.TrimSuffix(task.Input, ".png") + ".sharp.png", nil
}

func imageTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Input: "img" + string(rune('a'+i)) + ".png"}
	}
	return tasks
}

func TestPool_BasicExecution(t *testing.T) {
	proc := &mockProcessor{delay: 10 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Processor: proc,
	})

	tasks := imageTasks(3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	for _, r := range results {
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Task.Input, r.Err)
		}
		if r.Output == "" {
			t.Errorf("Expected output for %s, got empty", r.Task.Input)
		}
	}

	if proc.callCount.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d processor calls, got %d", len(tasks), proc.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	proc := &mockProcessor{delay: 50 * time.Millisecond}

	pool := New(Config{
		Workers:   4,
		Processor: proc,
	})

	tasks := imageTasks(8)

	start := time.Now()
	results := pool.Run(context.Background(), tasks)
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	maxExpected := 300 * time.Millisecond
	if elapsed > maxExpected {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	proc := &mockProcessor{
		delay:     10 * time.Millisecond,
		failPaths: map[string]bool{"imgb.png": true},
	}

	pool := New(Config{
		Workers:   2,
		Processor: proc,
	})

	tasks := imageTasks(3)
	results := pool.Run(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Errorf("Expected %d results, got %d", len(tasks), len(results))
	}

	var successCount, failCount int
	for _, r := range results {
		if r.Err != nil {
			failCount++
			if r.Task.Input != "imgb.png" {
				t.Errorf("Unexpected failure for %s", r.Task.Input)
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	proc := &mockProcessor{delay: 100 * time.Millisecond}

	pool := New(Config{
		Workers:   2,
		Processor: proc,
	})

	tasks := imageTasks(10)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, tasks)
	elapsed := time.Since(start)

	if elapsed > 400*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}

	if len(results) != len(tasks) {
		t.Errorf("Expected a result for every task, got %d", len(results))
	}

	var cancelledCount int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			cancelledCount++
		}
	}
	if cancelledCount == 0 {
		t.Error("Expected some cancelled results")
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	proc := &mockProcessor{delay: 10 * time.Millisecond}

	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers:   2,
		Processor: proc,
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	tasks := imageTasks(3)
	pool.Run(context.Background(), tasks)

	if progressCalls.Load() != int32(len(tasks)) {
		t.Errorf("Expected %d progress callbacks, got %d", len(tasks), progressCalls.Load())
	}
	if lastCompleted != len(tasks) {
		t.Errorf("Expected lastCompleted=%d, got %d", len(tasks), lastCompleted)
	}
	if lastTotal != len(tasks) {
		t.Errorf("Expected lastTotal=%d, got %d", len(tasks), lastTotal)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	proc := &mockProcessor{}

	pool := New(Config{
		Workers:   2,
		Processor: proc,
	})

	results := pool.Run(context.Background(), nil)

	if len(results) != 0 {
		t.Errorf("Expected 0 results for empty tasks, got %d", len(results))
	}
	if proc.callCount.Load() != 0 {
		t.Errorf("Expected 0 processor calls for empty tasks, got %d", proc.callCount.Load())
	}
}

func TestPool_ProcessorFunc(t *testing.T) {
	pool := New(Config{
		Processor: ProcessorFunc(func(_ context.Context, task Task) (string, error) {
			return task.Output, nil
		}),
	})

	results := pool.Run(context.Background(), []Task{{Input: "in.png", Output: "out/in.png"}})

	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Output != "out/in.png" {
		t.Errorf("Expected explicit output path, got %s", results[0].Output)
	}
}
