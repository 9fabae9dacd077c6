package runtime_test

import (
	"fmt"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amirkhaki/mycroft/pkg/runtime"
)

// lowestIDStrategy always picks the enabled operation with the smallest id,
// which makes the resulting schedule easy to reason about by hand.
type lowestIDStrategy struct{}

func (lowestIDStrategy) Name() string                                { return "lowest-id" }
func (lowestIDStrategy) InitializeNextIteration(uint64) bool         { return true }
func (lowestIDStrategy) NextBoolean() (bool, error)                  { return false, nil }
func (lowestIDStrategy) NextInteger(max int64) (int64, error)        { return 0, nil }
func (lowestIDStrategy) NextOperation(enabled []runtime.Operation, _ *runtime.Trace) (runtime.Operation, error) {
	return enabled[0], nil
}

// scriptedStrategy picks operations by name from a fixed script, falling back
// to the lowest id once the script is exhausted.
type scriptedStrategy struct {
	script []string
	cursor int
}

func (s *scriptedStrategy) Name() string                         { return "scripted" }
func (s *scriptedStrategy) InitializeNextIteration(uint64) bool  { return true }
func (s *scriptedStrategy) NextBoolean() (bool, error)           { return false, nil }
func (s *scriptedStrategy) NextInteger(max int64) (int64, error) { return 0, nil }

func (s *scriptedStrategy) NextOperation(enabled []runtime.Operation, _ *runtime.Trace) (runtime.Operation, error) {
	if s.cursor >= len(s.script) {
		return enabled[0], nil
	}
	name := s.script[s.cursor]
	s.cursor++
	for _, op := range enabled {
		if op.Name() == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("scripted operation %q is not enabled", name)
}

var _ = Describe("Scheduler", func() {
	It("completes a program whose operations all finish", func() {
		var order []string
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			a := runtime.SpawnTask("a", func() { order = append(order, "a") })
			b := runtime.SpawnTask("b", func() { order = append(order, "b") })
			runtime.WaitTasks([]*runtime.Task{a, b}, true)
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(rep.Err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]string{"a", "b"}))
		for _, op := range rep.Operations {
			Expect(op.Status).To(Equal("completed"))
		}
	})

	It("runs at most one operation at a time", func() {
		var running, violations atomic.Int32
		work := func() {
			for i := 0; i < 5; i++ {
				if running.Add(1) != 1 {
					violations.Add(1)
				}
				running.Add(-1)
				runtime.SchedulingPoint()
			}
		}

		rep := runtime.Execute(runtime.NewRandomStrategy(1), 0, func() {
			tasks := make([]*runtime.Task, 0, 4)
			for i := 0; i < 4; i++ {
				tasks = append(tasks, runtime.SpawnTask(fmt.Sprintf("worker-%d", i), work))
			}
			runtime.WaitTasks(tasks, true)
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(violations.Load()).To(BeZero())
	})

	It("re-enables a join once its dependency completes", func() {
		var order []string
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			var bTask *runtime.Task
			a := runtime.SpawnTask("a", func() {
				order = append(order, "a:before-wait")
				runtime.WaitTask(bTask)
				order = append(order, "a:resumed")
			})
			bTask = runtime.SpawnTask("b", func() { order = append(order, "b") })
			runtime.WaitTasks([]*runtime.Task{a, bTask}, true)
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(order).To(Equal([]string{"a:before-wait", "b", "a:resumed"}))
	})

	It("reports deadlock for a cycle of joins", func() {
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			var aTask, bTask, cTask *runtime.Task
			aTask = runtime.SpawnTask("a", func() { runtime.WaitTask(bTask) })
			bTask = runtime.SpawnTask("b", func() { runtime.WaitTask(cTask) })
			cTask = runtime.SpawnTask("c", func() { runtime.WaitTask(aTask) })
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeDeadlock))
		var deadlock *runtime.DeadlockError
		Expect(rep.Err).To(BeAssignableToTypeOf(deadlock))
		Expect(rep.Err.(*runtime.DeadlockError).Blocked).To(HaveLen(3))
		Expect(rep.Error).To(ContainSubstring("a"))
		Expect(rep.Error).To(ContainSubstring("b"))
		Expect(rep.Error).To(ContainSubstring("c"))
	})

	It("does not block a wait-any whose dependency already completed", func() {
		var order []string
		strategy := &scriptedStrategy{script: []string{"main", "x", "main", "main", "y"}}
		rep := runtime.Execute(strategy, 0, func() {
			x := runtime.SpawnTask("x", func() { order = append(order, "x") })
			y := runtime.SpawnTask("y", func() { order = append(order, "y") })
			runtime.WaitTasks([]*runtime.Task{x, y}, false)
			order = append(order, "after-wait")
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(order).To(Equal([]string{"x", "after-wait", "y"}))
	})

	It("replays a recorded schedule exactly", func() {
		body := func() {
			tasks := make([]*runtime.Task, 0, 3)
			for i := 0; i < 3; i++ {
				tasks = append(tasks, runtime.SpawnTask(fmt.Sprintf("worker-%d", i), func() {
					runtime.SchedulingPoint()
					runtime.SchedulingPoint()
				}))
			}
			if runtime.NondetBoolean() {
				runtime.SchedulingPoint()
			}
			if runtime.NondetInteger(3) > 0 {
				runtime.SchedulingPoint()
			}
			runtime.WaitTasks(tasks, true)
		}

		first := runtime.Execute(runtime.NewRandomStrategy(99), 0, body)
		Expect(first.Outcome).To(Equal(runtime.OutcomeCompleted))

		second := runtime.Execute(runtime.NewReplayStrategy(first.Trace), 0, body)
		Expect(second.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(second.Trace.Steps()).To(Equal(first.Trace.Steps()))
	})

	It("reports a divergent replay", func() {
		first := runtime.Execute(runtime.NewRandomStrategy(5), 0, func() {
			t := runtime.SpawnTask("w", func() { runtime.SchedulingPoint() })
			runtime.WaitTask(t)
		})
		Expect(first.Outcome).To(Equal(runtime.OutcomeCompleted))

		// Replaying against a program with an extra operation diverges.
		rep := runtime.Execute(runtime.NewReplayStrategy(first.Trace), 0, func() {
			t := runtime.SpawnTask("w", func() { runtime.SchedulingPoint() })
			u := runtime.SpawnTask("u", func() { runtime.SchedulingPoint() })
			runtime.WaitTasks([]*runtime.Task{t, u}, true)
		})
		Expect(rep.Outcome).To(Equal(runtime.OutcomeDivergence))
	})

	It("attributes a panic to the failing operation and reproduces it on replay", func() {
		body := func() {
			t := runtime.SpawnTask("boomer", func() { panic("boom") })
			runtime.WaitTask(t)
		}

		first := runtime.Execute(runtime.NewRandomStrategy(1), 0, body)
		Expect(first.Outcome).To(Equal(runtime.OutcomeUserFailure))
		var failure *runtime.UserFailureError
		Expect(first.Err).To(BeAssignableToTypeOf(failure))
		Expect(first.Err.(*runtime.UserFailureError).Continuation).To(Equal("boomer"))
		Expect(first.Error).To(ContainSubstring("boom"))

		second := runtime.Execute(runtime.NewReplayStrategy(first.Trace), 0, body)
		Expect(second.Outcome).To(Equal(runtime.OutcomeUserFailure))
		Expect(second.Trace.OperationIDs()).To(Equal(first.Trace.OperationIDs()))
	})

	It("stops runaway executions at the step bound", func() {
		rep := runtime.Execute(runtime.NewRandomStrategy(0), 25, func() {
			for {
				runtime.SchedulingPoint()
			}
		})
		Expect(rep.Outcome).To(Equal(runtime.OutcomeBoundReached))
		Expect(rep.Steps).To(Equal(25))
	})
})
