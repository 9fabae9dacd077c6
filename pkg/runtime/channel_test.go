package runtime_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/amirkhaki/mycroft/pkg/runtime"
)

// These specs execute the controlled forms the instrumenter lowers channel
// programs into, end to end: spawned workers exchanging values over buffered
// and unbuffered channels, and cyclic waits that must surface as deadlock
// reports rather than hangs.
var _ = Describe("Channel operations", func() {
	It("terminates a fan-in of senders under every seed", func() {
		// The controlled form of a workers-send, main-receives program.
		for seed := int64(0); seed < 6; seed++ {
			sum := 0
			rep := runtime.Execute(runtime.NewRandomStrategy(seed), 0, func() {
				results := make(chan int, 3)
				for i := 0; i < 3; i++ {
					id := i
					runtime.SpawnTask(fmt.Sprintf("worker-%d", i), func() {
						runtime.ChanSend(results, id*2)
					})
				}
				sum = 0
				for i := 0; i < 3; i++ {
					sum += runtime.ChanRecv(results)
				}
			})
			Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted), "seed %d", seed)
			Expect(sum).To(Equal(6), "seed %d", seed)
		}
	})

	It("completes an unbuffered rendezvous in either schedule order", func() {
		for seed := int64(0); seed < 6; seed++ {
			var got int
			rep := runtime.Execute(runtime.NewRandomStrategy(seed), 0, func() {
				ch := make(chan int)
				runtime.SpawnTask("producer", func() { runtime.ChanSend(ch, 41) })
				got = runtime.ChanRecv(ch)
			})
			Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted), "seed %d", seed)
			Expect(got).To(Equal(41), "seed %d", seed)
		}
	})

	It("preserves send order past a full buffer", func() {
		var received []int
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			ch := make(chan int, 1)
			runtime.SpawnTask("producer", func() {
				runtime.ChanSend(ch, 1)
				runtime.ChanSend(ch, 2)
			})
			received = nil
			received = append(received, runtime.ChanRecv(ch))
			received = append(received, runtime.ChanRecv(ch))
		})
		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(received).To(Equal([]int{1, 2}))
	})

	It("wakes a parked receiver when the channel is closed", func() {
		var (
			got int
			ok  bool
		)
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			ch := make(chan int)
			runtime.SpawnTask("closer", func() { runtime.ChanClose(ch) })
			got, ok = runtime.ChanRecvOK(ch)
		})
		Expect(rep.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(ok).To(BeFalse())
		Expect(got).To(BeZero())
	})

	It("reports deadlock for a receive with no counterparty", func() {
		rep := runtime.Execute(runtime.NewRandomStrategy(0), 100, func() {
			ch := make(chan int)
			runtime.SchedulingPoint()
			runtime.ChanRecv(ch)
		})
		Expect(rep.Outcome).To(Equal(runtime.OutcomeDeadlock))
		Expect(rep.Error).To(ContainSubstring("blocked-resource"))
	})

	It("reports deadlock for a cycle of channel waits", func() {
		// The controlled form of two goroutines and main each receiving
		// first in a cycle.
		rep := runtime.Execute(lowestIDStrategy{}, 0, func() {
			a := make(chan int)
			b := make(chan int)
			runtime.SpawnTask("forward", func() {
				v := runtime.ChanRecv(a)
				runtime.ChanSend(b, v+1)
			})
			runtime.SpawnTask("backward", func() {
				v := runtime.ChanRecv(b)
				runtime.ChanSend(a, v+1)
			})
			runtime.ChanRecv(a)
		})

		Expect(rep.Outcome).To(Equal(runtime.OutcomeDeadlock))
		var deadlock *runtime.DeadlockError
		Expect(rep.Err).To(BeAssignableToTypeOf(deadlock))
		Expect(rep.Err.(*runtime.DeadlockError).Blocked).To(HaveLen(3))
	})

	It("replays a channel exchange exactly", func() {
		body := func() {
			ch := make(chan int, 2)
			runtime.SpawnTask("producer", func() {
				runtime.ChanSend(ch, 1)
				runtime.ChanSend(ch, 2)
			})
			runtime.ChanRecv(ch)
			runtime.ChanRecv(ch)
		}

		first := runtime.Execute(runtime.NewRandomStrategy(7), 0, body)
		Expect(first.Outcome).To(Equal(runtime.OutcomeCompleted))

		second := runtime.Execute(runtime.NewReplayStrategy(first.Trace), 0, body)
		Expect(second.Outcome).To(Equal(runtime.OutcomeCompleted))
		Expect(second.Trace.Steps()).To(Equal(first.Trace.Steps()))
	})
})
