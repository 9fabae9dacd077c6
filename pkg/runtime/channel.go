package runtime

import "reflect"

// Channel hooks. Instrumented channel operations must never block inside the
// Go runtime while holding the scheduling turn: a native block would park the
// whole execution with enabled operations still waiting for the turn, and
// neither deadlock detection nor the step bound could fire. Each hook yields
// at a scheduling point, then attempts the operation non-blockingly; when the
// channel is not ready the operation parks as a resource wait and the
// counterparty, running on its own turn, completes the exchange.

// chanWaiter is one controlled operation parked on a channel operation.
// Senders carry the undeliverable value plus a non-blocking retry into the
// channel's buffer; receivers get a direct delivery slot. delivered is
// flipped under the scheduler lock by the counterparty holding the turn,
// which is what TryEnable observes.
type chanWaiter struct {
	send bool

	value    any
	hasValue bool
	trySend  func() bool

	delivered bool
	closed    bool
}

// chanKey identifies a channel independently of its direction: the same
// channel seen as chan T, chan<- T and <-chan T must share one wait list.
func chanKey(ch any) uintptr {
	return reflect.ValueOf(ch).Pointer()
}

// ChanSend performs a controlled channel send.
func ChanSend[T any](ch chan<- T, v T) {
	s, op := currentScheduler()
	op.OnGetAwaiter()
	if err := s.ScheduleNext(PointYield); err != nil {
		panic(ErrExecutionCanceled)
	}
	op.SetAwaiterControlled(false)

	key := chanKey(ch)
	for {
		if s.deliverToWaitingReceiver(key, v) {
			return
		}
		select {
		case ch <- v:
			return
		default:
		}
		w := &chanWaiter{send: true, value: v, trySend: func() bool {
			select {
			case ch <- v:
				return true
			default:
				return false
			}
		}}
		if err := s.parkOnChannel(op, key, w); err != nil {
			panic(ErrExecutionCanceled)
		}
		if !w.closed {
			return
		}
		// Closed while parked; the retry panics exactly like a native send
		// on a closed channel.
	}
}

// ChanRecv performs a controlled channel receive.
func ChanRecv[T any](ch <-chan T) T {
	v, _ := chanRecv(ch)
	return v
}

// ChanRecvOK performs a controlled two-value channel receive.
func ChanRecvOK[T any](ch <-chan T) (T, bool) {
	return chanRecv(ch)
}

func chanRecv[T any](ch <-chan T) (T, bool) {
	s, op := currentScheduler()
	op.OnGetAwaiter()
	if err := s.ScheduleNext(PointYield); err != nil {
		panic(ErrExecutionCanceled)
	}
	op.SetAwaiterControlled(false)

	key := chanKey(ch)
	for {
		select {
		case v, ok := <-ch:
			// Buffer space freed; the oldest parked sender keeps its FIFO
			// position by moving into the buffer now.
			s.fillFromWaitingSender(key)
			return v, ok
		default:
		}
		if raw, ok := s.takeFromWaitingSender(key); ok {
			return raw.(T), true
		}
		w := &chanWaiter{}
		if err := s.parkOnChannel(op, key, w); err != nil {
			panic(ErrExecutionCanceled)
		}
		if w.hasValue {
			return w.value.(T), true
		}
		// Woken by close; the retry observes it like a native receive.
	}
}

// ChanClose performs a controlled close and releases every operation parked
// on the channel.
func ChanClose[T any](ch chan<- T) {
	s, op := currentScheduler()
	op.OnGetAwaiter()
	if err := s.ScheduleNext(PointYield); err != nil {
		panic(ErrExecutionCanceled)
	}
	op.SetAwaiterControlled(false)

	close(ch)
	s.wakeAllOnChannel(chanKey(ch))
}

// parkOnChannel registers w on the channel's wait list, blocks op as a
// resource wait, and yields the turn.
func (s *Scheduler) parkOnChannel(op *TaskOperation, key uintptr, w *chanWaiter) error {
	s.mu.Lock()
	s.chanWaiters[key] = append(s.chanWaiters[key], w)
	s.mu.Unlock()

	op.resource = w
	op.SetStatus(StatusBlockedOnResource)
	return s.ScheduleNext(PointJoin)
}

// deliverToWaitingReceiver hands v directly to the oldest parked receiver.
func (s *Scheduler) deliverToWaitingReceiver(key uintptr, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.chanWaiters[key] {
		if w.send {
			continue
		}
		w.value = v
		w.hasValue = true
		w.delivered = true
		s.removeWaiterLocked(key, i)
		return true
	}
	return false
}

// takeFromWaitingSender removes the oldest parked sender and returns its
// value, completing that sender's operation.
func (s *Scheduler) takeFromWaitingSender(key uintptr) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.chanWaiters[key] {
		if !w.send {
			continue
		}
		w.delivered = true
		s.removeWaiterLocked(key, i)
		return w.value, true
	}
	return nil, false
}

// fillFromWaitingSender moves the oldest parked sender's value into buffer
// space freed by a receive.
func (s *Scheduler) fillFromWaitingSender(key uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.chanWaiters[key] {
		if !w.send || !w.trySend() {
			continue
		}
		w.delivered = true
		s.removeWaiterLocked(key, i)
		return
	}
}

// wakeAllOnChannel releases every waiter on a closed channel; each retries
// its operation and observes the close natively.
func (s *Scheduler) wakeAllOnChannel(key uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.chanWaiters[key] {
		w.closed = true
		w.delivered = true
	}
	delete(s.chanWaiters, key)
}

func (s *Scheduler) removeWaiterLocked(key uintptr, i int) {
	ws := s.chanWaiters[key]
	s.chanWaiters[key] = append(ws[:i], ws[i+1:]...)
	if len(s.chanWaiters[key]) == 0 {
		delete(s.chanWaiters, key)
	}
}
