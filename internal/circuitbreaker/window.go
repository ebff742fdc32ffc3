package circuitbreaker

import "time"

// maxWindow is the largest supported window in seconds.
const maxWindow = 120

type slot struct {
	failures float64
	calls    int
}

// window accumulates weighted failures in one-second slots over a rolling
// period. It is not safe for concurrent use; Breaker serializes access.
type window struct {
	slots  [maxWindow]slot
	n      int   // active slots
	cur    int   // slot for curSec
	curSec int64 // unix second of cur, 0 before the first record
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > maxWindow {
		seconds = 60
	}
	return window{n: seconds}
}

// rotate moves cur forward to sec and zeroes every slot skipped on the way.
func (w *window) rotate(sec int64) {
	if w.curSec == 0 {
		w.curSec = sec
		return
	}
	step := sec - w.curSec
	if step <= 0 {
		return
	}
	for i := range min(step, int64(w.n)) {
		w.slots[(w.cur+1+int(i))%w.n] = slot{}
	}
	w.cur = (w.cur + int(step%int64(w.n))) % w.n
	w.curSec = sec
}

func (w *window) add(weight float64, at time.Time) {
	w.rotate(at.Unix())
	w.slots[w.cur].calls++
	w.slots[w.cur].failures += weight
}

// rate returns the weighted failure ratio and the number of calls seen.
func (w *window) rate(at time.Time) (float64, int) {
	w.rotate(at.Unix())
	var failures float64
	var calls int
	for i := range w.n {
		failures += w.slots[i].failures
		calls += w.slots[i].calls
	}
	if calls == 0 {
		return 0, 0
	}
	return failures / float64(calls), calls
}

func (w *window) reset() {
	clear(w.slots[:w.n])
	w.cur = 0
	w.curSec = 0
}
