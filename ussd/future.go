package ussd

import "sync"

//Future is the single deferred result of one Execute() call.
//It is resolved at most once: the first resolution wins and later ones are ignored.
type Future struct {
	mutex    sync.Mutex
	done     chan struct{}
	resolved bool
	text     string
	err      error
	then     []func(text string, err error)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

//resolve completes the future and returns true, or returns false when it was already complete
func (f *Future) resolve(text string, err error) bool {
	f.mutex.Lock()
	if f.resolved {
		f.mutex.Unlock()
		return false
	}
	f.resolved = true
	f.text = text
	f.err = err
	then := f.then
	f.then = nil
	close(f.done)
	f.mutex.Unlock()

	for _, fn := range then {
		fn(text, err)
	}
	return true
} //Future.resolve()

//Done is closed once the outcome is known
func (f *Future) Done() <-chan struct{} {
	return f.done
}

//Result blocks until the outcome is known.
//On failure err is an *Error and text is empty.
func (f *Future) Result() (text string, err error) {
	<-f.done
	return f.text, f.err
}

//Then registers fn to run once with the outcome.
//It runs on the goroutine that resolves the future,
//or immediately on the calling goroutine if already resolved.
func (f *Future) Then(fn func(text string, err error)) {
	f.mutex.Lock()
	if !f.resolved {
		f.then = append(f.then, fn)
		f.mutex.Unlock()
		return
	}
	text, err := f.text, f.err
	f.mutex.Unlock()
	fn(text, err)
}
