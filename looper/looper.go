//Package looper runs posted functions one at a time on a single goroutine,
//giving callbacks a fixed execution context.
package looper

import (
	"fmt"
	"sync"

	"bitbucket.org/vservices/ms-vservices-ussd/logger"
)

var log = logger.NewLogger()

type Looper struct {
	name   string
	mutex  sync.Mutex
	queue  []func()
	wake   chan struct{}
	quit   bool
	exited chan struct{}
}

func New(name string) *Looper {
	l := &Looper{
		name:   name,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *Looper) Name() string { return l.name }

//Post queues fn without blocking
//it returns false when the looper has quit and fn will never run
func (l *Looper) Post(fn func()) bool {
	if l == nil || fn == nil {
		return false
	}
	l.mutex.Lock()
	if l.quit {
		l.mutex.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mutex.Unlock()
	select {
	case l.wake <- struct{}{}:
	default: //already signalled
	}
	return true
}

//Quit stops accepting work; functions already queued still run
func (l *Looper) Quit() {
	l.mutex.Lock()
	l.quit = true
	l.mutex.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

//Wait blocks until the looper goroutine exited after Quit()
func (l *Looper) Wait() {
	<-l.exited
}

func (l *Looper) loop() {
	defer close(l.exited)
	for range l.wake {
		for {
			l.mutex.Lock()
			if len(l.queue) == 0 {
				quit := l.quit
				l.mutex.Unlock()
				if quit {
					log.Debugf("looper(%s) quit", l.name)
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mutex.Unlock()
			l.run(fn)
		}
	}
} //Looper.loop()

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("looper(%s) recovered: %s", l.name, fmt.Sprint(r))
		}
	}()
	fn()
}
