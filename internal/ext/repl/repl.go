// Package repl reads script lines from an input stream and evaluates each
// one as a Task, printing the result and a prompt.
//
// Reading and writing run as spawned work so the loop never blocks on the
// terminal. Writes are chained: each write waits for the previous one, so
// output appears in the order the Tasks produced it. The reader does not
// read the next line until the previous line's result and prompt are out.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/alan/internal/runtime"
)

const (
	// Banner is printed once when the session starts.
	Banner = "Welcome to alan!\n"

	// Prompt is printed before every line is read.
	Prompt = "> "

	// ExitCommand ends the session.
	ExitCommand = "exit"
)

// Session is the REPL runtime.Extension.
type Session struct {
	in  io.Reader
	out io.Writer

	mu   sync.Mutex
	last *runtime.JoinHandle
}

// New creates a session reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Session {
	return &Session{in: in, out: out}
}

// Name implements runtime.Extension.
func (s *Session) Name() string {
	return "repl"
}

// Install prints the banner and starts the line reader.
func (s *Session) Install(a *runtime.Access) error {
	s.write(a, Banner+Prompt, nil)

	queue := a.Queue()
	a.Spawn(func(ctx context.Context) error {
		return s.read(ctx, queue)
	})
	return nil
}

// Wait blocks until every queued write has reached the output.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return nil
	}
	return last.Wait(ctx)
}

// read sends one Task per input line. It stops after the exit command; end
// of input counts as exit.
func (s *Session) read(ctx context.Context, queue *runtime.Queue) error {
	r := bufio.NewReader(s.in)

	for {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			err = fmt.Errorf("repl read: %w", err)
			queue.Send(runtime.FailTask(err))
			return err
		}

		eof := err != nil
		line = strings.TrimRight(line, "\r\n")
		if eof && line == "" {
			queue.Send(&evalTask{session: s, exit: true})
			return nil
		}

		exit := strings.TrimSpace(line) == ExitCommand
		task := &evalTask{session: s, line: line, exit: exit, ack: make(chan struct{})}
		if !queue.Send(task) || exit {
			return nil
		}
		if eof {
			queue.Send(&evalTask{session: s, exit: true})
			return nil
		}

		select {
		case <-task.ack:
		case <-ctx.Done():
			return nil
		}
	}
}

// write queues text behind every earlier write and closes done, if set,
// once the write has been attempted. Must be called with engine access
// held, so the chain is only extended from the loop goroutine.
func (s *Session) write(a *runtime.Access, text string, done chan<- struct{}) {
	queue := a.Queue()

	s.mu.Lock()
	prev := s.last
	s.last = a.Spawn(func(ctx context.Context) error {
		if done != nil {
			defer close(done)
		}
		if prev != nil {
			<-prev.Done()
		}
		if _, err := io.WriteString(s.out, text); err != nil {
			err = fmt.Errorf("repl write: %w", err)
			queue.Send(runtime.FailTask(err))
			return err
		}
		return nil
	})
	s.mu.Unlock()
}

// evalTask evaluates one input line. The exit task evaluates nothing and
// stops the loop. ack, if set, is closed once the line's output is written.
type evalTask struct {
	session *Session
	line    string
	exit    bool
	ack     chan struct{}
}

func (t *evalTask) Execute(a *runtime.Access) error {
	if t.exit {
		return nil
	}

	var result string
	h, err := a.EvalScript("repl", t.line)
	if err == nil {
		result, err = a.String(h)
	}
	if err != nil {
		var evalErr *runtime.EvalError
		if !errors.As(err, &evalErr) {
			return err
		}
		t.session.write(a, "Uncaught "+evalErr.Message+"\n"+Prompt, t.ack)
		return nil
	}

	t.session.write(a, result+"\n"+Prompt, t.ack)
	return nil
}

func (t *evalTask) Stop() bool { return t.exit }

func (t *evalTask) Kind() string {
	if t.exit {
		return "repl.exit"
	}
	return "repl.eval"
}
