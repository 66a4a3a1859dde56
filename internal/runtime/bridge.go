package runtime

// Message is a closure run with exclusive engine access. It may return
// follow-up work to spawn; nil means the message is already resolved.
type Message func(a *Access) SpawnFunc

// Bridge lets code outside the loop schedule closures that need exclusive
// engine access.
//
// Both message shapes are normalized to Message and delivered as Tasks on the
// Runtime's single queue, so bridge messages are ordered with every other
// Task. There is no second channel.
type Bridge struct {
	queue *Queue
}

// Send schedules a fire-and-forget closure.
// Returns false if the Runtime's queue is closed.
func (b *Bridge) Send(fn func(a *Access)) bool {
	return b.SendAsync(func(a *Access) SpawnFunc {
		fn(a)
		return nil
	})
}

// SendAsync schedules a closure whose returned work is spawned after it runs.
// Returns false if the Runtime's queue is closed.
func (b *Bridge) SendAsync(msg Message) bool {
	return b.queue.Send(bridgeTask{msg: msg})
}

type bridgeTask struct {
	msg Message
}

func (t bridgeTask) Execute(a *Access) error {
	if work := t.msg(a); work != nil {
		a.Spawn(work)
	}
	return nil
}

func (bridgeTask) Stop() bool   { return false }
func (bridgeTask) Kind() string { return "bridge" }
