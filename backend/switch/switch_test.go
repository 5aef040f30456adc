package _switch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adwski/proctor-signaling/backend/model"
	"github.com/adwski/proctor-signaling/backend/storage/memory"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type recorder struct {
	id  string
	err error
	// block makes Deliver wait for ctx to expire.
	block bool

	mx   sync.Mutex
	msgs [][]byte
}

func newRecorder(id string) *recorder {
	return &recorder{id: id}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(ctx context.Context, payload []byte) error {
	if r.block {
		<-ctx.Done()
		return errors.Join(model.ErrEndpointTimedOut, ctx.Err())
	}
	if r.err != nil {
		return r.err
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	r.msgs = append(r.msgs, payload)
	return nil
}

func (r *recorder) received() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, string(m))
	}
	return out
}

func newTestSwitch(fwdTimeout time.Duration) *Switch {
	logger := zerolog.Nop()
	return NewSwitch(Config{
		Logger:         &logger,
		Store:          memory.NewMemStore(memory.DefaultShards),
		ForwardTimeout: fwdTimeout,
	})
}

func TestSwitch_BroadcastExcludesSender(t *testing.T) {
	sw := newTestSwitch(0)
	a, b, c := newRecorder("a"), newRecorder("b"), newRecorder("c")
	for _, ep := range []*recorder{a, b, c} {
		sw.Join("exam-1", ep)
	}

	n := sw.Broadcast(context.Background(), "exam-1", a, []byte(`{"type":"offer"}`))
	if n != 2 {
		t.Errorf("Broadcast() = %d, want 2", n)
	}
	if got := a.received(); len(got) != 0 {
		t.Errorf("sender received its own message: %s", spew.Sdump(got))
	}
	for _, r := range []*recorder{b, c} {
		got := r.received()
		if len(got) != 1 || got[0] != `{"type":"offer"}` {
			t.Errorf("%s received %s, want exactly the offer", r.id, spew.Sdump(got))
		}
	}
}

func TestSwitch_BroadcastUnknownRoom(t *testing.T) {
	sw := newTestSwitch(0)
	a := newRecorder("a")
	if n := sw.Broadcast(context.Background(), "nope", a, []byte(`{}`)); n != 0 {
		t.Errorf("Broadcast() to unknown room = %d, want 0", n)
	}
}

func TestSwitch_LeaveRemovesEmptyRoom(t *testing.T) {
	sw := newTestSwitch(0)
	a, b := newRecorder("a"), newRecorder("b")
	sw.Join("exam-1", a)
	sw.Join("exam-1", b)

	sw.Leave("exam-1", a)
	if room, err := sw.GetRoom("exam-1"); err != nil || room.Members != 1 {
		t.Fatalf("GetRoom() = %+v, %v, want 1 member", room, err)
	}
	sw.Leave("exam-1", b)
	if _, err := sw.GetRoom("exam-1"); !errors.Is(err, memory.ErrRoomNotFound) {
		t.Errorf("GetRoom() error = %v, want %v", err, memory.ErrRoomNotFound)
	}
	if n := sw.Broadcast(context.Background(), "exam-1", b, []byte(`{}`)); n != 0 {
		t.Errorf("Broadcast() after room removal = %d, want 0", n)
	}

	// leaving twice or leaving a room never joined is fine
	sw.Leave("exam-1", b)
	sw.Leave("other", a)
}

func TestSwitch_FailedPeerDoesNotStopOthers(t *testing.T) {
	sw := newTestSwitch(20 * time.Millisecond)
	sender := newRecorder("sender")
	closed := newRecorder("closed")
	closed.err = model.ErrEndpointClosed
	slow := newRecorder("slow")
	slow.block = true
	ok1, ok2 := newRecorder("ok1"), newRecorder("ok2")

	for _, ep := range []*recorder{sender, closed, slow, ok1, ok2} {
		sw.Join("exam-1", ep)
	}

	start := time.Now()
	n := sw.Broadcast(context.Background(), "exam-1", sender, []byte(`{"type":"ice-candidate"}`))
	if n != 2 {
		t.Errorf("Broadcast() = %d, want 2", n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Broadcast() took %v, slow peer was not bounded", elapsed)
	}
	for _, r := range []*recorder{ok1, ok2} {
		if got := r.received(); len(got) != 1 {
			t.Errorf("%s received %d messages, want 1", r.id, len(got))
		}
	}
}

func TestSwitch_BroadcastCanceled(t *testing.T) {
	sw := newTestSwitch(0)
	a, b := newRecorder("a"), newRecorder("b")
	sw.Join("exam-1", a)
	sw.Join("exam-1", b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := sw.Broadcast(ctx, "exam-1", a, []byte(`{}`)); n != 0 {
		t.Errorf("Broadcast() with canceled ctx = %d, want 0", n)
	}
}

func TestSwitch_PreservesSenderOrder(t *testing.T) {
	sw := newTestSwitch(0)
	a, b := newRecorder("a"), newRecorder("b")
	sw.Join("exam-1", a)
	sw.Join("exam-1", b)

	want := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		msg := fmt.Sprintf(`{"type":"seq","n":%d}`, i)
		want = append(want, msg)
		sw.Broadcast(context.Background(), "exam-1", a, []byte(msg))
	}
	got := b.received()
	if len(got) != len(want) {
		t.Fatalf("received %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSwitch_ConcurrentJoinAndLeave(t *testing.T) {
	const n = 100
	sw := newTestSwitch(0)
	eps := make([]*recorder, n)
	for i := range eps {
		eps[i] = newRecorder(fmt.Sprintf("conn-%d", i))
	}

	var g errgroup.Group
	for _, ep := range eps {
		g.Go(func() error {
			sw.Join("exam-42", ep)
			return nil
		})
	}
	_ = g.Wait()

	room, err := sw.GetRoom("exam-42")
	if err != nil || room.Members != n {
		t.Fatalf("GetRoom() = %+v, %v, want %d members", room, err, n)
	}

	for _, ep := range eps {
		g.Go(func() error {
			sw.Broadcast(context.Background(), "exam-42", ep, []byte(`{"type":"bye"}`))
			sw.Leave("exam-42", ep)
			return nil
		})
	}
	_ = g.Wait()

	if rooms := sw.Rooms(); len(rooms) != 0 {
		t.Errorf("rooms left after concurrent disconnect: %s", spew.Sdump(rooms))
	}
}

func TestSwitch_BroadcastLogFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.TraceLevel)
	sw := NewSwitch(Config{
		Logger:         &logger,
		Store:          memory.NewMemStore(memory.DefaultShards),
		ForwardTimeout: 20 * time.Millisecond,
	})
	a, b := newRecorder("a"), newRecorder("b")
	b.err = errors.New("write failed")
	sw.Join("exam-1", a)
	sw.Join("exam-1", b)
	buf.Reset()

	sw.Broadcast(context.Background(), "exam-1", a, []byte(`{"type":"offer"}`))

	var dead map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("bad log line %s: %v", line, err)
		}
		if entry["message"] == "dead endpoint" {
			dead = entry
		}
	}
	if dead == nil {
		t.Fatalf("no dead endpoint entry in log:\n%s", buf.String())
	}
	want := map[string]string{
		"component": "switch",
		"sessionID": "exam-1",
		"src":       "a",
		"dst":       "b",
	}
	for k, v := range want {
		if dead[k] != v {
			t.Errorf("log field %s = %v, want %s", k, dead[k], v)
		}
	}
}
