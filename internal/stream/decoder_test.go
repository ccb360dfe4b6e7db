package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func collect(d *Decoder) []Event {
	var events []Event
	for ev := range d.All() {
		events = append(events, ev)
	}
	return events
}

func TestDecoderBasicStream(t *testing.T) {
	body := `data: {"type":"user_message_saved","user_message_id":7}

data: {"type":"content","data":"Hel"}

data: {"type":"content","data":"lo"}

data: {"type":"done","user_message_id":7,"ai_message_id":8}

`
	events := collect(NewDecoder(strings.NewReader(body)))

	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d: %+v", len(events), events)
	}

	want := []EventType{TypeUserMessageSaved, TypeContent, TypeContent, TypeDone}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, want[i])
		}
		if ev.Synthetic {
			t.Errorf("event %d unexpectedly synthetic", i)
		}
	}

	if *events[0].UserMessageID != 7 {
		t.Errorf("Expected user_message_id 7, got %d", *events[0].UserMessageID)
	}
	if events[1].Data+events[2].Data != "Hello" {
		t.Errorf("Expected content 'Hello', got %q", events[1].Data+events[2].Data)
	}
	if *events[3].AIMessageID != 8 {
		t.Errorf("Expected ai_message_id 8, got %d", *events[3].AIMessageID)
	}
}

func TestDecoderSplitFrames(t *testing.T) {
	body := "data: {\"type\":\"content\",\"data\":\"a\"}\r\n\r\ndata:{\"type\":\"content\",\"data\":\"b\"}\n" +
		"data: {\"type\":\"done\",\"ai_message_id\":1}\n"

	// one byte per read splits every frame at every position
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(body)))
	events := collect(d)

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Data != "a" || events[1].Data != "b" {
		t.Errorf("Expected data a, b; got %q, %q", events[0].Data, events[1].Data)
	}
	if events[2].Type != TypeDone {
		t.Errorf("Expected done, got %s", events[2].Type)
	}
}

func TestDecoderSkipsMalformedFrames(t *testing.T) {
	l, hook := test.NewNullLogger()

	body := `data: {"type":"content","data":"one"}
data: {"type":"content","data":
data: not json at all
data: {"type":"content","data":"two"}
data: {"type":"done"}
`
	d := NewDecoder(strings.NewReader(body), WithLogger(logrus.NewEntry(l)))
	events := collect(d)

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Data != "one" || events[1].Data != "two" {
		t.Errorf("Expected data one, two; got %q, %q", events[0].Data, events[1].Data)
	}
	if d.Malformed() != 2 {
		t.Errorf("Expected 2 malformed frames, got %d", d.Malformed())
	}

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("Expected 2 warnings, got %d", warnings)
	}
}

func TestDecoderIgnoresNonDataLines(t *testing.T) {
	body := `: keep-alive
event: message
id: 3
retry: 1000
data: {"type":"heartbeat"}
data:
data: [DONE]
data: {"type":"content","data":"x"}
data: {"type":"cancelled","reason":"user"}
`
	d := NewDecoder(strings.NewReader(body))
	events := collect(d)

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[1].Type != TypeCancelled || events[1].Reason != "user" {
		t.Errorf("Expected cancelled with reason 'user', got %+v", events[1])
	}
	if d.Malformed() != 0 {
		t.Errorf("Expected no malformed frames, got %d", d.Malformed())
	}
}

func TestDecoderUnterminatedStream(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "content only", body: "data: {\"type\":\"content\",\"data\":\"partial\"}\n"},
		{name: "incomplete trailing line", body: "data: {\"type\":\"content\",\"data\":\"x\"}\ndata: {\"type\":\"done\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(strings.NewReader(tt.body))
			events := collect(d)
			if len(events) == 0 {
				t.Fatal("Expected at least one event")
			}

			last := events[len(events)-1]
			if last.Type != TypeError || !last.Synthetic {
				t.Fatalf("Expected synthetic error, got %+v", last)
			}
			if last.Error != ErrInterrupted.Error() {
				t.Errorf("Expected %q, got %q", ErrInterrupted.Error(), last.Error)
			}
			if d.Err() != nil {
				t.Errorf("Expected nil Err() on EOF, got %v", d.Err())
			}
		})
	}
}

func TestDecoderTransportError(t *testing.T) {
	reset := errors.New("connection reset by peer")
	r := io.MultiReader(
		strings.NewReader("data: {\"type\":\"content\",\"data\":\"so far\"}\n"),
		iotest.ErrReader(reset),
	)

	d := NewDecoder(r)
	events := collect(d)

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[1].Type != TypeError || events[1].Error != reset.Error() {
		t.Errorf("Expected error event carrying %q, got %+v", reset.Error(), events[1])
	}
	if !errors.Is(d.Err(), reset) {
		t.Errorf("Expected Err() = %v, got %v", reset, d.Err())
	}
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDecoderStopsAfterTerminal(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"type\":\"error\",\"error\":\"model overloaded\"}\n" +
			"data: {\"type\":\"content\",\"data\":\"late\"}\n",
	)}

	d := NewDecoder(body)

	ev, ok := d.Next()
	if !ok || ev.Type != TypeError || ev.Error != "model overloaded" {
		t.Fatalf("Expected backend error event, got %+v (ok=%v)", ev, ok)
	}
	if ev.Synthetic {
		t.Error("Backend error should not be synthetic")
	}
	if !body.closed {
		t.Error("Expected body closed after terminal event")
	}

	for i := 0; i < 3; i++ {
		if ev, ok := d.Next(); ok {
			t.Errorf("Expected no events after terminal, got %+v", ev)
		}
	}
}

func TestDecoderBreakClosesBody(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"type\":\"content\",\"data\":\"a\"}\ndata: {\"type\":\"content\",\"data\":\"b\"}\n",
	)}

	d := NewDecoder(body)
	for range d.All() {
		break
	}

	if !body.closed {
		t.Error("Expected body closed when iteration stops early")
	}
	if _, ok := d.Next(); ok {
		t.Error("Expected decoder finished after Close")
	}
}

func TestFromEvents(t *testing.T) {
	src := FromEvents(
		Event{Type: TypeUserMessageSaved, UserMessageID: ID(1)},
		Event{Type: TypeDone, AIMessageID: ID(2)},
		Event{Type: TypeContent, Data: "after terminal"},
	)

	var got []EventType
	for {
		ev, ok := src.Next()
		if !ok {
			break
		}
		got = append(got, ev.Type)
	}

	if len(got) != 2 || got[1] != TypeDone {
		t.Errorf("Expected [user_message_saved done], got %v", got)
	}
}
