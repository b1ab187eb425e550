package notifier

import (
	"context"
	"errors"
	"testing"

	"herald/internal/transport"
	"herald/pkg/logx"
)

type sentCall struct {
	kind   string // "text" or "photo"
	chatID int64
	text   string
	photo  string
}

type fakeSink struct {
	calls     []sentCall
	photoErr  map[int64]error
	textErr   map[int64]error
	nextMsgID int
}

func (f *fakeSink) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if err := f.textErr[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.calls = append(f.calls, sentCall{kind: "text", chatID: to.ChatID, text: text})
	f.nextMsgID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsgID}, nil
}

func (f *fakeSink) SendPhoto(_ context.Context, to transport.ChatTarget, photoURL, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if err := f.photoErr[to.ChatID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.calls = append(f.calls, sentCall{kind: "photo", chatID: to.ChatID, text: caption, photo: photoURL})
	f.nextMsgID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextMsgID}, nil
}

func (f *fakeSink) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (f *fakeSink) Delete(context.Context, transport.MessageRef) error { return nil }

func TestBroadcastText(t *testing.T) {
	sink := &fakeSink{}
	d := New(sink, 1000, logx.Nop())

	d.Broadcast(context.Background(), []int64{1, 2}, Message{Text: "привет"})

	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sink.calls))
	}
	for i, chatID := range []int64{1, 2} {
		if sink.calls[i].kind != "text" || sink.calls[i].chatID != chatID {
			t.Fatalf("call %d: %+v", i, sink.calls[i])
		}
	}
}

func TestBroadcastPhotoFallsBackToLink(t *testing.T) {
	sink := &fakeSink{photoErr: map[int64]error{2: errors.New("wrong file id")}}
	d := New(sink, 1000, logx.Nop())

	d.Broadcast(context.Background(), []int64{1, 2}, Message{
		Text:     "анонс",
		PhotoURL: "https://img.example/x.jpg",
	})

	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(sink.calls))
	}
	if sink.calls[0].kind != "photo" || sink.calls[0].chatID != 1 {
		t.Fatalf("chat 1 must get the photo: %+v", sink.calls[0])
	}
	fb := sink.calls[1]
	if fb.kind != "text" || fb.chatID != 2 {
		t.Fatalf("chat 2 must get the text fallback: %+v", fb)
	}
	if fb.text != "https://img.example/x.jpg\n\nанонс" {
		t.Fatalf("fallback must lead with the image link: %q", fb.text)
	}
}

func TestBroadcastFailureIsolation(t *testing.T) {
	sink := &fakeSink{textErr: map[int64]error{1: errors.New("blocked")}}
	d := New(sink, 1000, logx.Nop())

	d.Broadcast(context.Background(), []int64{1, 2, 3}, Message{Text: "x"})

	if len(sink.calls) != 2 {
		t.Fatalf("remaining chats must still be served, got %d sends", len(sink.calls))
	}
	if sink.calls[0].chatID != 2 || sink.calls[1].chatID != 3 {
		t.Fatalf("unexpected call order: %+v", sink.calls)
	}
}

func TestBroadcastStopsOnCancelledContext(t *testing.T) {
	sink := &fakeSink{}
	d := New(sink, 1000, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Broadcast(ctx, []int64{1, 2}, Message{Text: "x"})

	if len(sink.calls) != 0 {
		t.Fatalf("cancelled broadcast must not send, got %d", len(sink.calls))
	}
}
