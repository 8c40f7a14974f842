package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamStartedEvent, 1)

	unsub := bus.Subscribe(func(e StreamStartedEvent) {
		received <- e
	})
	defer unsub()

	event := StreamStartedEvent{
		Stream:     0,
		Width:      640,
		Height:     480,
		FrameRate:  30,
		IntervalMS: 33,
	}
	bus.Publish(event)

	got := <-received
	if got.Width != event.Width || got.IntervalMS != event.IntervalMS {
		t.Errorf("got %+v, want %+v", got, event)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamStoppedEvent, 1)

	unsub := bus.Subscribe(func(e StreamStoppedEvent) {
		received <- e
	})

	bus.Publish(StreamStoppedEvent{Stream: 0, Reason: "host"})
	<-received

	unsub()

	bus.Publish(StreamStoppedEvent{Stream: 1, Reason: "suspend"})
	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	modeReceived := make(chan bool, 1)
	pauseReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ModeChangedEvent) {
		modeReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ PausedChangedEvent) {
		pauseReceived <- true
	})
	defer unsub2()

	bus.Publish(ModeChangedEvent{Mode: "wifi"})
	<-modeReceived

	select {
	case <-pauseReceived:
		t.Fatal("pause subscriber received ModeChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(PausedChangedEvent{Paused: true})
	<-pauseReceived
}

func TestBus_ConcurrentPublish(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ CommandReceivedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(CommandReceivedEvent{Command: "ping", OK: true})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"StreamStarted", StreamStartedEvent{Stream: 0}},
		{"StreamStopped", StreamStoppedEvent{Stream: 0, Reason: "host"}},
		{"DeviceSuspended", DeviceSuspendedEvent{}},
		{"DeviceResumed", DeviceResumedEvent{}},
		{"ModeChanged", ModeChangedEvent{Mode: "uvc"}},
		{"PausedChanged", PausedChangedEvent{Paused: false}},
		{"CommandReceived", CommandReceivedEvent{Command: "get_serial", OK: true}},
		{"LogEntry", LogEntryEvent{Level: "info", Module: "uvc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case StreamStartedEvent:
				unsub = bus.Subscribe(func(e StreamStartedEvent) { received <- e })
			case StreamStoppedEvent:
				unsub = bus.Subscribe(func(e StreamStoppedEvent) { received <- e })
			case DeviceSuspendedEvent:
				unsub = bus.Subscribe(func(e DeviceSuspendedEvent) { received <- e })
			case DeviceResumedEvent:
				unsub = bus.Subscribe(func(e DeviceResumedEvent) { received <- e })
			case ModeChangedEvent:
				unsub = bus.Subscribe(func(e ModeChangedEvent) { received <- e })
			case PausedChangedEvent:
				unsub = bus.Subscribe(func(e PausedChangedEvent) { received <- e })
			case CommandReceivedEvent:
				unsub = bus.Subscribe(func(e CommandReceivedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[StreamStartedEvent](bus, ch)
	defer unsub()

	bus.Publish(StreamStartedEvent{Stream: 1, Width: 320, Height: 240})

	received := <-ch
	got, ok := received.(StreamStartedEvent)
	if !ok {
		t.Fatalf("received %T, want StreamStartedEvent", received)
	}
	if got.Stream != 1 || got.Width != 320 {
		t.Errorf("got %+v", got)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // no buffer, nobody reading

	unsub := SubscribeToChannel[ModeChangedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(ModeChangedEvent{Mode: "wifi"})
		done <- true
	}()

	<-done // publish must not block on a full channel
}
