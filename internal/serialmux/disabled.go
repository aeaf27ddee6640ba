package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrCLIDisabled is returned by DisabledSerialMux.SendCommand.
var ErrCLIDisabled = errors.New("radar CLI port disabled")

// DisabledSerialMux is the Console used while frames come from a capture
// file. It produces no output and refuses commands. Subscriber channels stay
// open until Unsubscribe or Close so the tail page behaves as it does live.
type DisabledSerialMux struct {
	reason string

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

// NewDisabledSerialMux returns a console whose debug page and command errors
// carry reason, such as "replaying capture.bin".
func NewDisabledSerialMux(reason string) *DisabledSerialMux {
	return &DisabledSerialMux{reason: reason, subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	return fmt.Errorf("%w (%s): %q not sent", ErrCLIDisabled, d.reason, command)
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		for id, ch := range d.subs {
			delete(d.subs, id)
			close(ch)
		}
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachConsoleRoutes(mux, d)
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "radar CLI port disabled: %s\n", d.reason)
	})
}
