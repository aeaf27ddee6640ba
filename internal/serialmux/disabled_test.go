package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux("replaying run.bin")
	id, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		_, ok := <-ch
		if ok {
			t.Errorf("expected channel to be closed on unsubscribe")
		}
		close(done)
	}()

	// Give goroutine a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	d.Unsubscribe(id)

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for subscriber to be unblocked after Unsubscribe")
	}
}

func TestDisabledSerialMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledSerialMux("replaying run.bin")
	id1, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	done1 := make(chan struct{})
	done2 := make(chan struct{})

	go func() {
		_, ok := <-ch1
		if ok {
			t.Errorf("expected ch1 to be closed on Close")
		}
		close(done1)
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Errorf("expected ch2 to be closed on Close")
		}
		close(done2)
	}()

	// Give goroutines a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch1 to be closed after Close")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch2 to be closed after Close")
	}

	// Ensure unsubscribing a non-existent id is a no-op (should not panic)
	d.Unsubscribe(id1)
}

func TestDisabledSerialMux_SubscribeAfterClose(t *testing.T) {
	d := NewDisabledSerialMux("replaying run.bin")
	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	_, ch := d.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("expected a closed channel after Close")
	}
	if err := d.SendCommand("sensorStop"); !errors.Is(err, ErrCLIDisabled) {
		t.Errorf("SendCommand = %v, want ErrCLIDisabled", err)
	} else if !strings.Contains(err.Error(), "run.bin") {
		t.Errorf("SendCommand error %q does not name the capture", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	httpMux := http.NewServeMux()
	NewDisabledSerialMux("replaying run.bin").AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "replaying run.bin") {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestDisabledSerialMux_SendCommandAPIConflict(t *testing.T) {
	httpMux := http.NewServeMux()
	NewDisabledSerialMux("replaying run.bin").AttachAdminRoutes(httpMux)

	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command=sensorStop"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d (%s)", w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestDisabledSerialMux_MonitorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := NewDisabledSerialMux("replaying run.bin").Monitor(ctx); err == nil {
		t.Error("expected context error")
	}
}
