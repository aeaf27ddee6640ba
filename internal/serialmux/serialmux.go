// Package serialmux owns the serial transport to a TI mmWave radar: port
// options and factories, the CLI configuration handshake, port discovery, and
// a multiplexer that lets several clients watch the CLI console and send it
// commands once the radar is streaming.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/baxasd/OST-Radar/internal/monitoring"
	"tailscale.com/tsweb"
)

var logf = monitoring.Component("serialmux")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// Console is the CLI console surface shared by SerialMux and
// DisabledSerialMux.
type Console interface {
	// Subscribe creates a new channel for receiving CLI output lines. The
	// channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the CLI port.
	SendCommand(string) error
	// Monitor reads lines from the CLI port and fans them out until ctx
	// is done or the port closes.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the port.
	Close() error
	// AttachAdminRoutes attaches admin debugging endpoints to the given
	// HTTP mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

var (
	_ Console = (*SerialMux[Port])(nil)
	_ Console = (*DisabledSerialMux)(nil)
)

// SerialMux multiplexes the radar CLI port after the configuration
// handshake: every line the firmware prints is broadcast to subscribers, and
// commands (for example sensorStop / sensorStart) can be injected.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      atomic.Bool
	lastCommand  atomic.Value // string
}

// NewSerialMux creates a SerialMux over an already configured CLI port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand writes a command line to the CLI port. Acknowledgements arrive
// through Monitor like any other output.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	command = strings.TrimRight(command, "\r\n")
	s.lastCommand.Store(command)
	line := command + "\n"
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads CLI output and broadcasts each line. Reads that time out are
// retried; io.EOF or Close end monitoring without error.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := newLineReader(s.port)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := lines.ReadLine()
		switch {
		case errors.Is(err, errNoData):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			if s.closing.Load() {
				return nil
			}
			return fmt.Errorf("failed to read CLI port: %w", err)
		}
		if s.closing.Load() {
			return nil
		}

		last, _ := s.lastCommand.Load().(string)
		if ClassifyResponse(line, last) == ResponseError {
			logf("radar reported %q", line)
		}
		s.broadcast(line)
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the outer loop
		}
	}
}

func (s *SerialMux[T]) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachConsoleRoutes(mux, s)
}

// attachConsoleRoutes serves the command form, the command API and an SSE
// tail of CLI output for any Console.
func attachConsoleRoutes(mux *http.ServeMux, c Console) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the radar CLI port", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := c.SendCommand(command); errors.Is(err, ErrCLIDisabled) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		} else if err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to CLI port", command))
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, lines := c.Subscribe()
		defer c.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
