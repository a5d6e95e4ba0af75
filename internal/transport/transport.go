// Package transport accepts host requests over a unix domain socket. Frames
// are newline-delimited JSON, one request and one response per line. Every
// dispatch is marshalled onto the event loop goroutine, so the executor's
// single-threaded discipline holds no matter how many connections are open.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/loykin/guestexec/internal/agent"
	"github.com/loykin/guestexec/internal/eventloop"
	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// Frames larger than this are rejected rather than buffered; script bodies
// and relayed packets fit comfortably.
const maxFrameSize = 4 << 20

// Server owns the listening socket.
type Server struct {
	loop *eventloop.Loop
	disp *agent.Dispatcher
	log  *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

func NewServer(loop *eventloop.Loop, disp *agent.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{loop: loop, disp: disp, log: log}
}

// Listen binds the unix socket, replacing a stale socket file from a
// previous run.
func (s *Server) Listen(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until the context is cancelled or Close is
// called. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("transport: Serve before Listen")
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Close stops the listener. Safe to call before Listen and more than once.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	enc := json.NewEncoder(conn)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handleFrame(line)
		if err := enc.Encode(resp); err != nil {
			s.log.Debug("write response", "error", err)
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.log.Debug("read frame", "error", err)
	}
}

func (s *Server) handleFrame(line []byte) wireResponse {
	var wreq wireRequest
	if err := json.Unmarshal(line, &wreq); err != nil {
		return wireResponse{Code: status.ErrInvalidBody.String()}
	}
	body, err := decodeBody(wreq.Op, wreq.Body)
	if err != nil {
		s.log.Debug("decode body", "op", wreq.Op.String(), "error", err)
		return wireResponse{Code: status.ErrInvalidBody.String()}
	}
	req := request.Request{Op: wreq.Op, Creds: wreq.Creds, Body: body}

	respCh := make(chan agent.Response, 1)
	posted := s.loop.Post(func() {
		respCh <- s.disp.Dispatch(req, wreq.Name)
	})
	if !posted {
		// Loop already stopped; the agent is shutting down.
		return wireResponse{Code: status.ErrFail.String()}
	}
	resp := <-respCh

	out := wireResponse{Code: resp.Code.String(), Len: resp.Len}
	if resp.Len > 0 {
		out.Data = resp.Data[:resp.Len]
	}
	return out
}
