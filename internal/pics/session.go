package pics

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"gamehoard/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second

	// Batch discipline for get_product_info.
	maxBatchSize  = 50
	interBatchGap = 200 * time.Millisecond

	// Login failure circuit: after this many consecutive failures,
	// refuse reconnects for the cooldown window unless forced.
	maxLoginFailures = 3
	loginCooldown    = 10 * time.Second
)

// ErrSessionClosed is returned by calls on a dead session.
var ErrSessionClosed = errors.New("pics session closed")

// ErrCoolingDown is returned while the login circuit is open.
var ErrCoolingDown = errors.New("pics login cooling down after repeated failures")

// transport is the byte stream to the worker process.
type transport interface {
	io.Reader
	io.Writer
	Close() error
}

// Session multiplexes requests over one worker connection. Responses
// are matched to callers by correlation id, so requests may overlap.
type Session struct {
	mu       sync.Mutex
	conn     transport
	pending  map[string]chan response
	closed   bool
	loggedIn bool

	failures    int
	lastFailure time.Time

	// Product cache: PICS data is stable within a run, so repeat
	// lookups are answered locally unless the caller forces.
	cacheMu sync.Mutex
	cache   map[int64]ProductRecord

	now func() time.Time
}

func newSession(conn transport) *Session {
	s := &Session{
		conn:    conn,
		pending: make(map[string]chan response),
		cache:   make(map[int64]ProductRecord),
		now:     time.Now,
	}
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			logging.PICS("Discarding unparseable worker line: %v", err)
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		delete(s.pending, resp.ID)
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	// Worker went away. Fail every waiter and mark the session dead so
	// the factory respawns on the next call.
	s.mu.Lock()
	s.closed = true
	s.loggedIn = false
	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
	s.mu.Unlock()
	logging.PICS("Worker connection closed")
}

// Alive reports whether the worker is still reachable.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) send(ctx context.Context, req request, timeout time.Duration) (*response, error) {
	req.ID = uuid.NewString()
	ch := make(chan response, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.pending[req.ID] = ch
	line, err := json.Marshal(req)
	if err == nil {
		_, err = s.conn.Write(append(line, '\n'))
	}
	if err != nil {
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("pics: write %s: %w", req.Command, err)
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrSessionClosed
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("pics: %s: %s", req.Command, resp.Error)
		}
		return &resp, nil
	case <-timer.C:
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("pics: %s timed out after %s", req.Command, timeout)
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Connect logs the worker into Steam anonymously. Repeated failures
// open a circuit that only force can bypass before the cooldown ends.
func (s *Session) Connect(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.loggedIn {
		s.mu.Unlock()
		return nil
	}
	if !force && s.failures >= maxLoginFailures && s.now().Sub(s.lastFailure) < loginCooldown {
		s.mu.Unlock()
		return ErrCoolingDown
	}
	s.mu.Unlock()

	_, err := s.send(ctx, request{Command: cmdConnect, Force: force}, connectTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.lastFailure = s.now()
		return fmt.Errorf("pics: connect failed (%d consecutive): %w", s.failures, err)
	}
	s.failures = 0
	s.loggedIn = true
	logging.PICS("Connected to Steam")
	return nil
}

// Disconnect logs out but keeps the worker alive.
func (s *Session) Disconnect(ctx context.Context) error {
	_, err := s.send(ctx, request{Command: cmdDisconnect}, connectTimeout)
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	return err
}

// Status queries the worker's connection state.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	resp, err := s.send(ctx, request{Command: cmdStatus}, connectTimeout)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		return nil, fmt.Errorf("pics: bad status payload: %w", err)
	}
	return &st, nil
}

// Shutdown asks the worker to exit cleanly and closes the pipe.
func (s *Session) Shutdown(ctx context.Context) error {
	_, err := s.send(ctx, request{Command: cmdShutdown}, connectTimeout)
	s.conn.Close()
	return err
}

// GetProductInfo fetches PICS records for the given apps, batching at
// most 50 ids per request with a gap between batches. Cached records
// are served locally unless force. A failed batch is skipped; the rest
// of the call proceeds.
func (s *Session) GetProductInfo(ctx context.Context, appIDs []int64, force bool) (map[int64]ProductRecord, error) {
	if err := s.Connect(ctx, force); err != nil {
		return nil, err
	}

	out := make(map[int64]ProductRecord, len(appIDs))
	var missing []int64
	if force {
		missing = appIDs
	} else {
		s.cacheMu.Lock()
		for _, id := range appIDs {
			if rec, ok := s.cache[id]; ok {
				out[id] = rec
			} else {
				missing = append(missing, id)
			}
		}
		s.cacheMu.Unlock()
	}

	for start := 0; start < len(missing); start += maxBatchSize {
		if start > 0 {
			select {
			case <-time.After(interBatchGap):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
		end := start + maxBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		resp, err := s.send(ctx, request{Command: cmdGetProductInfo, AppIDs: batch}, requestTimeout)
		if err != nil {
			logging.PICS("Batch of %d apps failed, skipping: %v", len(batch), err)
			if errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) {
				return out, err
			}
			continue
		}

		var records []ProductRecord
		if err := json.Unmarshal(resp.Result, &records); err != nil {
			logging.PICS("Bad product info payload, skipping batch: %v", err)
			continue
		}
		s.cacheMu.Lock()
		for _, rec := range records {
			out[rec.AppID] = rec
			s.cache[rec.AppID] = rec
		}
		s.cacheMu.Unlock()
		logging.PICSDebug("Batch %d-%d returned %d records", start, end, len(records))
	}
	return out, nil
}
