package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	spoolPrefix = "lernsino-"
	spoolSuffix = ".jsonl"

	// spoolPollInterval is how often spools are checked when no watch event arrives.
	spoolPollInterval = 200 * time.Millisecond
	// maxSpoolSize is the size past which a spool is truncated before the next append.
	maxSpoolSize = 1 << 20
)

// ErrBusClosed is returned when publishing or subscribing on a closed bus.
var ErrBusClosed = errors.New("pubsub: bus closed")

// spoolRecord is one line of a spool file.
type spoolRecord struct {
	Bus      string            `json:"bus"`
	Topic    string            `json:"topic"`
	UserID   string            `json:"userId,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// DeviceBus is a Bus shared by every process of the same user on one device.
//
// Subscribers in this process are served by an in-memory WatermillBridge.
// Every publish is also appended to a per-topic spool file under dir; each
// DeviceBus tails the spools of the topics it subscribes to and republishes
// lines written by other buses into its own bridge. Only messages published
// after a topic's first subscription are delivered.
type DeviceBus struct {
	id     string
	dir    string
	local  *WatermillBridge
	logger *slog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	writeMu sync.Mutex

	mu      sync.Mutex
	closed  bool
	tailers map[string]*spoolTailer
}

// spoolTailer follows one spool file. It is only touched by the run loop
// once registered.
type spoolTailer struct {
	topic  string
	path   string
	offset int64
}

// NewDeviceBus creates dir if needed and starts watching it. A nil logger uses
// slog.Default; a nil tracer disables tracing on the in-process bridge.
func NewDeviceBus(dir string, logger *slog.Logger, tracer trace.Tracer) (*DeviceBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("device bus: empty spool directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("device bus: create spool directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DeviceBus{
		id:      uuid.NewString(),
		dir:     dir,
		local:   NewWatermillBridgeWithTracer(logger, tracer),
		logger:  logger.With("component", "device_bus"),
		ctx:     ctx,
		cancel:  cancel,
		tailers: make(map[string]*spoolTailer),
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
		if err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		d.logger.Warn("Spool watcher unavailable, falling back to polling", "dir", dir, "error", err)
	} else {
		d.watcher = watcher
	}

	d.wg.Add(1)
	go d.run()
	return d, nil
}

// SpoolPath returns the spool file used for topic under dir.
func SpoolPath(dir, topic string) string {
	return filepath.Join(dir, spoolPrefix+sanitizeTopic(topic)+spoolSuffix)
}

func sanitizeTopic(topic string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, topic)
}

// Publish delivers msg to subscribers in this process and appends it to the
// topic's spool for the other processes on the device.
func (d *DeviceBus) Publish(ctx context.Context, msg Message) error {
	if d.isClosed() {
		return ErrBusClosed
	}
	if err := d.local.Publish(ctx, msg); err != nil {
		return err
	}

	line, err := json.Marshal(spoolRecord{
		Bus:      d.id,
		Topic:    msg.Topic,
		UserID:   msg.UserID,
		Metadata: msg.Metadata,
		Payload:  msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode spool record: %w", err)
	}
	if err := d.appendLine(SpoolPath(d.dir, msg.Topic), append(line, '\n')); err != nil {
		return fmt.Errorf("append to spool: %w", err)
	}
	return nil
}

// appendLine writes line with a single O_APPEND write so concurrent
// publishers never interleave inside a record.
func (d *DeviceBus) appendLine(path string, line []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size()+int64(len(line)) > maxSpoolSize {
		if err := f.Truncate(0); err != nil {
			return err
		}
	}
	_, err = f.Write(line)
	return err
}

// Subscribe registers handler on the in-process bridge and starts tailing the
// topic's spool from its current end.
func (d *DeviceBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrBusClosed
	}
	if err := d.local.Subscribe(ctx, topic, handler); err != nil {
		return err
	}
	if _, ok := d.tailers[topic]; ok {
		return nil
	}

	path := SpoolPath(d.dir, topic)
	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat spool: %w", err)
	}
	d.tailers[topic] = &spoolTailer{topic: topic, path: path, offset: offset}
	d.logger.Debug("Tailing spool", "topic", topic, "path", path, "offset", offset)
	return nil
}

func (d *DeviceBus) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(spoolPollInterval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if d.watcher != nil {
		events = d.watcher.Events
		errs = d.watcher.Errors
	}

	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				d.drain(filepath.Clean(ev.Name))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.logger.Error("Spool watcher error", "error", err)
		case <-ticker.C:
			d.drain("")
		}
	}
}

// drain reads new records from the tailers whose spool is path, or from all
// tailers when path is empty.
func (d *DeviceBus) drain(path string) {
	d.mu.Lock()
	tailers := make([]*spoolTailer, 0, len(d.tailers))
	for _, t := range d.tailers {
		if path == "" || filepath.Clean(t.path) == path {
			tailers = append(tailers, t)
		}
	}
	d.mu.Unlock()

	for _, t := range tailers {
		if err := d.follow(t); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("Failed to read spool", "topic", t.topic, "path", t.path, "error", err)
		}
	}
}

func (d *DeviceBus) follow(t *spoolTailer) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size < t.offset {
		// Truncated by a publisher; start over.
		t.offset = 0
	}
	if size == t.offset {
		return nil
	}

	buf := make([]byte, size-t.offset)
	n, err := f.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		// Partial record; wait for the rest.
		return nil
	}
	t.offset += int64(end + 1)

	for _, line := range bytes.Split(buf[:end], []byte{'\n'}) {
		d.deliver(t.topic, line)
	}
	return nil
}

func (d *DeviceBus) deliver(topic string, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	var rec spoolRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		d.logger.Debug("Skipping unreadable spool record", "topic", topic, "error", err)
		return
	}
	if rec.Bus == d.id || rec.Topic != topic {
		return
	}

	err := d.local.Publish(d.ctx, Message{
		Topic:    rec.Topic,
		UserID:   rec.UserID,
		Payload:  rec.Payload,
		Metadata: rec.Metadata,
	})
	if err != nil {
		d.logger.Warn("Failed to relay spool record", "topic", topic, "error", err)
	}
}

func (d *DeviceBus) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops tailing and closes the in-process bridge. Spool files are left in place.
func (d *DeviceBus) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	var errs []error
	if d.watcher != nil {
		errs = append(errs, d.watcher.Close())
	}
	errs = append(errs, d.local.Close())
	return errors.Join(errs...)
}
