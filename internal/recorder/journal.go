// Package recorder appends every bus message to an on-disk journal.
// Records are codec envelopes wrapped in a length-prefixed frame with
// a CRC32C trailer, so a truncated or corrupted tail is detected on
// read instead of producing garbage replays.
package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/schema"
)

const (
	frameVersion    uint16 = 1
	frameHeaderSize        = 12
	frameCRCSize           = 4
)

var (
	frameMagic = [4]byte{'E', 'V', 'J', '1'}
	crcTable   = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic       = errors.New("journal invalid magic")
	ErrUnsupportedVersion = errors.New("journal unsupported version")
	ErrChecksumMismatch   = errors.New("journal checksum mismatch")
	ErrFrameTooLarge      = errors.New("journal frame too large")
)

// maxFrameLen bounds a single record. Envelopes are small; anything
// near this size is corruption, not data.
const maxFrameLen = 16 << 20

// Writer appends framed records to a single journal file.
type Writer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewWriter creates or truncates the journal file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create journal")
	}
	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one framed record.
func (w *Writer) Append(payload []byte) error {
	if len(payload) > maxFrameLen {
		return ErrFrameTooLarge
	}
	var header [frameHeaderSize]byte
	copy(header[0:4], frameMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], frameVersion)
	binary.LittleEndian.PutUint16(header[6:8], uint16(frameHeaderSize))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := w.w.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	var crc [frameCRCSize]byte
	binary.LittleEndian.PutUint32(crc[:], crc32.Checksum(payload, crcTable))
	if _, err := w.w.Write(crc[:]); err != nil {
		return errors.Wrap(err, "write frame checksum")
	}
	return nil
}

// Close flushes buffered records and syncs the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return errors.Wrap(err, "flush journal")
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return errors.Wrap(err, "sync journal")
	}
	return w.f.Close()
}

// Journal subscribes to the bus and records every message it sees.
type Journal struct {
	writer *Writer
	bus    *bus.Bus
	sub    *bus.Subscription
	wg     sync.WaitGroup
}

// allTopics is the full bus surface; the journal records everything.
var allTopics = []schema.Topic{
	schema.TopicPriceUpdates,
	schema.TopicAnalystSignals,
	schema.TopicOrderRequests,
	schema.TopicApprovedOrders,
	schema.TopicRejectedOrders,
	schema.TopicStopLossAlerts,
	schema.TopicTradeExecutions,
	schema.TopicPortfolioUpdates,
}

// Attach opens a journal at path and starts recording all bus traffic
// until Close.
func Attach(ctx context.Context, b *bus.Bus, path string) (*Journal, error) {
	writer, err := NewWriter(path)
	if err != nil {
		return nil, err
	}
	j := &Journal{writer: writer, bus: b}
	j.sub = b.Subscribe("journal", allTopics...)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.sub.Run(ctx, j.record)
	}()
	return j, nil
}

func (j *Journal) record(m bus.Message) {
	data, err := codec.Encode(m)
	if err != nil {
		logs.Errorf("journal encode %s seq %d: %v", m.Topic, m.Seq, err)
		return
	}
	if err := j.writer.Append(data); err != nil {
		logs.Errorf("journal append %s seq %d: %v", m.Topic, m.Seq, err)
	}
}

// Close stops recording and flushes the journal file.
func (j *Journal) Close() error {
	j.bus.Unsubscribe(j.sub)
	j.wg.Wait()
	return j.writer.Close()
}
