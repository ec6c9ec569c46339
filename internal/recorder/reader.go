package recorder

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/codec"
)

// Reader iterates the records of a journal file in write order.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

// OpenReader opens the journal file at path for sequential reads.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &Reader{f: f, r: bufio.NewReader(f)}, nil
}

// Next returns the raw payload of the next record, or io.EOF when the
// journal is exhausted. A short or corrupt frame returns an error and
// the reader must not be used again.
func (r *Reader) Next() ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read frame header")
	}
	if [4]byte(header[0:4]) != frameMagic {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != frameVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", v)
	}
	n := binary.LittleEndian.Uint32(header[8:12])
	if n > maxFrameLen {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, errors.Wrap(err, "read frame payload")
	}
	var crc [frameCRCSize]byte
	if _, err := io.ReadFull(r.r, crc[:]); err != nil {
		return nil, errors.Wrap(err, "read frame checksum")
	}
	if binary.LittleEndian.Uint32(crc[:]) != crc32.Checksum(payload, crcTable) {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// NextMessage decodes the next record back into a bus message.
func (r *Reader) NextMessage() (bus.Message, error) {
	data, err := r.Next()
	if err != nil {
		return bus.Message{}, err
	}
	return codec.Decode(data)
}

func (r *Reader) Close() error {
	return r.f.Close()
}
