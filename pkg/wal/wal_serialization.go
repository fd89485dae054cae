package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-kv/pkg/pools"
)

// Frame format, little-endian:
//   [FirstLSN:8][Count:4][Flags:1][PayloadLen:4][Payload:N][CRC32:4]
// The payload holds Count entries of [Op:1][Key:4][Value:4], snappy
// compressed when flagSnappy is set. The checksum covers header and payload.
// Entry i of a frame has LSN FirstLSN+i.

const (
	frameHeaderSize  = 17
	frameTrailerSize = 4
	entrySize        = 9
	maxFramePayload  = 64 << 20

	flagSnappy byte = 1 << 0
)

// errCorruptFrame marks a frame that is torn or fails its checksum
var errCorruptFrame = errors.New("wal: corrupt frame")

// encodeFrame appends the frame for entries to dst. It also returns the raw
// payload size for statistics.
func encodeFrame(dst []byte, entries []Entry, compress bool) ([]byte, int) {
	raw := pools.GetBytesSized(len(entries) * entrySize)
	defer pools.PutBytes(raw)
	for i, e := range entries {
		off := i * entrySize
		raw[off] = byte(e.Op)
		binary.LittleEndian.PutUint32(raw[off+1:], uint32(e.Key))
		binary.LittleEndian.PutUint32(raw[off+5:], uint32(e.Value))
	}

	payload := raw
	var flags byte
	if compress {
		payload = snappy.Encode(nil, raw)
		flags |= flagSnappy
	}

	start := len(dst)
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint64(header[0:8], entries[0].LSN)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	header[12] = flags
	binary.LittleEndian.PutUint32(header[13:17], uint32(len(payload)))

	dst = append(dst, header[:]...)
	dst = append(dst, payload...)
	dst = binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:]))
	return dst, len(raw)
}

// readFrame reads the next frame. It returns io.EOF at a clean end of log
// and errCorruptFrame for a torn or damaged frame.
func readFrame(r *bufio.Reader) ([]Entry, int64, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("%w: short header: %v", errCorruptFrame, err)
	}

	firstLSN := binary.LittleEndian.Uint64(header[0:8])
	count := binary.LittleEndian.Uint32(header[8:12])
	flags := header[12]
	payloadLen := binary.LittleEndian.Uint32(header[13:17])
	if count == 0 || payloadLen > maxFramePayload {
		return nil, 0, fmt.Errorf("%w: bad header (count %d, payload %d)", errCorruptFrame, count, payloadLen)
	}

	body := pools.GetBytesSized(int(payloadLen) + frameTrailerSize)
	defer pools.PutBytes(body)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, fmt.Errorf("%w: short body: %v", errCorruptFrame, err)
	}
	payload := body[:payloadLen]

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(payload)
	if crc.Sum32() != binary.LittleEndian.Uint32(body[payloadLen:]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch at LSN %d", errCorruptFrame, firstLSN)
	}

	raw := payload
	if flags&flagSnappy != 0 {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", errCorruptFrame, err)
		}
		raw = decoded
	}
	if len(raw) != int(count)*entrySize {
		return nil, 0, fmt.Errorf("%w: payload holds %d bytes for %d entries", errCorruptFrame, len(raw), count)
	}

	entries := make([]Entry, count)
	for i := range entries {
		off := i * entrySize
		entries[i] = Entry{
			LSN:   firstLSN + uint64(i),
			Op:    OpType(raw[off]),
			Key:   int32(binary.LittleEndian.Uint32(raw[off+1:])),
			Value: int32(binary.LittleEndian.Uint32(raw[off+5:])),
		}
	}

	frameLen := int64(frameHeaderSize) + int64(payloadLen) + frameTrailerSize
	return entries, frameLen, nil
}
