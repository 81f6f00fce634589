package shuffle

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameKind tags what readFrame decoded off the wire.
type frameKind int

const (
	frameData frameKind = iota
	frameChannelDone
	frameWorkerDone
)

// Reserved int32 length sentinels. Frame lengths are otherwise a
// non-negative byte count (0 is a legal empty payload).
const (
	lengthChannelDone int32 = -1
	lengthWorkerDone  int32 = -2
)

// writeDataFrame writes a length-prefixed payload. A zero-length payload
// is legal and distinct from the channel-done/worker-done sentinels.
func writeDataFrame(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.BigEndian, int32(len(payload))); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// writeChannelDone marks this connection's data stream as finished,
// reporting the total bytes sent on it so the receiver can cross-check.
func writeChannelDone(w io.Writer, bytesSent int64) error {
	if err := binary.Write(w, binary.BigEndian, lengthChannelDone); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, bytesSent)
}

// writeWorkerDone marks this peer as having finished sending to every
// destination. Sent on a fresh, otherwise-unused connection.
func writeWorkerDone(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, lengthWorkerDone)
}

// readFrame decodes one frame. For frameData it returns the payload; for
// frameChannelDone it returns the peer-reported byte count; for
// frameWorkerDone both are zero-valued.
func readFrame(r io.Reader) (frameKind, []byte, int64, error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return 0, nil, 0, err
	}
	switch {
	case length == lengthChannelDone:
		var n int64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return 0, nil, 0, err
		}
		return frameChannelDone, nil, n, nil
	case length == lengthWorkerDone:
		return frameWorkerDone, nil, 0, nil
	case length < lengthWorkerDone:
		return 0, nil, 0, fmt.Errorf("shuffle: invalid frame length %d", length)
	case length == 0:
		return frameData, []byte{}, 0, nil
	default:
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, 0, err
		}
		return frameData, buf, 0, nil
	}
}
