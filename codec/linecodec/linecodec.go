// Package linecodec is pipecraft's reference text codec: one record per
// newline-terminated line. Like gobcodec, it is a minimal stand-in for a
// production text codec, kept out of the core on purpose.
package linecodec

import (
	"bufio"
	"io"
	"sync"

	"github.com/gosuda/pipecraft/codec"
)

type encoder struct{}

func (encoder) Encode(w io.Writer, v string) error {
	_, err := io.WriteString(w, v+"\n")
	return err
}

// decoder wraps a *bufio.Reader per underlying io.Reader so repeated
// Decode calls don't re-buffer from the start. A single decoder instance
// (as returned by a shared Factory) may be used concurrently across many
// open readers — e.g. many bucket files decoded by different workers.
type decoder struct {
	mu   sync.Mutex
	bufs map[io.Reader]*bufio.Reader
}

func (d *decoder) Decode(r io.Reader) (string, error) {
	d.mu.Lock()
	br, ok := d.bufs[r]
	if !ok {
		br = bufio.NewReader(r)
		d.bufs[r] = br
	}
	d.mu.Unlock()
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if err != nil && err != io.EOF {
		return line, err
	}
	if line == "" && err == io.EOF {
		d.mu.Lock()
		delete(d.bufs, r)
		d.mu.Unlock()
		return "", io.EOF
	}
	return line, nil
}

// New returns a codec.Factory[string] that encodes/decodes one string per
// line.
func New() codec.Factory[string] {
	return codec.NewFactory[string](encoder{}, &decoder{bufs: map[io.Reader]*bufio.Reader{}})
}
