package sandbox

import (
	"bytes"
	"io"
	"os"
)

// pipeBuffer collects at most limit+1 bytes from the write end of a pipe.
// The extra byte distinguishes "hit the limit exactly" from "exceeded it".
type pipeBuffer struct {
	w      *os.File
	buffer *bytes.Buffer
	done   <-chan struct{}
	limit  Size
}

func newPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		io.CopyN(writer, r, n)
		close(done)
		// drain to avoid blocking / SIGPIPE on the writing end
		io.Copy(io.Discard, r)
		r.Close()
	}()
	return done, w, nil
}

func newPipeBuffer(limit Size) (*pipeBuffer, error) {
	buffer := new(bytes.Buffer)
	done, w, err := newPipe(buffer, int64(limit)+1)
	if err != nil {
		return nil, err
	}
	return &pipeBuffer{
		w:      w,
		buffer: buffer,
		done:   done,
		limit:  limit,
	}, nil
}

// collect waits for the writer side to finish and returns the captured
// content truncated to the limit, with an overflow flag.
func (p *pipeBuffer) collect() (content []byte, overflow bool) {
	<-p.done
	b := p.buffer.Bytes()
	if int64(len(b)) > int64(p.limit) {
		return b[:p.limit], true
	}
	return b, false
}
