package orchestrator

import "strings"

// fragmenter accumulates streamed text deltas and cuts them into
// synthesis fragments at sentence boundaries. A fragment is closed when
// a sentence-ending rune is seen and the accumulated text has reached
// minLen; shorter sentences ride along with the next one.
type fragmenter struct {
	minLen int
	buf    strings.Builder
}

func newFragmenter(minLen int) *fragmenter {
	if minLen < 1 {
		minLen = 1
	}
	return &fragmenter{minLen: minLen}
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

// Feed appends a delta and returns any fragments completed by it.
func (f *fragmenter) Feed(delta string) []string {
	var out []string
	for _, r := range delta {
		f.buf.WriteRune(r)
		if isSentenceEnd(r) && len(strings.TrimSpace(f.buf.String())) >= f.minLen {
			if frag := strings.TrimSpace(f.buf.String()); frag != "" {
				out = append(out, frag)
			}
			f.buf.Reset()
		}
	}
	return out
}

// Flush returns whatever text remains after the stream ends, trimmed,
// or "" if nothing is pending.
func (f *fragmenter) Flush() string {
	frag := strings.TrimSpace(f.buf.String())
	f.buf.Reset()
	return frag
}
