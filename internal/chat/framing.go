package chat

import "strings"

const (
	bodyStartMarker = "BODY_START"
	bodyEndMarker   = "BODY_END"
	notEnoughPrefix = "NOT_ENOUGH_CONTEXT="

	// lookahead must cover bodyEndMarker so a marker straddling two deltas
	// is never flushed to the client.
	lookahead = 15
)

type framingState int

const (
	statePreBody framingState = iota
	stateBody
	statePostBody
)

// FrameParser separates a model stream into the user-visible body and the
// trailing control metadata. Feed deltas in arrival order; emitted strings
// are safe to forward verbatim.
//
// No byte of the control framing is ever emitted: inside the body the parser
// withholds the last lookahead characters until more input or Finish proves
// they are not the start of BODY_END.
type FrameParser struct {
	state framingState
	buf   string
	side  string
}

func NewFrameParser() *FrameParser {
	return &FrameParser{state: statePreBody}
}

// Feed consumes one delta and returns the body text now safe to emit.
func (p *FrameParser) Feed(delta string) string {
	if delta == "" {
		return ""
	}
	var out strings.Builder

	p.buf += delta
	for {
		switch p.state {
		case statePreBody:
			idx := strings.Index(p.buf, bodyStartMarker)
			if idx < 0 {
				// Keep a tail in case the marker straddles deltas.
				if len(p.buf) > lookahead {
					p.buf = p.buf[len(p.buf)-lookahead:]
				}
				return out.String()
			}
			p.buf = strings.TrimLeft(p.buf[idx+len(bodyStartMarker):], "\n")
			p.state = stateBody

		case stateBody:
			idx := strings.Index(p.buf, bodyEndMarker)
			if idx >= 0 {
				out.WriteString(strings.TrimRight(p.buf[:idx], " \n\t"))
				p.side = p.buf[idx+len(bodyEndMarker):]
				p.buf = ""
				p.state = statePostBody
				return out.String()
			}
			if len(p.buf) > lookahead {
				out.WriteString(p.buf[:len(p.buf)-lookahead])
				p.buf = p.buf[len(p.buf)-lookahead:]
			}
			return out.String()

		case statePostBody:
			p.side += p.buf
			p.buf = ""
			return out.String()
		}
	}
}

// Finish flushes whatever body text is still held back and returns it. Call
// once, after the stream ends.
func (p *FrameParser) Finish() string {
	if p.state != stateBody {
		return ""
	}
	out := strings.TrimRight(p.buf, " \n\t")
	p.buf = ""
	return out
}

// NeedsMoreContext parses the NOT_ENOUGH_CONTEXT flag out of the trailing
// metadata. A stream that never reached the metadata reports false.
func (p *FrameParser) NeedsMoreContext() bool {
	idx := strings.Index(p.side, notEnoughPrefix)
	if idx < 0 {
		return false
	}
	rest := strings.TrimSpace(p.side[idx+len(notEnoughPrefix):])
	return strings.HasPrefix(strings.ToLower(rest), "true")
}
