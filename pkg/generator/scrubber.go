package generator

import (
	"regexp"
	"strings"
)

// Model-internal artifacts that must never reach the client: chain-of-thought
// markers, ReAct scaffolding labels, and system-prompt echo fragments.
var artifactRes = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?i)</?thinking>`),
	regexp.MustCompile(`(?im)^\s*(?:Thought|Action|Action Input|Observation|Final Answer)\s*:[^\n]*\n?`),
	regexp.MustCompile(`(?i)\bYou are a (?:warm, knowledgeable culinary companion|culinary troubleshooter|precise recipe instructor|nutrition analyst)\b[^.\n]*\.?`),
}

// reactLabels open a scaffolding line that is dropped through its newline.
// Labels only count at the start of a line.
var reactLabels = []string{"Action Input:", "Final Answer:", "Thought:", "Action:", "Observation:"}

const (
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)

// ScrubText removes recognized artifacts from a fully assembled response.
func ScrubText(text string) string {
	out := text
	for _, re := range artifactRes {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}

type scrubState int

const (
	stateNormal    scrubState = iota
	stateThinking             // inside <thinking>...</thinking>
	stateLabelLine            // inside a ReAct label line, dropped through newline
)

// Scrubber filters a token stream in real time, holding back the shortest
// tail that could still turn out to be an artifact opener split across
// tokens. Not safe for concurrent use; one per generation.
type Scrubber struct {
	state       scrubState
	buf         string
	atLineStart bool
	initialized bool
}

// Scrub ingests one token and returns the client-safe text released by it,
// which may be empty while an artifact span is suppressed or an ambiguous
// tail is held back.
func (s *Scrubber) Scrub(token string) string {
	if !s.initialized {
		s.atLineStart = true
		s.initialized = true
	}
	s.buf += token

	var out strings.Builder
	for {
		switch s.state {
		case stateThinking:
			if idx := strings.Index(s.buf, thinkingClose); idx != -1 {
				s.buf = s.buf[idx+len(thinkingClose):]
				s.state = stateNormal
				s.atLineStart = false
				continue
			}
			s.buf = possibleTagTail(s.buf, thinkingClose)
			return out.String()

		case stateLabelLine:
			if idx := strings.Index(s.buf, "\n"); idx != -1 {
				s.buf = s.buf[idx+1:]
				s.state = stateNormal
				s.atLineStart = true
				continue
			}
			s.buf = ""
			return out.String()

		default:
			idx, opener, isLabel := s.findOpener()
			if idx != -1 {
				out.WriteString(s.buf[:idx])
				s.buf = s.buf[idx+len(opener):]
				if isLabel {
					s.state = stateLabelLine
				} else {
					s.state = stateThinking
				}
				continue
			}
			emit, hold := s.splitHoldback()
			out.WriteString(emit)
			s.buf = hold
			return out.String()
		}
	}
}

// Flush releases whatever held-back text never resolved into an artifact.
// Call once at end of stream.
func (s *Scrubber) Flush() string {
	if s.state != stateNormal {
		s.buf = ""
		return ""
	}
	out := s.buf
	s.buf = ""
	return out
}

// findOpener locates the earliest complete artifact opener in the buffer.
func (s *Scrubber) findOpener() (int, string, bool) {
	bestIdx, bestOpener, bestLabel := -1, "", false

	if idx := strings.Index(s.buf, thinkingOpen); idx != -1 {
		bestIdx, bestOpener = idx, thinkingOpen
	}
	for _, label := range reactLabels {
		idx := strings.Index(s.buf, label)
		if idx == -1 || (bestIdx != -1 && idx >= bestIdx) {
			continue
		}
		if s.lineStartAt(idx) {
			bestIdx, bestOpener, bestLabel = idx, label, true
		}
	}
	return bestIdx, bestOpener, bestLabel
}

func (s *Scrubber) lineStartAt(idx int) bool {
	if idx == 0 {
		return s.atLineStart
	}
	return s.buf[idx-1] == '\n'
}

// splitHoldback keeps the longest buffer suffix that is a proper prefix of
// some artifact opener and releases everything before it.
func (s *Scrubber) splitHoldback() (string, string) {
	maxHold := len("Action Input:")
	if maxHold > len(s.buf) {
		maxHold = len(s.buf)
	}
	for n := maxHold; n > 0; n-- {
		cut := len(s.buf) - n
		tail := s.buf[cut:]
		if strings.HasPrefix(thinkingOpen, tail) && len(tail) < len(thinkingOpen) {
			return s.emitUpTo(cut), tail
		}
		if !s.lineStartAt(cut) {
			continue
		}
		for _, label := range reactLabels {
			if strings.HasPrefix(label, tail) && len(tail) < len(label) {
				return s.emitUpTo(cut), tail
			}
		}
	}
	return s.emitUpTo(len(s.buf)), ""
}

// emitUpTo returns the buffer prefix of length cut and records whether the
// held-back remainder sits at a line start.
func (s *Scrubber) emitUpTo(cut int) string {
	emitted := s.buf[:cut]
	if cut > 0 {
		s.atLineStart = s.buf[cut-1] == '\n'
	}
	return emitted
}

// possibleTagTail keeps only a suffix that could be the start of tag.
func possibleTagTail(buf, tag string) string {
	max := len(tag) - 1
	if max > len(buf) {
		max = len(buf)
	}
	for n := max; n > 0; n-- {
		tail := buf[len(buf)-n:]
		if strings.HasPrefix(tag, tail) {
			return tail
		}
	}
	return ""
}
