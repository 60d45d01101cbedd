package extract

import (
	"regexp"
	"strings"
)

// MaxChunkSize bounds the characters sent to the model per prompt.
const MaxChunkSize = 64000

var headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+.+$`)

// Chunk splits text into pieces of at most size characters, preferring to cut
// at markdown headers so that sections stay together.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = MaxChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var current []string
	currentLen := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current, currentLen = nil, 0
		}
	}

	for _, section := range splitSections(text) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		for _, piece := range hardSplit(section, size) {
			if currentLen+len(piece) > size && len(current) > 0 {
				flush()
			}
			current = append(current, piece)
			currentLen += len(piece)
		}
	}
	flush()
	return chunks
}

// splitSections cuts text before every header line, keeping the header with
// the body that follows it.
func splitSections(text string) []string {
	locs := headerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}
	var out []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			out = append(out, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	return append(out, text[prev:])
}

func hardSplit(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		cut := size
		// Do not split a multi-byte rune.
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
