package codegen

import (
	"regexp"
	"strings"
)

var (
	pythonFenceRe  = regexp.MustCompile("(?s)```(?:python|py)\\s*\\n(.*?)```")
	genericFenceRe = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
	tildeFenceRe   = regexp.MustCompile("(?s)~~~(?:python|py)?\\s*\\n(.*?)~~~")
)

// ExtractCode pulls an algorithm out of a model reply. Fenced python
// blocks win, then any fenced block, then tilde fences, then the reply
// itself if it already reads as code. Multiple blocks: the largest one
// that looks like code wins.
func ExtractCode(reply string) (string, bool) {
	for _, re := range []*regexp.Regexp{pythonFenceRe, genericFenceRe, tildeFenceRe} {
		if code, ok := largestCodeBlock(re, reply); ok {
			return code, true
		}
	}

	trimmed := strings.TrimSpace(reply)
	if looksLikeCode(trimmed) {
		return trimmed, true
	}
	return "", false
}

func largestCodeBlock(re *regexp.Regexp, reply string) (string, bool) {
	var best string
	for _, m := range re.FindAllStringSubmatch(reply, -1) {
		block := strings.TrimSpace(m[1])
		if !looksLikeCode(block) {
			continue
		}
		if len(block) > len(best) {
			best = block
		}
	}
	return best, best != ""
}

// looksLikeCode accepts text that declares an algorithm class or at
// least imports and defines something.
func looksLikeCode(text string) bool {
	if text == "" {
		return false
	}
	if strings.Contains(text, "class ") && strings.Contains(text, "def ") {
		return true
	}
	return strings.Contains(text, "import ") && strings.Contains(text, "def ")
}
