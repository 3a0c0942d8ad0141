package source

import (
	"regexp"
	"strings"
)

// Property keys inspected for a display name, in rough order of usefulness.
var nameProperties = []string{
	"application.process.binary",
	"application.name",
	"media.name",
	"node.name",
}

// vagueWords appear in generic stream names ("playStream", "audioCallback")
// and carry no meaning for the user. Candidates containing them score lower.
var vagueWords = []string{
	"play", "audio", "voice", "stream", "driver", "webrtc", "engine",
	"playback", "callback", "alsa",
}

// wordSplitRE splits camelCase, snake_case and dotted identifiers into words.
var wordSplitRE = regexp.MustCompile(`([^.,\-_\sA-Z]+)|([^.,\-_\sa-z][^.\sA-Z]+)`)

// nameQuality scores how useful a property value is as a display name.
// Mixed-case strings score a bonus; vague words a penalty per occurrence.
func nameQuality(s string) int {
	score := 0
	if isDoubleCase(s) {
		score++
	}
	for _, w := range wordSplitRE.FindAllString(s, -1) {
		if isVague(w) {
			score--
		} else {
			score++
		}
	}
	return score
}

func isDoubleCase(s string) bool {
	lower := 0
	for _, r := range s {
		if 'a' <= r && r <= 'z' {
			lower++
		}
	}
	return lower < len(s)
}

func isVague(word string) bool {
	for _, v := range vagueWords {
		if strings.EqualFold(word, v) {
			return true
		}
	}
	return false
}

// nameCandidates extracts property values usable as display names, best
// first. Values scoring 1 or below are considered unidentifiable noise.
func nameCandidates(props map[string]string) []string {
	type scored struct {
		value string
		score int
	}
	var cands []scored
	for _, key := range nameProperties {
		v, ok := props[key]
		if !ok || v == "" {
			continue
		}
		if score := nameQuality(v); score > 1 {
			cands = append(cands, scored{v, score})
		}
	}
	// Insertion sort by score descending; the list is tiny.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].score > cands[j-1].score; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.value
	}
	return out
}

const (
	firefoxName = "Firefox"
	chromeName  = "Chrome"
)

// classifyKind detects browser-tab sources from the candidate names.
func classifyKind(candidates []string) Kind {
	for _, c := range candidates {
		switch {
		case strings.EqualFold(c, firefoxName):
			return KindFirefoxTab
		case strings.EqualFold(c, chromeName):
			return KindChromeTab
		}
	}
	return KindStandalone
}

// displayName picks the best display name for a source of the given kind.
// For browser tabs the browser's own name is skipped in favour of the tab
// title, since every tab stream carries the browser name.
func displayName(kind Kind, candidates []string) string {
	switch kind {
	case KindFirefoxTab, KindChromeTab:
		browser := firefoxName
		if kind == KindChromeTab {
			browser = chromeName
		}
		for _, c := range candidates {
			if !strings.EqualFold(c, browser) {
				return c
			}
		}
		return "Unidentifiable " + browser + " tab"
	default:
		if len(candidates) > 0 {
			return candidates[0]
		}
		return "Unidentifiable audio source"
	}
}

// applicationName picks the matching key: the process binary when present,
// else the application name.
func applicationName(props map[string]string) string {
	if v := props["application.process.binary"]; v != "" {
		return v
	}
	if v := props["application.name"]; v != "" {
		return v
	}
	return "unknown"
}
