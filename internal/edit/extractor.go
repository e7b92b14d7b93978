// Package edit turns a model response into file edits and applies them to a project file system.
package edit

import (
	"iter"
	"log"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

const (
	FenceOpener  = "```FILEPATH:"
	ContentStart = "<<FILE_CONTENT_START>>"
	ContentEnd   = "<<FILE_CONTENT_END>>"
)

// blockPattern matches one file block:
//
//	```FILEPATH: <path>
//	<<FILE_CONTENT_START>>
//	<content>
//	<<FILE_CONTENT_END>>
//	```
//
// The content is arbitrary text, except that it may not run across another start or end marker. A block with a
// missing end marker therefore stops at the next block's start marker instead of absorbing that block.
const blockPattern = "```FILEPATH:(?<path>(?:(?!<<FILE_CONTENT_START>>)[^\\n])*)\\s*<<FILE_CONTENT_START>>" +
	"(?<content>(?:(?!<<FILE_CONTENT_START>>|<<FILE_CONTENT_END>>).)*?)" +
	"<<FILE_CONTENT_END>>\\s*```"

// DefaultMatchTimeout bounds a single regexp2 match. Backtracking on adversarial input stops here instead of hanging
// the turn.
const DefaultMatchTimeout = 2 * time.Second

// FileEdit is a whole-file replacement parsed from a response
type FileEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Outcome classifies a response by what the extractor found in it
type Outcome int

const (
	// OutcomeEdits means at least one well-formed block was found
	OutcomeEdits Outcome = iota
	// OutcomeNoEdits means the response is a conversational answer with no blocks
	OutcomeNoEdits
	// OutcomeUnparsed means the response opened blocks but none of them were well formed
	OutcomeUnparsed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEdits:
		return "edits"
	case OutcomeNoEdits:
		return "no_edits"
	case OutcomeUnparsed:
		return "unparsed"
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Extraction is the result of scanning one response
type Extraction struct {
	Edits []FileEdit
	// Unmatched counts fence openers that did not produce an edit
	Unmatched int

	response string
}

func (e Extraction) Outcome() Outcome {
	switch {
	case len(e.Edits) > 0:
		return OutcomeEdits
	case e.Unmatched > 0:
		return OutcomeUnparsed
	default:
		return OutcomeNoEdits
	}
}

// AcknowledgedNoChanges reports whether the model said outright that nothing needs changing
func (e Extraction) AcknowledgedNoChanges() bool {
	return strings.Contains(strings.ToLower(e.response), "no changes needed")
}

// Extractor finds file edits in a model response. Implementations never fail: anything that is not a well-formed
// block is ignored.
type Extractor interface {
	Extract(response string) Extraction
}

// RegexExtractor is the default Extractor, built on a single regexp2 pattern
type RegexExtractor struct {
	re *regexp2.Regexp
}

var _ Extractor = (*RegexExtractor)(nil)

func NewExtractor() *RegexExtractor {
	return NewExtractorWithTimeout(DefaultMatchTimeout)
}

func NewExtractorWithTimeout(timeout time.Duration) *RegexExtractor {
	re := regexp2.MustCompile(blockPattern, regexp2.Singleline)
	re.MatchTimeout = timeout
	return &RegexExtractor{re: re}
}

// matches yields every match of the block pattern in response order. It stops early, without error, if a match
// times out.
func (x *RegexExtractor) matches(response string) iter.Seq[*regexp2.Match] {
	return func(yield func(*regexp2.Match) bool) {
		m, err := x.re.FindStringMatch(response)
		for m != nil && err == nil {
			if !yield(m) {
				return
			}
			m, err = x.re.FindNextMatch(m)
		}
		if err != nil {
			log.Printf("Warning: stopped scanning response for file blocks: %v", err)
		}
	}
}

func toEdit(m *regexp2.Match) (FileEdit, bool) {
	path := strings.TrimSpace(m.GroupByName("path").String())
	if path == "" {
		return FileEdit{}, false
	}
	return FileEdit{Path: path, Content: trimFenceNewlines(m.GroupByName("content").String())}, true
}

// All yields the edits in response order
func (x *RegexExtractor) All(response string) iter.Seq[FileEdit] {
	return func(yield func(FileEdit) bool) {
		for m := range x.matches(response) {
			if e, ok := toEdit(m); ok && !yield(e) {
				return
			}
		}
	}
}

// Extract collects the edits and counts fence openers that did not start a usable block. Openers inside a matched
// block's content are part of that file and are not counted.
func (x *RegexExtractor) Extract(response string) Extraction {
	var edits []FileEdit
	unmatched := 0
	// rune offset of the end of the previous match; regexp2 reports positions in runes
	runes := []rune(response)
	prev := 0
	for m := range x.matches(response) {
		unmatched += strings.Count(string(runes[prev:m.Index]), FenceOpener)
		prev = m.Index + m.Length
		if e, ok := toEdit(m); ok {
			edits = append(edits, e)
		} else {
			unmatched++
		}
	}
	unmatched += strings.Count(string(runes[prev:]), FenceOpener)

	return Extraction{Edits: edits, Unmatched: unmatched, response: response}
}

// trimFenceNewlines strips the line break that follows the start marker and the one that precedes the end marker,
// along with horizontal whitespace next to the markers. Everything else is kept byte for byte.
func trimFenceNewlines(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 && strings.TrimRight(content[:i], " \t\r") == "" {
		content = content[i+1:]
	}
	if i := strings.LastIndexByte(content, '\n'); i >= 0 && strings.Trim(content[i+1:], " \t") == "" {
		content = strings.TrimSuffix(content[:i], "\r")
	}
	return content
}
