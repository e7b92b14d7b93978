package ai

import (
	"errors"
	"log"
)

var (
	ErrEmptyTranscript = errors.New("conversation history is empty")
	ErrCurrentNotUser  = errors.New("last message in conversation history is not from user")
)

// SplitCurrent separates the in-progress user message from the turns that precede it. The returned history is the
// normalized form of those preceding turns.
func SplitCurrent(transcript []Turn) ([]Turn, Turn, error) {
	if len(transcript) == 0 {
		return nil, Turn{}, ErrEmptyTranscript
	}
	current := transcript[len(transcript)-1]
	if current.Role != RoleUser {
		return nil, Turn{}, ErrCurrentNotUser
	}
	return NormalizeHistory(transcript[:len(transcript)-1]), current, nil
}

// NormalizeHistory returns the subsequence of turns that a strictly alternating chat API will accept. It starts at the
// first user turn, drops system turns, and drops any turn whose role repeats the previously kept role. It never fails;
// irregular turns are discarded rather than rejected.
func NormalizeHistory(turns []Turn) []Turn {
	history := []Turn{}

	first := -1
	for i, turn := range turns {
		if turn.Role == RoleUser {
			first = i
			break
		}
	}
	if first == -1 {
		return history
	}

	var (
		last    Role
		started bool
		dropped int
	)
	for _, turn := range turns[first:] {
		switch turn.Role {
		case RoleSystem:
			continue
		case RoleUser:
			if started && last != RoleModel {
				dropped++
				continue
			}
		case RoleModel:
			if !started || last != RoleUser {
				dropped++
				continue
			}
		default:
			dropped++
			continue
		}
		history = append(history, turn)
		last = turn.Role
		started = true
	}

	if dropped > 0 {
		log.Printf("Dropped %d out-of-order turns from conversation history", dropped)
	}
	return history
}

// TrimDangling removes a trailing user turn that never got a reply, so that appending the current user message keeps
// the request alternating
func TrimDangling(history []Turn) []Turn {
	if len(history) > 0 && history[len(history)-1].Role == RoleUser {
		return history[:len(history)-1]
	}
	return history
}
