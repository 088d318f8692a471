// ABOUTME: Predicate constructors for common matching patterns
// ABOUTME: Commands, plain text, regular expressions, and conversation-state guards

package handler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
)

// commandRe is the set of legal bot command names.
var commandRe = regexp.MustCompile(`^[\da-z_]{1,32}$`)

// Command matches events whose text invokes the given bot command:
// "/name", optionally suffixed with "@botname" and/or argument text.
// Command names are case-insensitive. Returns an error for illegal names.
func Command(name string) (Predicate, error) {
	name = strings.ToLower(name)
	if !commandRe.MatchString(name) {
		return nil, fmt.Errorf("invalid command name %q", name)
	}

	return func(ev *event.Event) bool {
		text := ev.Text()
		if !strings.HasPrefix(text, "/") {
			return false
		}
		head, _, _ := strings.Cut(text[1:], " ")
		head, _, _ = strings.Cut(head, "@")
		return strings.ToLower(head) == name
	}, nil
}

// Args splits the argument text following a command on whitespace. Returns
// nil for non-command events.
func Args(ev *event.Event) []string {
	text := ev.Text()
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	_, rest, ok := strings.Cut(text, " ")
	if !ok {
		return nil
	}
	return strings.Fields(rest)
}

// Text matches events carrying non-empty text that is not a command.
func Text() Predicate {
	return func(ev *event.Event) bool {
		text := ev.Text()
		return text != "" && !strings.HasPrefix(text, "/")
	}
}

// Regex matches events whose text matches the pattern.
func Regex(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	return func(ev *event.Event) bool {
		return re.MatchString(ev.Text())
	}, nil
}

// InState guards a predicate on the event key's current conversation state.
// The wrapped predicate only sees events whose key is in state s.
func InState(t *conversation.Tracker, s conversation.State, inner Predicate) Predicate {
	return func(ev *event.Event) bool {
		if t.Lookup(ev.Key) != s {
			return false
		}
		return inner(ev)
	}
}

// Any combines predicates with OR.
func Any(preds ...Predicate) Predicate {
	return func(ev *event.Event) bool {
		for _, p := range preds {
			if p(ev) {
				return true
			}
		}
		return false
	}
}

// All combines predicates with AND.
func All(preds ...Predicate) Predicate {
	return func(ev *event.Event) bool {
		for _, p := range preds {
			if !p(ev) {
				return false
			}
		}
		return true
	}
}
