// Package intent classifies trivially answerable messages so retrieval and
// the chat model can be skipped entirely.
package intent

import (
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// Kind is the matched short-circuit category.
type Kind int

const (
	None Kind = iota
	Greeting
	Acknowledgment
	Yes
	No
	Fact
)

var (
	ackRe      = regexp.MustCompile(`(?i)^(ok(ay)?|thanks?|thank\s+you|thx|ty|👍+|👎+|👌+|🙏+|\.)+$`)
	yesNoRe    = regexp.MustCompile(`(?i)^(yes|yeah|yep|yup|correct|right|no|nope)\.?$`)
	greetingRe = regexp.MustCompile(`(?i)^(hi|hello|hey|hallo|hola|namaste)\b[!.]*$`)
	factRe     = regexp.MustCompile(`(?i)^(it'?s|its|my|i(?:'m| am| have| like))\b.+`)
	leadingIts = regexp.MustCompile(`(?i)^its\b`)
)

var (
	ackReplies = []string{
		"You’re welcome! 😊",
		"Glad I could help!",
		"Anytime—happy to help.",
		"Okay!",
	}
	yesReplies = []string{"Okay!", "Got it.", "Thanks for confirming."}
	noReplies  = []string{"Okay, no problem.", "Got it, thanks for telling me."}
)

const greetingReply = "Hi! How can I help you today?"

// Classifier matches messages against a fixed priority chain:
// greeting, acknowledgment, yes/no, fact statement. First match wins.
type Classifier struct {
	rng *rand.Rand
}

// New returns a classifier with time-seeded reply selection.
func New() *Classifier {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand injects the reply-selection source for reproducible tests.
func NewWithRand(rng *rand.Rand) *Classifier {
	return &Classifier{rng: rng}
}

// Classify returns the matched kind and, for matches, the canned or echoed
// reply. Kind None means the message needs the full retrieval pipeline.
func (c *Classifier) Classify(text string) (Kind, string) {
	q := strings.TrimSpace(text)
	if q == "" {
		return None, ""
	}

	if greetingRe.MatchString(q) {
		return Greeting, greetingReply
	}
	if ackRe.MatchString(q) {
		return Acknowledgment, c.pick(ackReplies)
	}
	if yesNoRe.MatchString(q) {
		t := strings.TrimSuffix(strings.ToLower(q), ".")
		if t == "no" || t == "nope" {
			return No, c.pick(noReplies)
		}
		return Yes, c.pick(yesReplies)
	}
	if factRe.MatchString(q) {
		return Fact, confirmFact(q)
	}
	return None, ""
}

func (c *Classifier) pick(pool []string) string {
	return pool[c.rng.Intn(len(pool))]
}

// confirmFact echoes the statement back without adding anything: leading
// "its" becomes "it's", trailing punctuation is squashed to one period.
func confirmFact(q string) string {
	s := leadingIts.ReplaceAllString(q, "it's")
	s = strings.TrimRight(s, ".! ")
	return "Got it, " + s + "."
}
