package intent

import (
	"math/rand"
	"testing"
)

func newTestClassifier() *Classifier {
	return NewWithRand(rand.New(rand.NewSource(1)))
}

func TestClassify_Kinds(t *testing.T) {
	c := newTestClassifier()
	cases := []struct {
		in   string
		want Kind
	}{
		{"ok", Acknowledgment},
		{"okay thanks", Acknowledgment},
		{"Thank you", Acknowledgment},
		{"thx", Acknowledgment},
		{".", Acknowledgment},
		{"👍", Acknowledgment},
		{"yes", Yes},
		{"Yep.", Yes},
		{"correct", Yes},
		{"no", No},
		{"Nope.", No},
		{"Hello!", Greeting},
		{"hey", Greeting},
		{"hola.", Greeting},
		{"my bag is green", Fact},
		{"I'm Anna", Fact},
		{"I have two cats", Fact},
		{"its dark blue cup", Fact},
		{"What did I say about my appointment?", None},
		{"hello world how are you", None},
		{"", None},
		{"   ", None},
	}
	for _, tc := range cases {
		got, _ := c.Classify(tc.in)
		if got != tc.want {
			t.Errorf("Classify(%q): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// "." alone is an acknowledgment, but a greeting trailing "." still
	// greets: the chain evaluates greeting first and stops there.
	c := newTestClassifier()
	if k, _ := c.Classify("hi."); k != Greeting {
		t.Errorf("expected Greeting, got %v", k)
	}
}

func TestConfirmFact(t *testing.T) {
	c := newTestClassifier()
	cases := []struct{ in, want string }{
		{"my bag is green", "Got it, my bag is green."},
		{"my bag is green!!", "Got it, my bag is green."},
		{"its dark blue cup", "Got it, it's dark blue cup."},
		{"I am 68.", "Got it, I am 68."},
	}
	for _, tc := range cases {
		k, reply := c.Classify(tc.in)
		if k != Fact {
			t.Fatalf("Classify(%q): expected Fact, got %v", tc.in, k)
		}
		if reply != tc.want {
			t.Errorf("Classify(%q): expected %q, got %q", tc.in, tc.want, reply)
		}
	}
}

func TestReplies_DeterministicWithSeed(t *testing.T) {
	a := NewWithRand(rand.New(rand.NewSource(42)))
	b := NewWithRand(rand.New(rand.NewSource(42)))
	for i := 0; i < 10; i++ {
		_, ra := a.Classify("thanks")
		_, rb := b.Classify("thanks")
		if ra != rb {
			t.Fatalf("same seed should give same replies: %q vs %q", ra, rb)
		}
	}
}

func TestReplies_FromFixedPools(t *testing.T) {
	c := newTestClassifier()
	inPool := func(pool []string, s string) bool {
		for _, p := range pool {
			if p == s {
				return true
			}
		}
		return false
	}
	for i := 0; i < 20; i++ {
		if _, r := c.Classify("ok"); !inPool(ackReplies, r) {
			t.Fatalf("ack reply %q not in pool", r)
		}
		if _, r := c.Classify("yes"); !inPool(yesReplies, r) {
			t.Fatalf("yes reply %q not in pool", r)
		}
		if _, r := c.Classify("no"); !inPool(noReplies, r) {
			t.Fatalf("no reply %q not in pool", r)
		}
	}
}
