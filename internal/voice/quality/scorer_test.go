package quality

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/troikatech/voice-core/internal/voice/convo"
)

func agentTurn(text string) convo.Turn {
	return convo.Turn{Role: convo.RoleAgent, Text: text}
}

func customerTurn(text string) convo.Turn {
	return convo.Turn{Role: convo.RoleCustomer, Text: text}
}

func customerTurnWithEmotion(text, emotion string) convo.Turn {
	return convo.Turn{Role: convo.RoleCustomer, Text: text, Emotion: emotion, EmotionConfidence: 0.9}
}

func TestAssess_Deterministic(t *testing.T) {
	in := Input{
		Turns: []convo.Turn{
			agentTurn("Hello! How are you doing today, and what can I help you with?"),
			customerTurnWithEmotion("Honestly this all seems too expensive for what it does.", "anger"),
			agentTurn("I'm sorry you feel that way. Looking at the value over a year, it usually pays for itself."),
			customerTurnWithEmotion("Okay, that actually makes sense, thanks for explaining.", "happiness"),
			agentTurn("Glad that helped! Is there anything else you would like to go over?"),
		},
		CustomerInterruptions: 1,
		SilenceGaps:           []time.Duration{2 * time.Second, 3 * time.Second},
	}

	first := Assess(in)
	second := Assess(in)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Assess is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first.Overall <= 0 || first.Overall > 100 {
		t.Errorf("Overall = %v, want (0, 100]", first.Overall)
	}
}

func TestAssess_NoObjectionsBaseline(t *testing.T) {
	in := Input{
		Turns: []convo.Turn{
			agentTurn("Good morning, thanks for taking the call."),
			customerTurn("Sure, happy to chat for a few minutes."),
		},
	}
	s := Assess(in)
	if got := s.SubScores["objection_handling"]; got != 80 {
		t.Errorf("objection_handling = %v, want exactly 80", got)
	}
}

func TestAssess_CleanConversationFlow(t *testing.T) {
	in := Input{
		Turns: []convo.Turn{
			agentTurn("Hi there, how can I help?"),
			customerTurn("I'd like to know more about the service."),
			agentTurn("Of course, let me walk you through it."),
			customerTurn("Sounds good."),
		},
	}
	s := Assess(in)
	if got := s.SubScores["flow"]; got != 100 {
		t.Errorf("flow = %v, want exactly 100 for zero interruptions and alternating turns", got)
	}
	if len(s.Flags) != 0 {
		t.Errorf("unexpected flags: %v", s.Flags)
	}
}

func TestScoreObjectionHandling(t *testing.T) {
	tests := []struct {
		name  string
		turns []convo.Turn
		want  float64
	}{
		{
			name: "price objection addressed",
			turns: []convo.Turn{
				customerTurn("That sounds really expensive to me."),
				agentTurn("I hear you. The value over a full year usually comes out ahead."),
			},
			want: 100,
		},
		{
			name: "price objection ignored",
			turns: []convo.Turn{
				customerTurn("That sounds really expensive to me."),
				agentTurn("Let me tell you about the features instead."),
			},
			want: 50,
		},
		{
			name: "trust objection addressed",
			turns: []convo.Turn{
				customerTurn("How do I know this isn't a scam?"),
				agentTurn("We are a licensed and registered provider, happy to share references."),
			},
			want: 100,
		},
		{
			name: "one of two addressed",
			turns: []convo.Turn{
				customerTurn("It's expensive and honestly I'm too busy for this."),
				agentTurn("It'll be quick, I promise, just a minute of your time."),
			},
			want: 75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreObjectionHandling(tt.turns); got != tt.want {
				t.Errorf("scoreObjectionHandling() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreEmpathy(t *testing.T) {
	tests := []struct {
		name  string
		turns []convo.Turn
		want  float64
	}{
		{
			name: "no negative emotions uses neutral baseline",
			turns: []convo.Turn{
				customerTurnWithEmotion("Everything is great!", "happiness"),
				agentTurn("Wonderful to hear."),
			},
			want: 70,
		},
		{
			name: "anger acknowledged",
			turns: []convo.Turn{
				customerTurnWithEmotion("This is ridiculous.", "anger"),
				agentTurn("I'm sorry, I completely understand the frustration."),
			},
			want: 100,
		},
		{
			name: "anger brushed off",
			turns: []convo.Turn{
				customerTurnWithEmotion("This is ridiculous.", "anger"),
				agentTurn("Anyway, moving on to the next item."),
			},
			want: 0,
		},
		{
			name: "confusion gets a walkthrough",
			turns: []convo.Turn{
				customerTurnWithEmotion("I don't get any of this.", "confusion"),
				agentTurn("No problem, let me walk you through it step by step."),
			},
			want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreEmpathy(tt.turns); got != tt.want {
				t.Errorf("scoreEmpathy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreEmotionalJourney(t *testing.T) {
	turns := []convo.Turn{
		customerTurnWithEmotion("I'm really not happy about this bill.", "sadness"),
		agentTurn("I'm sorry to hear that, let's sort it out together."),
		customerTurnWithEmotion("Oh, that fixed it. Thank you so much!", "happiness"),
	}
	score, start, end, ok := scoreEmotionalJourney(turns)
	if !ok {
		t.Fatal("expected a journey with two readings")
	}
	if start != -60 || end != 80 {
		t.Errorf("start/end = %v/%v, want -60/80", start, end)
	}
	// 50 + (80 - -60)/2 = 120, swing penalty 140*0.15 = 21, clamped to 99.
	if score != 99 {
		t.Errorf("score = %v, want 99", score)
	}

	_, _, _, ok = scoreEmotionalJourney([]convo.Turn{customerTurnWithEmotion("hi", "neutral")})
	if ok {
		t.Error("single reading should not form a journey")
	}
}

func TestScoreEngagement_NoCustomerTurns(t *testing.T) {
	if got := scoreEngagement([]convo.Turn{agentTurn("Hello? Anyone there?")}); got != 0 {
		t.Errorf("scoreEngagement() = %v, want 0", got)
	}
}

func TestScorePacing(t *testing.T) {
	turns := []convo.Turn{
		agentTurn(strings.Repeat("a", 100)),
		customerTurn(strings.Repeat("b", 150)),
	}
	if got := scorePacing(turns, nil); got != 100 {
		t.Errorf("ideal lengths with no gaps = %v, want 100", got)
	}

	longGaps := []time.Duration{10 * time.Second, 10 * time.Second}
	if got := scorePacing(turns, longGaps); got >= 100 {
		t.Errorf("long silences should lower pacing, got %v", got)
	}
}

func TestAssess_Flags(t *testing.T) {
	t.Run("excessive interruptions", func(t *testing.T) {
		in := Input{
			Turns: []convo.Turn{
				agentTurn("Hi."),
				customerTurn("Hello."),
			},
			CustomerInterruptions: 2,
			AgentInterruptions:    2,
		}
		s := Assess(in)
		if !hasFlag(s.Flags, FlagExcessiveInterruptions) {
			t.Errorf("flags = %v, want %s", s.Flags, FlagExcessiveInterruptions)
		}
	})

	t.Run("unaddressed concern", func(t *testing.T) {
		in := Input{
			Turns: []convo.Turn{
				agentTurn("Anything else on your mind before we wrap up?"),
				customerTurn("I'm still worried about the cancellation policy."),
				agentTurn("Okay, bye."),
			},
		}
		s := Assess(in)
		if !hasFlag(s.Flags, FlagUnaddressedConcerns) {
			t.Errorf("flags = %v, want %s", s.Flags, FlagUnaddressedConcerns)
		}
	})

	t.Run("script deviation", func(t *testing.T) {
		adherence := 40.0
		in := Input{
			Turns:           []convo.Turn{agentTurn("Hi."), customerTurn("Hello there, how are you?")},
			ScriptAdherence: &adherence,
		}
		s := Assess(in)
		if !hasFlag(s.Flags, FlagScriptDeviation) {
			t.Errorf("flags = %v, want %s", s.Flags, FlagScriptDeviation)
		}
		if s.SubScores["script_adherence"] != 40 {
			t.Errorf("script_adherence = %v, want 40", s.SubScores["script_adherence"])
		}
	})

	t.Run("nil adherence scores full marks", func(t *testing.T) {
		in := Input{Turns: []convo.Turn{agentTurn("Hi."), customerTurn("Hello.")}}
		s := Assess(in)
		if s.SubScores["script_adherence"] != 100 {
			t.Errorf("script_adherence = %v, want 100 when no script is in effect", s.SubScores["script_adherence"])
		}
	})
}

func TestAssess_RecommendationsAndInsights(t *testing.T) {
	in := Input{
		Turns: []convo.Turn{
			customerTurnWithEmotion("This is way too expensive, I'm angry about the hidden fees.", "anger"),
			agentTurn("Next topic."),
			customerTurnWithEmotion("You're not even listening.", "anger"),
			convo.Turn{Role: convo.RoleAgent, Text: "Please hold.", Degraded: true},
		},
		AgentInterruptions: 5,
	}
	s := Assess(in)

	wantRecs := []string{
		"Reduce interruptions and let the customer finish speaking.",
		"Acknowledge each objection before answering it; several went unaddressed.",
		"Acknowledge the customer's emotions before moving to the next point.",
	}
	for _, want := range wantRecs {
		found := false
		for _, rec := range s.Recommendations {
			if rec == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing recommendation %q in %v", want, s.Recommendations)
		}
	}

	foundDegraded := false
	for _, ins := range s.Insights {
		if ins == "Parts of the conversation used fallback responses." {
			foundDegraded = true
		}
	}
	if !foundDegraded {
		t.Errorf("insights = %v, want degraded-turn note", s.Insights)
	}

	// Same input, same text, every time.
	again := Assess(in)
	if !reflect.DeepEqual(s.Recommendations, again.Recommendations) {
		t.Error("recommendation text is not stable across runs")
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
