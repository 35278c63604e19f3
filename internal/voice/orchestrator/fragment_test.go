package orchestrator

import (
	"reflect"
	"testing"
)

func TestFragmenter_Feed(t *testing.T) {
	tests := []struct {
		name   string
		minLen int
		deltas []string
		want   []string
		tail   string
	}{
		{
			name:   "splits on sentence punctuation",
			minLen: 1,
			deltas: []string{"Hello there. How are you today?"},
			want:   []string{"Hello there.", "How are you today?"},
			tail:   "",
		},
		{
			name:   "short sentence rides along until min length",
			minLen: 20,
			deltas: []string{"Hi. I wanted to ask about your plans."},
			want:   []string{"Hi. I wanted to ask about your plans."},
			tail:   "",
		},
		{
			name:   "boundary split across deltas",
			minLen: 1,
			deltas: []string{"First part", " of a sentence.", " Second"},
			want:   []string{"First part of a sentence."},
			tail:   "Second",
		},
		{
			name:   "exclamation and question marks",
			minLen: 1,
			deltas: []string{"Great! Really? Yes."},
			want:   []string{"Great!", "Really?", "Yes."},
			tail:   "",
		},
		{
			name:   "no punctuation leaves everything in tail",
			minLen: 1,
			deltas: []string{"no sentence end here"},
			want:   nil,
			tail:   "no sentence end here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFragmenter(tt.minLen)
			var got []string
			for _, d := range tt.deltas {
				got = append(got, f.Feed(d)...)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fragments = %q, want %q", got, tt.want)
			}
			if tail := f.Flush(); tail != tt.tail {
				t.Errorf("tail = %q, want %q", tail, tt.tail)
			}
		})
	}
}

func TestParseProfile(t *testing.T) {
	if ParseProfile("ultraLow") != ProfileUltraLow {
		t.Error("ultraLow not recognized")
	}
	if ParseProfile("bogus") != ProfileBalanced {
		t.Error("unknown profile should fall back to balanced")
	}
}
