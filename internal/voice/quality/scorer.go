// Package quality produces a deterministic, explainable 0-100
// assessment of a conversation from its turn sequence. Identical input
// always yields identical scores, flags and recommendation text.
package quality

import (
	"math"
	"strings"
	"time"

	"github.com/troikatech/voice-core/internal/voice/convo"
)

// Fixed sub-score weights. They sum to 1.
const (
	weightEngagement = 0.20
	weightEmotional  = 0.15
	weightScript     = 0.15
	weightFlow       = 0.20
	weightObjection  = 0.15
	weightEmpathy    = 0.10
	weightPacing     = 0.05
)

// Input is everything the scorer needs. ScriptAdherence is supplied by
// an external checker; nil means no script was in effect and the
// dimension scores 100.
type Input struct {
	Turns                 []convo.Turn
	CustomerInterruptions int
	AgentInterruptions    int
	SilenceGaps           []time.Duration
	ScriptAdherence       *float64
}

// Score is the weighted assessment bundle.
type Score struct {
	Overall         float64            `json:"overall"`
	SubScores       map[string]float64 `json:"sub_scores"`
	Flags           []string           `json:"flags,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Insights        []string           `json:"insights,omitempty"`
}

// Assess computes the full quality snapshot for a conversation.
func Assess(in Input) Score {
	engagement := scoreEngagement(in.Turns)
	emotional, startVal, endVal, hasJourney := scoreEmotionalJourney(in.Turns)
	script := 100.0
	if in.ScriptAdherence != nil {
		script = clamp(*in.ScriptAdherence)
	}
	flow := scoreFlow(in.Turns, in.CustomerInterruptions, in.AgentInterruptions)
	objection := scoreObjectionHandling(in.Turns)
	empathy := scoreEmpathy(in.Turns)
	pacing := scorePacing(in.Turns, in.SilenceGaps)

	overall := math.Round(
		weightEngagement*engagement +
			weightEmotional*emotional +
			weightScript*script +
			weightFlow*flow +
			weightObjection*objection +
			weightEmpathy*empathy +
			weightPacing*pacing)

	s := Score{
		Overall: overall,
		SubScores: map[string]float64{
			"engagement":         engagement,
			"emotional_journey":  emotional,
			"script_adherence":   script,
			"flow":               flow,
			"objection_handling": objection,
			"empathy":            empathy,
			"pacing":             pacing,
		},
	}

	s.Flags = buildFlags(in, objection, empathy, script)
	s.Recommendations = buildRecommendations(s.SubScores)
	s.Insights = buildInsights(in.Turns, overall, startVal, endVal, hasJourney)
	return s
}

// scoreEngagement blends normalized customer message length (60%) with
// the customer-to-agent response rate (40%).
func scoreEngagement(turns []convo.Turn) float64 {
	var customerMsgs, agentMsgs int
	var totalLen int
	for _, t := range turns {
		switch t.Role {
		case convo.RoleCustomer:
			customerMsgs++
			totalLen += len(t.Text)
		case convo.RoleAgent:
			agentMsgs++
		}
	}
	if customerMsgs == 0 {
		return 0
	}

	avgLen := float64(totalLen) / float64(customerMsgs)
	lengthScore := math.Min(avgLen, 200) / 200 * 100

	responseRate := 100.0
	if agentMsgs > 0 {
		responseRate = math.Min(float64(customerMsgs)/float64(agentMsgs), 1) * 100
	}

	return clamp(0.6*lengthScore + 0.4*responseRate)
}

// scoreEmotionalJourney maps each detected emotion onto [-100, 100] and
// rewards ending higher than starting, penalized by volatility between
// consecutive readings (up to 30 points).
func scoreEmotionalJourney(turns []convo.Turn) (score, start, end float64, ok bool) {
	var values []float64
	for _, t := range turns {
		if t.Role != convo.RoleCustomer || t.Emotion == "" {
			continue
		}
		if v, known := emotionValues[t.Emotion]; known {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return 50, 0, 0, false
	}

	start, end = values[0], values[len(values)-1]
	score = 50 + (end-start)/2

	var swing float64
	for i := 1; i < len(values); i++ {
		swing += math.Abs(values[i] - values[i-1])
	}
	avgSwing := swing / float64(len(values)-1)
	penalty := math.Min(avgSwing*0.15, 30)

	return clamp(score - penalty), start, end, true
}

// scoreFlow starts at 100 and subtracts per interruption and per run of
// consecutive same-role turns. Agent interruptions cost more.
func scoreFlow(turns []convo.Turn, customerInts, agentInts int) float64 {
	score := 100.0
	score -= 3 * float64(customerInts)
	score -= 8 * float64(agentInts)

	runLen := 0
	var prevRole string
	for _, t := range turns {
		if t.Role == prevRole {
			runLen++
			if runLen == 2 {
				score -= 5
			}
		} else {
			prevRole = t.Role
			runLen = 1
		}
	}
	return clamp(score)
}

// scoreObjectionHandling checks whether each raised objection category
// is answered by a later agent turn with a topically related keyword.
// No objections at all scores the documented 80 baseline.
func scoreObjectionHandling(turns []convo.Turn) float64 {
	total := 0
	addressed := 0
	for i, t := range turns {
		if t.Role != convo.RoleCustomer {
			continue
		}
		lower := strings.ToLower(t.Text)
		for _, cat := range objectionCategories {
			if !containsAny(lower, cat.triggers) {
				continue
			}
			total++
			for _, later := range turns[i+1:] {
				if later.Role != convo.RoleAgent {
					continue
				}
				if containsAny(strings.ToLower(later.Text), cat.responses) {
					addressed++
					break
				}
			}
		}
	}
	if total == 0 {
		return 80
	}
	return clamp(50 + 50*float64(addressed)/float64(total))
}

// scoreEmpathy checks the agent turn following each negative customer
// emotion for an emotion-appropriate acknowledgment.
func scoreEmpathy(turns []convo.Turn) float64 {
	opportunities := 0
	empathetic := 0
	for i, t := range turns {
		if t.Role != convo.RoleCustomer || !negativeEmotions[t.Emotion] {
			continue
		}
		opportunities++

		keywords := empathyKeywords[t.Emotion]
		if keywords == nil {
			keywords = genericEmpathyKeywords
		}
		for _, later := range turns[i+1:] {
			if later.Role != convo.RoleAgent {
				continue
			}
			if containsAny(strings.ToLower(later.Text), keywords) {
				empathetic++
			}
			break
		}
	}
	if opportunities == 0 {
		return 70
	}
	return clamp(100 * float64(empathetic) / float64(opportunities))
}

// scorePacing blends message length health (70%) with inter-turn
// silence health (30%). Ideal lengths are 20-300 chars, ideal silences
// 1-5 seconds.
func scorePacing(turns []convo.Turn, gaps []time.Duration) float64 {
	if len(turns) == 0 {
		return 0
	}

	var lengthTotal float64
	for _, t := range turns {
		n := len(t.Text)
		switch {
		case n < 20:
			lengthTotal += float64(n) / 20 * 100
		case n > 300:
			lengthTotal += math.Max(0, 100-float64(n-300)/10)
		default:
			lengthTotal += 100
		}
	}
	lengthScore := lengthTotal / float64(len(turns))

	silenceScore := 100.0
	if len(gaps) > 0 {
		var total float64
		for _, g := range gaps {
			total += g.Seconds()
		}
		avg := total / float64(len(gaps))
		switch {
		case avg < 1:
			silenceScore = avg * 100
		case avg > 5:
			silenceScore = math.Max(0, 100-(avg-5)*10)
		}
	}

	return clamp(0.7*lengthScore + 0.3*silenceScore)
}

// Flag names are stable identifiers used on the wire and in reports.
const (
	FlagExcessiveInterruptions = "excessive_interruptions"
	FlagUnaddressedConcerns    = "unaddressed_concerns"
	FlagMissedOpportunities    = "missed_opportunities"
	FlagPoorEmpathy            = "poor_empathy"
	FlagScriptDeviation        = "script_deviation"
)

func buildFlags(in Input, objection, empathy, script float64) []string {
	var flags []string
	if in.CustomerInterruptions+in.AgentInterruptions > 3 {
		flags = append(flags, FlagExcessiveInterruptions)
	}
	if hasUnaddressedConcern(in.Turns) {
		flags = append(flags, FlagUnaddressedConcerns)
	}
	if objection < 60 {
		flags = append(flags, FlagMissedOpportunities)
	}
	if empathy < 50 {
		flags = append(flags, FlagPoorEmpathy)
	}
	if script < 70 {
		flags = append(flags, FlagScriptDeviation)
	}
	return flags
}

// hasUnaddressedConcern reports a concern keyword in one of the last 3
// customer turns with no substantive agent reply afterward.
func hasUnaddressedConcern(turns []convo.Turn) bool {
	customerSeen := 0
	for i := len(turns) - 1; i >= 0 && customerSeen < 3; i-- {
		if turns[i].Role != convo.RoleCustomer {
			continue
		}
		customerSeen++
		if !containsAny(strings.ToLower(turns[i].Text), concernKeywords) {
			continue
		}
		answered := false
		for _, later := range turns[i+1:] {
			if later.Role == convo.RoleAgent && len(later.Text) > 50 {
				answered = true
				break
			}
		}
		if !answered {
			return true
		}
	}
	return false
}

func buildRecommendations(sub map[string]float64) []string {
	var recs []string
	if sub["engagement"] < 50 {
		recs = append(recs, "Ask more open-ended questions to draw the customer out.")
	}
	if sub["flow"] < 70 {
		recs = append(recs, "Reduce interruptions and let the customer finish speaking.")
	}
	if sub["objection_handling"] < 60 {
		recs = append(recs, "Acknowledge each objection before answering it; several went unaddressed.")
	}
	if sub["empathy"] < 50 {
		recs = append(recs, "Acknowledge the customer's emotions before moving to the next point.")
	}
	if sub["pacing"] < 60 {
		recs = append(recs, "Adjust response length and pauses toward a more natural rhythm.")
	}
	if sub["script_adherence"] < 70 {
		recs = append(recs, "Revisit the call script; key sections were skipped or reworded.")
	}
	return recs
}

func buildInsights(turns []convo.Turn, overall, start, end float64, hasJourney bool) []string {
	var insights []string
	if hasJourney {
		switch {
		case end > start:
			insights = append(insights, "Customer sentiment improved over the call.")
		case end < start:
			insights = append(insights, "Customer sentiment declined over the call.")
		}
	}
	if overall >= 80 {
		insights = append(insights, "Strong conversation overall.")
	}
	for _, t := range turns {
		if t.Degraded {
			insights = append(insights, "Parts of the conversation used fallback responses.")
			break
		}
	}
	return insights
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
