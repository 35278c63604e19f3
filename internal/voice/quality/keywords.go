package quality

// Keyword clusters used by the objection-handling and empathy scores.
// Matching is case-insensitive substring containment on turn text.

type objectionCategory struct {
	name      string
	triggers  []string
	responses []string
}

// objectionCategories is ordered; detection and scoring walk it in this
// order so results are stable across runs.
var objectionCategories = []objectionCategory{
	{
		name:      "price",
		triggers:  []string{"expensive", "too much", "price", "cost", "afford", "budget", "cheaper"},
		responses: []string{"value", "worth", "investment", "discount", "payment plan", "pricing", "price"},
	},
	{
		name:      "time",
		triggers:  []string{"busy", "no time", "later", "call back", "not now", "bad time"},
		responses: []string{"quick", "minute", "brief", "schedule", "convenient", "short"},
	},
	{
		name:      "quality",
		triggers:  []string{"quality", "reliable", "broken", "defect", "doesn't work", "does not work"},
		responses: []string{"guarantee", "warranty", "tested", "certified", "quality", "standard"},
	},
	{
		name:      "competitor",
		triggers:  []string{"competitor", "already have", "another company", "current provider", "switch"},
		responses: []string{"difference", "compare", "unique", "advantage", "better", "unlike"},
	},
	{
		name:      "need",
		triggers:  []string{"don't need", "do not need", "not interested", "no need", "why would i"},
		responses: []string{"benefit", "help", "useful", "solve", "improve", "save"},
	},
	{
		name:      "trust",
		triggers:  []string{"scam", "trust", "legitimate", "suspicious", "fraud"},
		responses: []string{"licensed", "registered", "verified", "testimonial", "reputation", "trust"},
	},
}

// emotionValues maps detected emotion labels onto [-100, 100] for the
// emotional-journey trajectory.
var emotionValues = map[string]float64{
	"love":      100,
	"happiness": 80,
	"desire":    40,
	"surprise":  20,
	"neutral":   0,
	"confusion": -30,
	"sarcasm":   -40,
	"shame":     -50,
	"guilt":     -50,
	"sadness":   -60,
	"fear":      -70,
	"disgust":   -70,
	"anger":     -80,
}

// negativeEmotions are empathy opportunities: the next agent turn is
// expected to acknowledge them.
var negativeEmotions = map[string]bool{
	"confusion": true,
	"sarcasm":   true,
	"shame":     true,
	"guilt":     true,
	"sadness":   true,
	"fear":      true,
	"disgust":   true,
	"anger":     true,
}

// empathyKeywords per emotion, with a generic set for emotions without
// a dedicated cluster.
var empathyKeywords = map[string][]string{
	"sadness":   {"sorry", "understand", "hear you", "difficult"},
	"anger":     {"apologize", "sorry", "understand", "frustrat"},
	"fear":      {"assure", "safe", "understand", "worry"},
	"confusion": {"clarify", "explain", "let me", "walk you through"},
}

var genericEmpathyKeywords = []string{"understand", "sorry", "appreciate", "hear you"}

// concernKeywords feed the unaddressed-concerns flag.
var concernKeywords = []string{"worried", "concern", "problem", "issue", "not sure", "afraid"}
