package orchestrator

// Profile names a latency/quality tradeoff. The set is closed; parsing
// an unknown name falls back to balanced.
type Profile string

const (
	ProfileUltraLow Profile = "ultraLow"
	ProfileLow      Profile = "low"
	ProfileBalanced Profile = "balanced"
)

// Options controls per-request pipeline behavior. Zero value means
// "take the profile defaults".
type Options struct {
	UseThinkingSounds      bool
	StreamPartialResponses bool
}

type profileParams struct {
	minFragmentLen int
	options        Options
}

func (p Profile) params() profileParams {
	switch p {
	case ProfileUltraLow:
		// Shortest allowable fragments, no filler audio. The caller is
		// expected to hit the cache; anything slower defeats the point.
		return profileParams{
			minFragmentLen: 1,
			options:        Options{StreamPartialResponses: true},
		}
	case ProfileLow:
		return profileParams{
			minFragmentLen: 20,
			options:        Options{StreamPartialResponses: true},
		}
	default:
		return profileParams{
			minFragmentLen: 40,
			options: Options{
				UseThinkingSounds:      true,
				StreamPartialResponses: true,
			},
		}
	}
}

// ParseProfile maps a wire/profile string onto the closed enumeration.
func ParseProfile(s string) Profile {
	switch Profile(s) {
	case ProfileUltraLow, ProfileLow, ProfileBalanced:
		return Profile(s)
	default:
		return ProfileBalanced
	}
}
