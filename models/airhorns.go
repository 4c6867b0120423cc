package models

// AirhornSounds is the fixed set of sound effects a participant can blast.
var AirhornSounds = []string{
	"airhorn",
	"mlg-airhorn",
	"sad-trombone",
	"inception",
	"drum-roll",
}

// ValidAirhorn reports whether the sound is one of the known effects.
func ValidAirhorn(sound string) bool {
	for _, s := range AirhornSounds {
		if s == sound {
			return true
		}
	}
	return false
}
