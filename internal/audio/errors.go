package audio

import "fmt"

func errRateMismatch(have, want int) error {
	return fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", have, want)
}
