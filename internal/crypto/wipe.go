package crypto

import "github.com/awnumar/memguard"

// Wipe overwrites b with zeroes. Safe on nil.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}
