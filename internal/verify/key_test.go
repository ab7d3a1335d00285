package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidKeyFormat(t *testing.T) {
	valid := []string{
		"ABCDE-12345-FGHIJ-67890",
		"AAAAA-AAAAA-AAAAA-AAAAA",
		"00000-11111-22222-33333",
	}
	for _, key := range valid {
		assert.True(t, ValidKeyFormat(key), key)
	}

	invalid := []string{
		"abcde-12345-fghij-67890",  // lowercase
		"ABCD-12345-FGHIJ-67890",   // wrong group length
		"ABCDE12345FGHIJ67890",     // no hyphens
		"ABCDE-12345-FGHIJ",        // too few groups
		"ABCDE-12345-FGHIJ-67890-", // trailing hyphen
		" ABCDE-12345-FGHIJ-67890", // untrimmed whitespace
		"",
	}
	for _, key := range invalid {
		assert.False(t, ValidKeyFormat(key), key)
	}
}
