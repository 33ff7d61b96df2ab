package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlob(t *testing.T) {
	tests := map[string]string{
		"iot-2/type/+/id/+/evt/+/fmt/+":     "iot-2/type/*/id/*/evt/*/fmt/*",
		"iot-2/type/t/id/d/mon":             "iot-2/type/t/id/d/mon",
		"iot-2/#":                           "iot-2*",
		"#":                                 "*",
		"iot-2/type/a*b/id/[x]/cmd/?/fmt/+": `iot-2/type/a\*b/id/\[x\]/cmd/\?/fmt/*`,
	}
	for filter, glob := range tests {
		assert.Equal(t, glob, Glob(filter), filter)
	}
}
