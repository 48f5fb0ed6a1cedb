package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnpackPosition(t *testing.T) {
	pos := PackPosition(3, 500)
	attr, idx := UnpackPosition(pos)
	assert.Equal(t, uint16(3), attr)
	assert.Equal(t, uint16(500), idx)
}

func TestProximityBetweenSameAttribute(t *testing.T) {
	a := PackPosition(0, 10)
	b := PackPosition(0, 13)
	assert.Equal(t, uint8(3), ProximityBetween(a, b))
	assert.Equal(t, uint8(3), ProximityBetween(b, a))
}

func TestProximityBetweenClampsAtMax(t *testing.T) {
	a := PackPosition(0, 0)
	b := PackPosition(0, 500)
	assert.Equal(t, uint8(maxProximity), ProximityBetween(a, b))
}

func TestProximityBetweenDifferentAttributes(t *testing.T) {
	a := PackPosition(0, 0)
	b := PackPosition(1, 0)
	assert.Equal(t, uint8(maxProximity), ProximityBetween(a, b))
}
