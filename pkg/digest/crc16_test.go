package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrc16(t *testing.T) {
	// XMODEM check value
	assert.Equal(t, uint16(0x31C3), Crc16("123456789"))
	assert.Equal(t, uint16(0), Crc16(""))
	assert.Equal(t, Crc16("foo"), Crc16Bytes([]byte("foo")))
}

func TestCrc16Slot(t *testing.T) {
	// well-known redis slot values
	assert.Equal(t, uint16(12182), Crc16("foo")&0x3fff)
	assert.Equal(t, uint16(3443), Crc16("user1000")&0x3fff)
}
