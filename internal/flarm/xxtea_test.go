package flarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestXXTEA_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var k Key
		for i := range k {
			k[i] = rapid.Uint32().Draw(t, "k")
		}
		var v [payloadWords]uint32
		for i := range v {
			v[i] = rapid.Uint32().Draw(t, "v")
		}
		orig := v

		encryptBlock(v[:], &k)
		decryptBlock(v[:], &k)
		if v != orig {
			t.Fatalf("round trip mismatch: got %08x want %08x", v, orig)
		}
	})
}

func TestXXTEA_ChangesEveryWord(t *testing.T) {
	k := DeriveKey(1700000000, 0xDDA5BA)
	v := [payloadWords]uint32{1, 2, 3, 4, 5}
	orig := v
	encryptBlock(v[:], &k)
	for i := range v {
		assert.NotEqual(t, orig[i], v[i], "word %d unchanged", i)
	}
}

func TestXXTEA_WrongKeyDoesNotDecrypt(t *testing.T) {
	k1 := DeriveKey(1700000000, 0xDDA5BA)
	k2 := DeriveKey(1700000000+64, 0xDDA5BA)
	v := [payloadWords]uint32{0xdeadbeef, 0, 0, 0, 0}
	orig := v
	encryptBlock(v[:], &k1)
	decryptBlock(v[:], &k2)
	assert.NotEqual(t, orig, v)
}

func TestXXTEA_ShortBlockUntouched(t *testing.T) {
	k := Key{1, 2, 3, 4}
	v := []uint32{42}
	encryptBlock(v, &k)
	assert.Equal(t, []uint32{42}, v)
}

func TestSealOpenPayload_LeavesHeaderClear(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0], buf[1], buf[2], buf[3] = 0xBA, 0xA5, 0xDD, 0x04
	for i := 4; i < PacketSize; i++ {
		buf[i] = byte(i)
	}
	orig := append([]byte(nil), buf...)
	k := DeriveKey(1700000000, HeaderAddress(buf))

	sealPayload(buf, k)
	assert.Equal(t, orig[:4], buf[:4])
	assert.NotEqual(t, orig[4:], buf[4:])

	openPayload(buf, k)
	assert.Equal(t, orig, buf)
}
