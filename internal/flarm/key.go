package flarm

// Key is a 128-bit XXTEA key.
type Key [4]uint32

var keyTable = [8]uint32{
	0xe43276df, 0xdca83759, 0x9802b8ac, 0x4675a56b,
	0xfc78ea65, 0x804b90ea, 0xb76542cd, 0x329dfa32,
}

const (
	keySeed = 0x045d9f3b
	keyMask = 0x87b562f4
)

func obscure(x, seed uint32) uint32 {
	m1 := seed * (x ^ (x >> 16))
	m2 := seed * (m1 ^ (m1 >> 16))
	return m2 ^ (m2 >> 16)
}

// DeriveKey builds the packet key for a sender address at the given UNIX time.
// The key changes every 64 seconds; bit 23 of the time swaps constant banks.
func DeriveKey(epochSeconds uint32, address uint32) Key {
	addr := (address << 8) & 0xFFFFFF
	bucket := (epochSeconds >> 6) ^ addr
	bank := 0
	if (epochSeconds>>23)&1 != 0 {
		bank = 4
	}

	var k Key
	for i := range k {
		k[i] = obscure(keyTable[i+bank]^bucket, keySeed) ^ keyMask
	}
	return k
}
