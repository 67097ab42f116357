package flarm

const (
	xxteaDelta  = 0x9e3779b9
	xxteaRounds = 6
)

func xxteaMX(sum, y, z uint32, p int, e uint32, k *Key) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (k[(uint32(p)&3)^e] ^ z))
}

// encryptBlock runs XXTEA over v in place with the fixed FLARM round count.
func encryptBlock(v []uint32, k *Key) {
	n := len(v)
	if n < 2 {
		return
	}
	var sum uint32
	z := v[n-1]
	for r := 0; r < xxteaRounds; r++ {
		sum += xxteaDelta
		e := (sum >> 2) & 3
		for p := 0; p < n-1; p++ {
			y := v[p+1]
			v[p] += xxteaMX(sum, y, z, p, e, k)
			z = v[p]
		}
		y := v[0]
		v[n-1] += xxteaMX(sum, y, z, n-1, e, k)
		z = v[n-1]
	}
}

// decryptBlock is the inverse of encryptBlock.
func decryptBlock(v []uint32, k *Key) {
	n := len(v)
	if n < 2 {
		return
	}
	delta := uint32(xxteaDelta)
	sum := delta * xxteaRounds
	y := v[0]
	for r := 0; r < xxteaRounds; r++ {
		e := (sum >> 2) & 3
		for p := n - 1; p > 0; p-- {
			z := v[p-1]
			v[p] -= xxteaMX(sum, y, z, p, e, k)
			y = v[p]
		}
		z := v[n-1]
		v[0] -= xxteaMX(sum, y, z, 0, e, k)
		y = v[0]
		sum -= delta
	}
}
