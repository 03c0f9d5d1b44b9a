package integrity

// Primitive polynomials for GF(2^m), bit i is the coefficient of x^i.
var primitivePolys = map[int]int{
	7:  0x89,   // x^7 + x^3 + 1
	8:  0x11d,  // x^8 + x^4 + x^3 + x^2 + 1
	9:  0x211,  // x^9 + x^4 + 1
	10: 0x409,  // x^10 + x^3 + 1
	11: 0x805,  // x^11 + x^2 + 1
	12: 0x1053, // x^12 + x^6 + x^4 + x + 1
}

// gf is GF(2^m) with log/antilog tables. Elements are ints in [0, 2^m).
type gf struct {
	m, n int
	exp  []int // length 2n, exp[i] = alpha^i
	log  []int // length n+1, log[0] unused
}

func newGF(m int) *gf {
	n := 1<<m - 1
	f := &gf{m: m, n: n, exp: make([]int, 2*n), log: make([]int, n+1)}
	prim := primitivePolys[m]
	x := 1
	for i := 0; i < n; i++ {
		f.exp[i] = x
		f.exp[i+n] = x
		f.log[x] = i
		x <<= 1
		if x&(1<<m) != 0 {
			x ^= prim
		}
	}
	return f
}

func (f *gf) mul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp[f.log[a]+f.log[b]]
}

func (f *gf) inv(a int) int {
	return f.exp[f.n-f.log[a]]
}

// alpha returns alpha^e for any integer e.
func (f *gf) alpha(e int) int {
	e %= f.n
	if e < 0 {
		e += f.n
	}
	return f.exp[e]
}

// minimalPoly returns the binary minimal polynomial of alpha^i, lowest
// degree first, together with the members of its cyclotomic coset.
func (f *gf) minimalPoly(i int) (poly []uint8, coset []int) {
	c := i % f.n
	for {
		coset = append(coset, c)
		c = c * 2 % f.n
		if c == coset[0] {
			break
		}
	}

	p := []int{1}
	for _, e := range coset {
		root := f.alpha(e)
		next := make([]int, len(p)+1)
		for d, coef := range p {
			next[d+1] ^= coef
			next[d] ^= f.mul(coef, root)
		}
		p = next
	}

	poly = make([]uint8, len(p))
	for d, coef := range p {
		// conjugate roots make every coefficient 0 or 1
		poly[d] = uint8(coef & 1)
	}
	return poly, coset
}

// mulBinary multiplies two GF(2) polynomials.
func mulBinary(a, b []uint8) []uint8 {
	out := make([]uint8, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] ^= y
		}
	}
	return out
}
