package wdf

// Series joins two components in series. Its port is adapted toward the
// parent, so its own reflection never depends on the parent's incident wave.
type Series struct {
	port
	left, right Component
	gammaL      float64
	gammaR      float64
}

// NewSeries creates a series adaptor that takes exclusive ownership of left
// and right.
func NewSeries(left, right Component) (*Series, error) {
	if err := claimPair(left, right); err != nil {
		return nil, err
	}
	rl, rr := left.PortResistance(), right.PortResistance()
	p, err := newPort(rl + rr)
	if err != nil {
		release(left, right)
		return nil, err
	}
	return &Series{
		port:   p,
		left:   left,
		right:  right,
		gammaL: rl / (rl + rr),
		gammaR: rr / (rl + rr),
	}, nil
}

// Left returns the left child.
func (s *Series) Left() Component { return s.left }

// Right returns the right child.
func (s *Series) Right() Component { return s.right }

// ComputeReflection scatters a into both children and returns -(bL+bR).
//
// Both children's reflections are read before either child is recomputed;
// the left child is then computed before the right.
func (s *Series) ComputeReflection(a float64) float64 {
	bl := s.left.pendingReflection()
	br := s.right.pendingReflection()
	t := a + bl + br

	s.incident = a
	s.left.ComputeReflection(bl - s.gammaL*t)
	s.right.ComputeReflection(br - s.gammaR*t)
	s.reflected = -(s.left.ReflectedWave() + s.right.ReflectedWave())
	return s.reflected
}

func (s *Series) pendingReflection() float64 {
	return -(s.left.pendingReflection() + s.right.pendingReflection())
}

// Reset resets both children, then the adaptor's own registers.
func (s *Series) Reset() {
	s.left.Reset()
	s.right.Reset()
	s.clearWaves()
}

// Parallel joins two components in parallel. It is the conductance dual of
// Series.
type Parallel struct {
	port
	left, right Component
	deltaL      float64
	deltaR      float64
}

// NewParallel creates a parallel adaptor that takes exclusive ownership of
// left and right.
func NewParallel(left, right Component) (*Parallel, error) {
	if err := claimPair(left, right); err != nil {
		return nil, err
	}
	gl, gr := 1.0/left.PortResistance(), 1.0/right.PortResistance()
	p, err := newPort(1.0 / (gl + gr))
	if err != nil {
		release(left, right)
		return nil, err
	}
	return &Parallel{
		port:   p,
		left:   left,
		right:  right,
		deltaL: gl / (gl + gr),
		deltaR: gr / (gl + gr),
	}, nil
}

// Left returns the left child.
func (p *Parallel) Left() Component { return p.left }

// Right returns the right child.
func (p *Parallel) Right() Component { return p.right }

// ComputeReflection scatters a into both children and returns the
// conductance-weighted sum of their reflections. Ordering is the same as
// Series.
func (p *Parallel) ComputeReflection(a float64) float64 {
	bl := p.left.pendingReflection()
	br := p.right.pendingReflection()
	u := p.deltaL*bl + p.deltaR*br

	p.incident = a
	p.left.ComputeReflection(a + u - bl)
	p.right.ComputeReflection(a + u - br)
	p.reflected = p.deltaL*p.left.ReflectedWave() + p.deltaR*p.right.ReflectedWave()
	return p.reflected
}

func (p *Parallel) pendingReflection() float64 {
	return p.deltaL*p.left.pendingReflection() + p.deltaR*p.right.pendingReflection()
}

// Reset resets both children, then the adaptor's own registers.
func (p *Parallel) Reset() {
	p.left.Reset()
	p.right.Reset()
	p.clearWaves()
}

// Drive runs one sample of a tree whose root is an ideal voltage source: the
// source reflects against the tree's outgoing wave, then the tree scatters
// the result down to its leaves.
func Drive(src *VoltageSource, tree Component) {
	tree.ComputeReflection(src.ComputeReflection(tree.pendingReflection()))
}

func release(cs ...Component) {
	for _, c := range cs {
		c.base().owned = false
	}
}
