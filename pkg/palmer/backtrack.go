package palmer

// branch is the incipient index a resolution walks along.
type branch uint8

const (
	wetBranch branch = iota + 1
	dryBranch
)

// pendingMonths holds the indices of months whose index value is not yet
// known, oldest first. Months join when they are ambiguous between X1 and
// X2, or while an established spell may be ending. They leave together once
// a later month settles which value applies.
type pendingMonths struct {
	months []int
}

func (p *pendingMonths) push(k int) { p.months = append(p.months, k) }

func (p *pendingMonths) empty() bool { return len(p.months) == 0 }

func (p *pendingMonths) newest() int { return p.months[len(p.months)-1] }

func (p *pendingMonths) clear() { p.months = p.months[:0] }

// keepEstablished resolves every pending month to its own X3: the possible
// end of the spell did not happen.
func (p *pendingMonths) keepEstablished(s *Spells) {
	for _, k := range p.months {
		s.PDSI[k] = s.X3[k]
		s.Selection[k] = SelectX3
	}
	p.clear()
}

// commit walks backward from the newest pending month assigning the branch
// value. When a month has no value on the current branch the walk switches
// to the other one.
func (p *pendingMonths) commit(s *Spells, b branch) {
	for i := len(p.months) - 1; i >= 0; i-- {
		k := p.months[i]
		switch b {
		case dryBranch:
			if s.X2[k] != 0 {
				s.PDSI[k], s.Selection[k] = s.X2[k], SelectX2
			} else {
				s.PDSI[k], s.Selection[k] = s.X1[k], SelectX1
				b = wetBranch
			}
		default:
			if s.X1[k] != 0 {
				s.PDSI[k], s.Selection[k] = s.X1[k], SelectX1
			} else {
				s.PDSI[k], s.Selection[k] = s.X2[k], SelectX2
				b = dryBranch
			}
		}
	}
	p.clear()
}
