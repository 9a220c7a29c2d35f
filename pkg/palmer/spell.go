package palmer

import (
	"fmt"
	"math"
)

// Selection records which intermediate index became a month's PDSI.
type Selection uint8

const (
	SelectNone Selection = iota
	SelectX1
	SelectX2
	SelectX3
)

func (s Selection) String() string {
	switch s {
	case SelectX1:
		return "X1"
	case SelectX2:
		return "X2"
	case SelectX3:
		return "X3"
	}
	return "none"
}

// SpellState is the state the spell machine carries out of a month. It
// decides how the next month's anomaly is handled.
type SpellState uint8

const (
	NoSpell SpellState = iota
	IncipientWet
	IncipientDry
	EstablishedWet
	EstablishedDrought
	Abating
)

func (s SpellState) String() string {
	switch s {
	case IncipientWet:
		return "incipient wet"
	case IncipientDry:
		return "incipient dry"
	case EstablishedWet:
		return "established wet"
	case EstablishedDrought:
		return "established drought"
	case Abating:
		return "abating"
	}
	return "no spell"
}

// MarshalText lets states appear by name in JSON and CSV output.
func (s SpellState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Spells is the output of the spell state machine. X1, X2, X3 and
// Probability are the month-end intermediate values. Probability is
// reported within [0, 100] even when the carried value is negative.
//
// PMDI is blended from the month's own Probability, X1, X2 and X3. It is
// not the lagged form that takes the previous month's values.
type Spells struct {
	PDSI        Series       `json:"pdsi"`
	PHDI        Series       `json:"phdi"`
	PMDI        Series       `json:"pmdi"`
	X1          Series       `json:"x1"`
	X2          Series       `json:"x2"`
	X3          Series       `json:"x3"`
	Probability Series       `json:"probability"`
	Selection   []Selection  `json:"selection"`
	State       []SpellState `json:"state"`
	Warnings    []Warning    `json:"warnings,omitempty"`
}

func newSpells(n int) *Spells {
	return &Spells{
		PDSI:        NewMissing(n),
		PHDI:        NewMissing(n),
		PMDI:        NewMissing(n),
		X1:          NewMissing(n),
		X2:          NewMissing(n),
		X3:          NewMissing(n),
		Probability: NewMissing(n),
		Selection:   make([]Selection, n),
		State:       make([]SpellState, n),
	}
}

// machine carries the spell state from one month to the next.
type machine struct {
	p   Params
	out *Spells

	state      SpellState
	x1, x2, x3 float64
	pe         float64 // percent chance the established spell has ended; negative while far from ending
	v          float64 // accumulated effective anomaly while abating

	pending pendingMonths
}

// month is the provisional state computed for a single month.
type month struct {
	k          int
	z          float64
	x1, x2, x3 float64
	pe, v      float64
}

// RunSpells runs the spell state machine over a Z-index series. Missing Z
// months produce missing outputs and leave the carried state untouched.
func RunSpells(z []float64, p Params) *Spells {
	m := &machine{p: p, out: newSpells(len(z))}

	for _, f := range []struct {
		name string
		d    DurationFactors
	}{{"wet", p.Wet}, {"dry", p.Dry}} {
		if !f.d.Usable() {
			m.out.Warnings = append(m.out.Warnings, Warning{
				Kind:    WarningUnusableDurationFactors,
				Month:   -1,
				Message: fmt.Sprintf("%s duration factors %+v have no usable sum", f.name, f.d),
			})
		}
	}
	if len(m.out.Warnings) > 0 {
		return m.out
	}

	for k, zk := range z {
		if Missing(zk) {
			continue
		}
		m.step(k, zk)
	}
	m.finish()
	return m.out
}

func (m *machine) step(k int, z float64) {
	switch m.state {
	case Abating:
		if m.x3 > 0 {
			m.abate(k, z, 1)
		} else {
			m.abate(k, z, -1)
		}
	case EstablishedWet:
		if z >= m.p.AbatementZ {
			m.continueSpell(k, z)
		} else {
			m.abate(k, z, 1)
		}
	case EstablishedDrought:
		if z <= -m.p.AbatementZ {
			m.continueSpell(k, z)
		} else {
			m.abate(k, z, -1)
		}
	default:
		m.establish(month{k: k, z: z})
	}
}

// continueSpell keeps the established spell going. Any months held while
// the spell looked like it might end take their X3 values.
func (m *machine) continueSpell(k int, z float64) {
	x3 := m.p.factorsFor(m.x3).next(m.x3, z)
	m.record(month{k: k, z: z, x3: x3}, x3, SelectX3)
	m.pending.keepEstablished(m.out)
}

// abate handles a month whose anomaly works against the established spell.
// wd is +1 for a wet spell and -1 for a drought.
func (m *machine) abate(k int, z, wd float64) {
	f := m.p.factorsFor(m.x3)

	u := z - wd*m.p.AbatementZ
	pv := u + wd*math.Min(wd*m.v, 0)
	if wd*pv >= 0 {
		m.continueSpell(k, z)
		return
	}

	ze := f.endingAnomaly(m.x3, m.p.NearNormal, wd)
	q := ze + m.v
	if m.pe == 100 {
		q = ze
	}

	// A Q on the far side of zero gives a negative Pe: the anomaly is too
	// weak to end the spell, which keeps abating.
	pe := 100 * pv / q
	if q == 0 || !finite(pe) {
		pe = 100
	}

	mo := month{k: k, z: z, pe: pe, v: pv}
	if pe >= 100 {
		mo.pe = 100
	} else {
		mo.x3 = f.next(m.x3, z)
	}
	m.establish(mo)
}

// establish evaluates the incipient indices for the month. A spell whose
// incipient index crosses the threshold becomes established, an unambiguous
// month settles the pending months along its branch, and anything else is
// held until a later month decides it.
func (m *machine) establish(mo month) {
	mo.x1 = math.Max(0, m.p.Wet.next(m.x1, mo.z))
	mo.x2 = math.Min(0, m.p.Dry.next(m.x2, mo.z))
	t := m.p.EstablishThreshold

	switch {
	case mo.x1 >= t && mo.x3 == 0:
		mo.x3, mo.x1 = mo.x1, 0
		m.record(mo, mo.x3, SelectX3)
		m.pending.commit(m.out, wetBranch)
	case mo.x2 <= -t && mo.x3 == 0:
		mo.x3, mo.x2 = mo.x2, 0
		m.record(mo, mo.x3, SelectX3)
		m.pending.commit(m.out, dryBranch)
	case mo.x3 == 0 && mo.x1 == 0:
		m.record(mo, mo.x2, SelectX2)
		m.pending.commit(m.out, dryBranch)
	case mo.x3 == 0 && mo.x2 == 0:
		m.record(mo, mo.x1, SelectX1)
		m.pending.commit(m.out, wetBranch)
	case mo.x3 == 0:
		m.record(mo, 0, SelectNone)
		m.pending.push(mo.k)
	case m.p.round(mo.pe) == 0:
		// Pe rounds away: the spell holds and the abating months keep X3.
		m.record(mo, mo.x3, SelectX3)
		m.pending.keepEstablished(m.out)
	default:
		// Abating: X3 for now, revisited if the spell ends.
		m.record(mo, mo.x3, SelectNone)
		m.pending.push(mo.k)
	}
}

// record rounds the month, stores it and makes it the carried state.
func (m *machine) record(mo month, x float64, sel Selection) {
	r := m.p.round
	mo.x1, mo.x2, mo.x3 = r(mo.x1), r(mo.x2), r(mo.x3)
	mo.pe, mo.v = r(mo.pe), r(mo.v)
	x = r(x)

	k := mo.k
	m.out.X1[k] = mo.x1
	m.out.X2[k] = mo.x2
	m.out.X3[k] = mo.x3
	m.out.Probability[k] = math.Max(0, mo.pe)
	m.out.PDSI[k] = x
	m.out.Selection[k] = sel

	m.x1, m.x2, m.x3 = mo.x1, mo.x2, mo.x3
	m.pe, m.v = mo.pe, mo.v
	m.state = m.stateAfter(mo, x)
	m.out.State[k] = m.state
}

// stateAfter derives the carried state from a recorded month. Any Pe other
// than 0 or 100 means an abatement is underway.
func (m *machine) stateAfter(mo month, x float64) SpellState {
	switch {
	case mo.pe != 0 && mo.pe != 100:
		return Abating
	case mo.x3 > m.p.NearNormal:
		return EstablishedWet
	case mo.x3 < -m.p.NearNormal:
		return EstablishedDrought
	case x > 0:
		return IncipientWet
	case x < 0:
		return IncipientDry
	}
	return NoSpell
}

// finish settles months still pending at the end of the record and derives
// PHDI, PMDI and the month states.
func (m *machine) finish() {
	s := m.out
	if !m.pending.empty() {
		last := m.pending.newest()
		if s.X3[last] == 0 {
			if math.Abs(s.X1[last]) > math.Abs(s.X2[last]) {
				m.pending.commit(s, wetBranch)
			} else {
				m.pending.commit(s, dryBranch)
			}
		} else {
			m.pending.keepEstablished(s)
		}
	}

	for k := range s.PDSI {
		if Missing(s.PDSI[k]) {
			continue
		}
		if s.X3[k] != 0 {
			s.PHDI[k] = s.X3[k]
		} else {
			s.PHDI[k] = s.PDSI[k]
		}
		s.PMDI[k] = m.p.round(modifiedIndex(s.Probability[k], s.X1[k], s.X2[k], s.X3[k]))
		if s.State[k] != Abating {
			s.State[k] = settled(s.X3[k], s.PDSI[k])
		}
	}
}

// modifiedIndex blends the intermediate indices by the probability that the
// established spell has ended.
func modifiedIndex(pe, x1, x2, x3 float64) float64 {
	if x3 == 0 {
		if math.Abs(x2) > math.Abs(x1) {
			return x2
		}
		return x1
	}
	if pe > 0 && pe < 100 {
		w := pe / 100
		if x3 <= 0 {
			return (1-w)*x3 + w*x1
		}
		return (1-w)*x3 + w*x2
	}
	return x3
}

// settled reports a month's state once its index value is final. A month
// still carrying X3 belongs to the established spell.
func settled(x3, x float64) SpellState {
	switch {
	case x3 > 0:
		return EstablishedWet
	case x3 < 0:
		return EstablishedDrought
	case x > 0:
		return IncipientWet
	case x < 0:
		return IncipientDry
	}
	return NoSpell
}
