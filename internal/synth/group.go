package synth

// Group is a point-in-time copy of a group and its member multipliers in
// assignment order.
type Group struct {
	Name       string
	TriggerKey string
	Members    []float64
}

type group struct {
	name    string
	key     string
	members []*voice
}

func (g *group) add(v *voice) {
	for _, m := range g.members {
		if m == v {
			return
		}
	}
	g.members = append(g.members, v)
	v.group = g
}

func (g *group) remove(v *voice) {
	for i, m := range g.members {
		if m == v {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			break
		}
	}
	if v.group == g {
		v.group = nil
	}
}

func (g *group) view() Group {
	out := Group{Name: g.name, TriggerKey: g.key, Members: make([]float64, len(g.members))}
	for i, v := range g.members {
		out.Members[i] = v.multiplier()
	}
	return out
}
