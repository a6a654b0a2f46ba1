package territory

// Resolve decides the controlling faction for an influence map.
//
// The faction with the highest influence controls the territory; a top
// value of 0 means nobody does. The territory is contested when the
// second-highest value is within margin of the top. Exact ties on the top
// value resolve to the lowest faction ID so that replicas agree without
// coordination.
func Resolve(influence map[FactionID]int, margin int) (controller FactionID, contested bool) {
	var (
		top     int
		topID   FactionID
		second  int
		haveTop bool
	)
	for id, v := range influence {
		switch {
		case !haveTop, v > top, v == top && id < topID:
			if haveTop {
				// Displaced leader becomes the runner-up candidate.
				if top > second {
					second = top
				}
			}
			top = v
			topID = id
			haveTop = true
		case v > second:
			second = v
		}
	}
	if !haveTop || top == 0 {
		return NoFaction, false
	}
	return topID, top-second < margin
}
