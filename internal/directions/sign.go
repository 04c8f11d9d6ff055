package directions

// Sign is the maneuver code attached to an instruction.
type Sign int

const (
	SignUTurnUnknown    Sign = -98
	SignUTurnLeft       Sign = -8
	SignKeepLeft        Sign = -7
	SignLeaveRoundabout Sign = -6
	SignTurnSharpLeft   Sign = -3
	SignTurnLeft        Sign = -2
	SignTurnSlightLeft  Sign = -1
	SignContinue        Sign = 0
	SignTurnSlightRight Sign = 1
	SignTurnRight       Sign = 2
	SignTurnSharpRight  Sign = 3
	SignFinish          Sign = 4
	SignReachedVia      Sign = 5
	SignUseRoundabout   Sign = 6
	SignKeepRight       Sign = 7
	SignUTurnRight      Sign = 8
)

var maneuvers = map[Sign]string{
	SignUTurnUnknown:    "u_turn_left",
	SignUTurnLeft:       "u_turn_left",
	SignUTurnRight:      "u_turn_right",
	SignKeepLeft:        "slight_left",
	SignKeepRight:       "slight_right",
	SignLeaveRoundabout: "roundabout",
	SignUseRoundabout:   "roundabout",
	SignTurnSharpLeft:   "sharp_left",
	SignTurnLeft:        "left",
	SignTurnSlightLeft:  "slight_left",
	SignContinue:        "straight",
	SignTurnSlightRight: "slight_right",
	SignTurnRight:       "right",
	SignTurnSharpRight:  "sharp_right",
	SignFinish:          "finish",
	SignReachedVia:      "via_reached",
}

// Maneuver names the maneuver for clients; unknown signs map to "navigate".
func (s Sign) Maneuver() string {
	if name, ok := maneuvers[s]; ok {
		return name
	}
	return "navigate"
}
