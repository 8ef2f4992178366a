package game

// Drag is an in-progress aiming gesture. Origin is the ball position when the
// drag began; Current is the latest pointer position.
type Drag struct {
	Origin  Vec2 `json:"origin" msgpack:"origin"`
	Current Vec2 `json:"current" msgpack:"current"`
}

// InputController turns a pull-back drag into a launch impulse. Pointer
// positions are in pitch meters.
type InputController struct {
	dragging bool
	drag     Drag
}

// GestureStart begins a drag when the ball is at rest and the pointer lands
// within HitRadiusFactor ball radii of it. It reports whether a drag started.
func (ic *InputController) GestureStart(p Vec2, ball Ball, phase Phase) bool {
	if phase != PhaseIdle {
		return false
	}
	if p.Distance(ball.Position) >= ball.Radius*HitRadiusFactor {
		return false
	}
	ic.dragging = true
	ic.drag = Drag{Origin: ball.Position, Current: p}
	return true
}

// GestureMove tracks the pointer while a drag is active.
func (ic *InputController) GestureMove(p Vec2) {
	if !ic.dragging {
		return
	}
	ic.drag.Current = p
}

// GestureEnd finishes the drag and returns the launch impulse. Pulling back
// launches forward; the impulse is capped at MaxPower. ok is false when no drag
// was active or the release was too weak to count as a shot.
func (ic *InputController) GestureEnd() (impulse Vec2, ok bool) {
	if !ic.dragging {
		return Vec2{}, false
	}
	ic.dragging = false

	raw := ic.drag.Origin.Minus(ic.drag.Current).Times(DragSensitivity)
	if raw.Magnitude() <= LaunchThreshold {
		return Vec2{}, false
	}
	return raw.ClampMagnitude(MaxPower), true
}

// Cancel drops any active drag.
func (ic *InputController) Cancel() {
	ic.dragging = false
	ic.drag = Drag{}
}

// ActiveDrag returns the current drag, or nil when none is active.
func (ic *InputController) ActiveDrag() *Drag {
	if !ic.dragging {
		return nil
	}
	d := ic.drag
	return &d
}
