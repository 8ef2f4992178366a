package game

// DefaultViewportMargin is the pixel border kept around the pitch when fitting
// it into a window.
const DefaultViewportMargin = 40.0

// Viewport maps pitch meters onto a canvas of Width x Height pixels.
type Viewport struct {
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
	Scale  float64 `json:"scale" msgpack:"scale"` // pixels per meter
}

// IdentityViewport treats one pixel as one meter.
func IdentityViewport() Viewport {
	return Viewport{Width: PitchWidth, Height: PitchHeight, Scale: 1}
}

// FitViewport sizes the largest canvas with the pitch aspect ratio that fits in
// a window of windowW x windowH pixels after removing margin on every side.
func FitViewport(windowW, windowH, margin float64) Viewport {
	maxW := windowW - margin*2
	maxH := windowH - margin*2
	if maxW <= 0 || maxH <= 0 {
		return IdentityViewport()
	}

	pitchRatio := PitchWidth / PitchHeight
	var w, h float64
	if maxW/maxH > pitchRatio {
		h = maxH
		w = maxH * pitchRatio
	} else {
		w = maxW
		h = maxW / pitchRatio
	}

	return Viewport{Width: w, Height: h, Scale: w / PitchWidth}
}

func (vp Viewport) scale() float64 {
	if vp.Scale <= 0 {
		return 1
	}
	return vp.Scale
}

// ToPixels converts a pitch position to canvas pixels.
func (vp Viewport) ToPixels(p Vec2) Vec2 {
	return p.Times(vp.scale())
}

// ToMeters converts a canvas pixel position to pitch meters.
func (vp Viewport) ToMeters(p Vec2) Vec2 {
	return p.Times(1 / vp.scale())
}
