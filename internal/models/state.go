// Package models holds the JSON snapshots exchanged with viewer collaborators.
package models

// ViewerState is a full snapshot of one viewer session
type ViewerState struct {
	// ID is the session identifier assigned by the host
	ID string `json:"id"`

	// Title is the user-supplied window title
	Title string `json:"title"`

	// Shape and DType describe the source array
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`

	// Roles holds the row, column and dynamic axes in that order
	Roles [3]int `json:"roles"`

	// Indices is the per-axis selection; -1 selects the full axis
	Indices []int `json:"indices"`

	// FrameShape is the (rows, cols) of the prepared image
	FrameShape [2]int `json:"frameShape"`

	ViewMode  string         `json:"viewMode"`
	Colormap  string         `json:"colormap"`
	Transform TransformState `json:"transform"`
	Contrast  ContrastState  `json:"contrast"`
	Animation AnimationState `json:"animation"`
	Stats     FrameStats     `json:"stats"`
}

// TransformState mirrors the geometric display transform
type TransformState struct {
	Transpose bool `json:"transpose"`
	FlipH     bool `json:"flipH"`
	FlipV     bool `json:"flipV"`
	Rotation  int  `json:"rotation"`
	FFT       bool `json:"fft"`
}

// ContrastState is the window/level model plus the resulting display range
type ContrastState struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Range  float64 `json:"range"`
	Window float64 `json:"window"`
	Level  float64 `json:"level"`

	// Low and High are the data values at the ends of the display scale
	Low  float64 `json:"low"`
	High float64 `json:"high"`

	Degenerate bool `json:"degenerate"`
}

// AnimationState reports the scrub loop
type AnimationState struct {
	Running bool    `json:"running"`
	FPS     float64 `json:"fps"`
	Extent  int     `json:"extent"`
}

// FrameStats summarises the prepared image
type FrameStats struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	NonFinite int     `json:"nonFinite"`
}

// SessionSummary is the short form used in session listings
type SessionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Shape []int  `json:"shape"`
}
