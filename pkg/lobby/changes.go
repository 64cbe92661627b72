package lobby

// DocumentChanges is a partial update spanning the fields of every payload
// variant. A nil field means "leave unchanged".
type DocumentChanges struct {
	// Shared by all variants.
	X *string `json:"x,omitempty"`
	Y *string `json:"y,omitempty"`
	Z *string `json:"z,omitempty"`

	// Cube.
	Color *string `json:"color,omitempty"`
	RotX  *string `json:"rotX,omitempty"`
	RotY  *string `json:"rotY,omitempty"`
	RotZ  *string `json:"rotZ,omitempty"`

	// Vertex.
	LineColor   *string `json:"lineColor,omitempty"`
	VertexColor *string `json:"vertexColor,omitempty"`
	CameraX     *string `json:"cameraX,omitempty"`
	CameraY     *string `json:"cameraY,omitempty"`
	CameraZ     *string `json:"cameraZ,omitempty"`

	// Splash.
	Seed *string `json:"seed,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c DocumentChanges) IsEmpty() bool {
	return c == DocumentChanges{}
}

// String returns a pointer to s. It is a convenience for building changes:
//
//	lobby.DocumentChanges{X: lobby.String("9")}
func String(s string) *string {
	return &s
}
