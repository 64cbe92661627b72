package lobby

// Kind is the "type" discriminant of a document payload. Its value doubles as
// the conventional collection name for documents of that kind.
type Kind string

const (
	KindCube   Kind = "cubes"
	KindVertex Kind = "vertices"
	KindSplash Kind = "splashes"
)

// Valid reports whether k names a known payload variant.
func (k Kind) Valid() bool {
	switch k {
	case KindCube, KindVertex, KindSplash:
		return true
	}
	return false
}

// Payload is the variant-specific part of a Document.
//
// Implementations are *Cube, *Vertex and *Splash. Each variant applies
// DocumentChanges to its own field set, so adding a variant without its patch
// logic does not compile.
type Payload interface {
	// Kind returns the variant discriminant.
	Kind() Kind

	// Apply overwrites every field present in c that exists on this variant
	// and returns the subset of c that was applied.
	Apply(c DocumentChanges) DocumentChanges

	clone() Payload
}

// Cube is a positioned, rotated, colored cube.
type Cube struct {
	X     string `json:"x"`
	Y     string `json:"y"`
	Z     string `json:"z"`
	Color string `json:"color"`
	RotX  string `json:"rotX"`
	RotY  string `json:"rotY"`
	RotZ  string `json:"rotZ"`
}

func (c *Cube) Kind() Kind { return KindCube }

func (c *Cube) Apply(ch DocumentChanges) DocumentChanges {
	var applied DocumentChanges
	patch(&c.X, ch.X, &applied.X)
	patch(&c.Y, ch.Y, &applied.Y)
	patch(&c.Z, ch.Z, &applied.Z)
	patch(&c.Color, ch.Color, &applied.Color)
	patch(&c.RotX, ch.RotX, &applied.RotX)
	patch(&c.RotY, ch.RotY, &applied.RotY)
	patch(&c.RotZ, ch.RotZ, &applied.RotZ)
	return applied
}

func (c *Cube) clone() Payload {
	cp := *c
	return &cp
}

// Vertex is a point of a line drawing together with the camera it was placed from.
type Vertex struct {
	X           string `json:"x"`
	Y           string `json:"y"`
	Z           string `json:"z"`
	LineColor   string `json:"lineColor"`
	VertexColor string `json:"vertexColor"`
	CameraX     string `json:"cameraX"`
	CameraY     string `json:"cameraY"`
	CameraZ     string `json:"cameraZ"`
}

func (v *Vertex) Kind() Kind { return KindVertex }

func (v *Vertex) Apply(ch DocumentChanges) DocumentChanges {
	var applied DocumentChanges
	patch(&v.X, ch.X, &applied.X)
	patch(&v.Y, ch.Y, &applied.Y)
	patch(&v.Z, ch.Z, &applied.Z)
	patch(&v.LineColor, ch.LineColor, &applied.LineColor)
	patch(&v.VertexColor, ch.VertexColor, &applied.VertexColor)
	patch(&v.CameraX, ch.CameraX, &applied.CameraX)
	patch(&v.CameraY, ch.CameraY, &applied.CameraY)
	patch(&v.CameraZ, ch.CameraZ, &applied.CameraZ)
	return applied
}

func (v *Vertex) clone() Payload {
	cp := *v
	return &cp
}

// Splash is a seeded 2D splash.
type Splash struct {
	X    string `json:"x"`
	Y    string `json:"y"`
	Seed string `json:"seed"`
}

func (s *Splash) Kind() Kind { return KindSplash }

func (s *Splash) Apply(ch DocumentChanges) DocumentChanges {
	var applied DocumentChanges
	patch(&s.X, ch.X, &applied.X)
	patch(&s.Y, ch.Y, &applied.Y)
	patch(&s.Seed, ch.Seed, &applied.Seed)
	return applied
}

func (s *Splash) clone() Payload {
	cp := *s
	return &cp
}

// newPayload returns an empty payload for k, or nil if k is unknown.
func newPayload(k Kind) Payload {
	switch k {
	case KindCube:
		return &Cube{}
	case KindVertex:
		return &Vertex{}
	case KindSplash:
		return &Splash{}
	}
	return nil
}

func patch(field *string, value *string, applied **string) {
	if value == nil {
		return
	}
	*field = *value
	v := *value
	*applied = &v
}
