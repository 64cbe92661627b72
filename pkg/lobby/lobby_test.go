package lobby

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newCube(x, y, z string) Document {
	return Document{
		Creator: "user1",
		Payload: &Cube{X: x, Y: y, Z: z, Color: "red", RotX: "0", RotY: "0", RotZ: "0"},
	}
}

func TestCreateDocumentAssignsSequentialIDs(t *testing.T) {
	l := New("proc-1")

	for i := 1; i <= 5; i++ {
		doc := newCube(strconv.Itoa(i*10), "0", "0")
		doc.ID = 999 // client supplied ids are ignored
		id, err := l.CreateDocument("cubes", doc)
		if err != nil {
			t.Fatalf("CreateDocument() error: %v", err)
		}
		if want := strconv.Itoa(i); id != want {
			t.Fatalf("id = %q, want %q", id, want)
		}
		stored, err := l.Document("cubes", id)
		if err != nil {
			t.Fatalf("Document(%s) error: %v", id, err)
		}
		if stored.ID != uint64(i) {
			t.Fatalf("stored.ID = %d, want %d", stored.ID, i)
		}
	}
}

func TestCreateDocumentNeverReusesDeletedID(t *testing.T) {
	l := New("proc-1")

	id, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))
	if id != "1" {
		t.Fatalf("first id = %q, want 1", id)
	}
	if ok, err := l.DeleteDocument("cubes", "1"); err != nil || !ok {
		t.Fatalf("DeleteDocument() = %v, %v; want true, nil", ok, err)
	}

	id, _ = l.CreateDocument("cubes", newCube("1", "2", "3"))
	if id != "2" {
		t.Fatalf("id after delete = %q, want 2", id)
	}

	id2, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))
	l.DeleteDocument("cubes", id2)
	l.DeleteDocument("cubes", id)
	id3, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))
	if id3 != "4" {
		t.Fatalf("id after deleting everything = %q, want 4", id3)
	}
}

func TestCreateDocumentFollowsOutOfBandKeys(t *testing.T) {
	l := New("proc-1")
	l.CreateDocument("cubes", newCube("0", "0", "0"))
	l.Collections["cubes"]["41"] = &Document{ID: 41, Payload: &Cube{}}

	id, _ := l.CreateDocument("cubes", newCube("0", "0", "0"))
	if id != "42" {
		t.Fatalf("id = %q, want 42", id)
	}
}

func TestCreateDocumentIgnoresNonNumericKeys(t *testing.T) {
	l := New("proc-1")
	l.Collections["cubes"] = Collection{
		"abc": {ID: 0, Payload: &Cube{}},
		"7":   {ID: 7, Payload: &Cube{}},
	}
	id, err := l.CreateDocument("cubes", newCube("0", "0", "0"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "8" {
		t.Fatalf("id = %q, want 8", id)
	}
}

func TestCreateDocumentCollectionsAreIndependent(t *testing.T) {
	l := New("proc-1")
	l.CreateDocument("cubes", newCube("0", "0", "0"))
	l.CreateDocument("cubes", newCube("0", "0", "0"))

	id, err := l.CreateDocument("splashes", Document{Payload: &Splash{X: "1", Y: "1", Seed: "42"}})
	if err != nil {
		t.Fatal(err)
	}
	if id != "1" {
		t.Fatalf("id = %q, want 1", id)
	}
}

func TestCreateDocumentRequiresPayload(t *testing.T) {
	l := New("proc-1")
	if _, err := l.CreateDocument("cubes", Document{}); !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("err = %v, want ErrMissingPayload", err)
	}
	if l.Hot {
		t.Fatal("failed create must not mark lobby hot")
	}
}

func TestCreateDocumentCopiesInput(t *testing.T) {
	l := New("proc-1")
	cube := &Cube{X: "1"}
	id, _ := l.CreateDocument("cubes", Document{Payload: cube})
	cube.X = "mutated"

	stored, _ := l.Document("cubes", id)
	if got := stored.Payload.(*Cube).X; got != "1" {
		t.Fatalf("stored X = %q, want 1", got)
	}
}

func TestCreateDocumentRecordsRequestID(t *testing.T) {
	l := New("proc-1")
	doc := newCube("0", "0", "0")
	doc.RequestID = String("req-1")
	l.CreateDocument("cubes", doc)

	if _, ok := l.ProcessedRequests["req-1"]; !ok {
		t.Fatal("request id not recorded")
	}
}

func TestUpdateDocumentPartialPatch(t *testing.T) {
	l := New("proc-1")
	id, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))

	applied, err := l.UpdateDocument("cubes", id, DocumentChanges{X: String("9")})
	if err != nil {
		t.Fatalf("UpdateDocument() error: %v", err)
	}
	if diff := cmp.Diff(DocumentChanges{X: String("9")}, applied); diff != "" {
		t.Fatalf("applied changes mismatch (-want +got):\n%s", diff)
	}

	got, _ := l.Document("cubes", id)
	want := &Cube{X: "9", Y: "2", Z: "3", Color: "red", RotX: "0", RotY: "0", RotZ: "0"}
	if diff := cmp.Diff(want, got.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateDocumentIsIdempotent(t *testing.T) {
	l := New("proc-1")
	id, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))
	changes := DocumentChanges{X: String("9"), Color: String("blue")}

	l.UpdateDocument("cubes", id, changes)
	once := l.FullState()
	l.UpdateDocument("cubes", id, changes)

	if diff := cmp.Diff(once, l.FullState()); diff != "" {
		t.Fatalf("second identical update changed state (-once +twice):\n%s", diff)
	}
}

func TestUpdateDocumentIgnoresFieldsOfOtherVariants(t *testing.T) {
	l := New("proc-1")
	id, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))

	applied, err := l.UpdateDocument("cubes", id, DocumentChanges{
		LineColor: String("green"), // vertex only
		Seed:      String("7"),     // splash only
		RotZ:      String("90"),
	})
	if err != nil {
		t.Fatalf("UpdateDocument() error: %v", err)
	}
	if diff := cmp.Diff(DocumentChanges{RotZ: String("90")}, applied); diff != "" {
		t.Fatalf("applied changes mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateDocumentWithNothingApplicableLeavesLobbyClean(t *testing.T) {
	l := New("proc-1")
	id, _ := l.CreateDocument("cubes", newCube("1", "2", "3"))
	l.MarkPersisted(l.Version)
	version := l.Version

	applied, err := l.UpdateDocument("cubes", id, DocumentChanges{Seed: String("7"), CameraX: String("1")})
	if err != nil {
		t.Fatalf("UpdateDocument() error: %v", err)
	}
	if !applied.IsEmpty() {
		t.Fatalf("applied = %+v, want empty", applied)
	}
	if l.Hot || l.Version != version {
		t.Fatalf("hot=%v version=%d, want clean at %d", l.Hot, l.Version, version)
	}
}

func TestUpdateDocumentPerVariant(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		changes DocumentChanges
		want    Payload
	}{
		{
			name:    "vertex",
			payload: &Vertex{X: "0", Y: "0", Z: "0", LineColor: "1", VertexColor: "2", CameraX: "0", CameraY: "0", CameraZ: "10"},
			changes: DocumentChanges{VertexColor: String("3"), CameraZ: String("20"), Color: String("ignored")},
			want:    &Vertex{X: "0", Y: "0", Z: "0", LineColor: "1", VertexColor: "3", CameraX: "0", CameraY: "0", CameraZ: "20"},
		},
		{
			name:    "splash",
			payload: &Splash{X: "1", Y: "2", Seed: "3"},
			changes: DocumentChanges{Y: String("5"), Seed: String("4"), Z: String("ignored")},
			want:    &Splash{X: "1", Y: "5", Seed: "4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("proc-1")
			id, _ := l.CreateDocument(string(tt.payload.Kind()), Document{Payload: tt.payload})
			if _, err := l.UpdateDocument(string(tt.payload.Kind()), id, tt.changes); err != nil {
				t.Fatal(err)
			}
			got, _ := l.Document(string(tt.payload.Kind()), id)
			if diff := cmp.Diff(tt.want, got.Payload); diff != "" {
				t.Fatalf("payload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdateDocumentNotFound(t *testing.T) {
	l := New("proc-1")
	l.CreateDocument("cubes", newCube("1", "2", "3"))
	version := l.Version

	if _, err := l.UpdateDocument("nope", "1", DocumentChanges{}); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("err = %v, want ErrCollectionNotFound", err)
	}
	if _, err := l.UpdateDocument("cubes", "42", DocumentChanges{}); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
	if l.Version != version {
		t.Fatal("failed update must not bump version")
	}
}

func TestDeleteDocument(t *testing.T) {
	l := New("proc-1")
	l.CreateDocument("cubes", newCube("1", "2", "3"))

	ok, err := l.DeleteDocument("cubes", "1")
	if err != nil || !ok {
		t.Fatalf("first delete = %v, %v; want true, nil", ok, err)
	}
	ok, err = l.DeleteDocument("cubes", "1")
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v; want false, nil", ok, err)
	}
	if _, err := l.DeleteDocument("spheres", "1"); !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("err = %v, want ErrCollectionNotFound", err)
	}
}

func TestHotAndVersionTracking(t *testing.T) {
	l := New("proc-1")
	if l.Hot || l.Version != 0 {
		t.Fatalf("new lobby hot=%v version=%d", l.Hot, l.Version)
	}

	l.CreateDocument("cubes", newCube("1", "2", "3"))
	l.UpdateDocument("cubes", "1", DocumentChanges{X: String("2")})
	if !l.Hot || l.Version != 2 {
		t.Fatalf("after 2 mutations hot=%v version=%d", l.Hot, l.Version)
	}

	l.MarkPersisted(1)
	if !l.Hot {
		t.Fatal("persisting an older version must keep lobby hot")
	}
	l.MarkPersisted(2)
	if l.Hot {
		t.Fatal("persisting the latest version must clear hot")
	}
}

func TestFullStateIsDeepCopy(t *testing.T) {
	l := New("proc-1")
	l.CreateDocument("cubes", newCube("1", "2", "3"))

	state := l.FullState()
	state["cubes"]["1"].Payload.(*Cube).X = "mutated"
	delete(state, "cubes")

	got, err := l.Document("cubes", "1")
	if err != nil {
		t.Fatal(err)
	}
	if x := got.Payload.(*Cube).X; x != "1" {
		t.Fatalf("lobby state changed through snapshot: X = %q", x)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := New("proc-1")
	doc := newCube("1", "2", "3")
	doc.RequestID = String("req-1")
	l.CreateDocument("cubes", doc)

	cp := l.Clone()
	if cp.ProcessID != "proc-1" || !cp.Hot || cp.Version != l.Version {
		t.Fatalf("Clone() header = %+v", cp)
	}
	if _, ok := cp.ProcessedRequests["req-1"]; !ok {
		t.Fatal("Clone() lost processed request ids")
	}

	cp.CreateDocument("cubes", newCube("4", "5", "6"))
	cp.UpdateDocument("cubes", "1", DocumentChanges{X: String("9")})

	if l.DocumentCount() != 1 {
		t.Fatalf("original DocumentCount() = %d, want 1", l.DocumentCount())
	}
	if l.Sequences["cubes"] != 1 {
		t.Fatalf("original sequence = %d, want 1", l.Sequences["cubes"])
	}
	got, _ := l.Document("cubes", "1")
	if x := got.Payload.(*Cube).X; x != "1" {
		t.Fatalf("original changed through clone: X = %q", x)
	}
}

func TestCollectionIDsOrder(t *testing.T) {
	c := Collection{"10": nil, "2": nil, "1": nil, "b": nil, "a": nil}
	want := []string{"1", "2", "10", "a", "b"}
	if diff := cmp.Diff(want, c.IDs()); diff != "" {
		t.Fatalf("IDs() mismatch (-want +got):\n%s", diff)
	}
}
