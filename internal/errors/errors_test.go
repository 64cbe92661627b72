package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config error", "E102", "Unknown store driver", CategoryConfig},
		{"store error", "E120", "Cannot open store", CategoryStore},
		{"server error", "E140", "Cannot listen on address", CategoryServer},
		{"process error", "E160", "Process not found", CategoryProcess},
		{"unknown code", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestRegistryCodesAreComplete(t *testing.T) {
	for code, tmpl := range registry {
		if tmpl.Category == "" || tmpl.Message == "" {
			t.Errorf("%s: incomplete template %+v", code, tmpl)
		}
		if _, ok := Lookup(code); !ok {
			t.Errorf("Lookup(%s) failed", code)
		}
	}
}

func TestErrorString(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := New("E120").Wrap(cause)

	if got, want := err.Error(), "E120: Cannot open store: connection refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	plain := Newf(CategoryCLI, "bad flag %q", "--x")
	if plain.Error() != `bad flag "--x"` {
		t.Errorf("Error() = %q", plain.Error())
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E120") != nil {
		t.Fatal("FromError(nil) should be nil")
	}

	coded := New("E103")
	if got := FromError(coded, "E120"); got != coded {
		t.Fatal("FromError should keep an existing OltaError")
	}

	got := FromError(stderrors.New("boom"), "E120")
	if got.Code != "E120" || got.Wrapped == nil {
		t.Fatalf("FromError() = %+v", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E102").WithDetail(`store.driver is "mongo"`).Wrap(stderrors.New("unsupported"))
	out := err.Format()

	for _, want := range []string{
		"ERROR E102: Unknown store driver",
		`store.driver is "mongo"`,
		"Cause: unsupported",
		"Hint: Use one of: memory, sqlite, postgres, s3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E160").WithDetail("lobby-7")
	var decoded map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &decoded); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if decoded["code"] != "E160" || decoded["detail"] != "lobby-7" || decoded["category"] != "process" {
		t.Fatalf("FormatJSON() = %v", decoded)
	}
	if _, ok := decoded["cause"]; ok {
		t.Fatal("cause should be omitted when nothing is wrapped")
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, stderrors.New("plain failure"))
	if !strings.Contains(buf.String(), "ERROR: plain failure") {
		t.Fatalf("Fprint(plain) = %q", buf.String())
	}

	buf.Reset()
	Fprint(&buf, New("E140"))
	if !strings.Contains(buf.String(), "Cannot listen on address") {
		t.Fatalf("Fprint(coded) = %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six seven", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Fatalf("line %q longer than 10", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six seven" {
		t.Fatalf("wrapText lost words: %v", lines)
	}
}
