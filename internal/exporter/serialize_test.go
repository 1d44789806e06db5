package exporter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/export"
)

func TestSerializeCSV_Escaping(t *testing.T) {
	objs := []domain.Object{
		{
			UUID: "id-1",
			Properties: map[string]any{
				"title": `Title with "quotes"`,
				"note":  "line1\nline2",
				"plain": "ok",
			},
		},
	}

	data, err := serialize(objs, export.FormatCSV, export.Options{IncludeProperties: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(data, `"Title with ""quotes"""`) {
		t.Errorf("quotes must be doubled and the cell quoted:\n%s", data)
	}
	if !strings.Contains(data, "\"line1\nline2\"") {
		t.Errorf("embedded newlines must be quoted:\n%s", data)
	}
}

func TestSerializeCSV_NullsAndArrays(t *testing.T) {
	objs := []domain.Object{
		{
			UUID: "id-1",
			Properties: map[string]any{
				"tags":  []any{"go", "redis"},
				"score": nil,
			},
		},
		{
			UUID:       "id-2",
			Properties: map[string]any{"score": 4.5},
		},
	}

	data, err := serialize(objs, export.FormatCSV, export.Options{IncludeProperties: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "uuid,score,tags" {
		t.Errorf("header must be uuid first then sorted, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "go;redis") {
		t.Errorf("arrays must join with semicolons, got %q", lines[1])
	}
	// id-2 has no tags: the cell must be empty, not dropped.
	if lines[2] != "id-2,4.5," {
		t.Errorf("missing values must render as empty cells, got %q", lines[2])
	}
}

func TestSerializeCSV_Empty(t *testing.T) {
	data, err := serialize(nil, export.FormatCSV, export.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != "" {
		t.Errorf("empty export must serialize to an empty string, got %q", data)
	}
}

func TestSerializeJSON_Indented(t *testing.T) {
	objs := []domain.Object{{UUID: "id-1", Properties: map[string]any{"a": 1}}}

	data, err := serialize(objs, export.FormatJSON, export.Options{IncludeProperties: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(data, "\n  ") {
		t.Error("JSON export must be 2-space indented")
	}

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
}

func TestBuildRecord_MetadataAndVector(t *testing.T) {
	dist := 0.1
	obj := domain.Object{
		UUID:       "id-1",
		Properties: map[string]any{"title": "x"},
		Vector:     []float32{0.5, 0.25},
		Metadata: domain.Metadata{
			UUID:         "id-1",
			CreationTime: "2024-01-15T10:00:00Z",
			Distance:     &dist,
		},
	}

	rec := buildRecord(&obj, export.Options{
		IncludeProperties: true,
		IncludeMetadata:   true,
		IncludeVectors:    true,
	})

	if rec["createdAt"] != "2024-01-15T10:00:00Z" {
		t.Errorf("expected createdAt, got %v", rec["createdAt"])
	}
	if rec["distance"] != 0.1 {
		t.Errorf("expected distance, got %v", rec["distance"])
	}
	if _, ok := rec["vector"]; !ok {
		t.Error("expected vector in record")
	}
	if _, ok := rec["updatedAt"]; ok {
		t.Error("empty timestamps must be omitted")
	}

	bare := buildRecord(&obj, export.Options{})
	if len(bare) != 1 || bare["uuid"] != "id-1" {
		t.Errorf("with all options off only uuid remains, got %v", bare)
	}
}

func TestFlatten(t *testing.T) {
	rec := map[string]any{
		"uuid": "id-1",
		"author": map[string]any{
			"name":    "Ada",
			"profile": map[string]any{"bio": "..."},
		},
		"tags": []any{"a", "b"},
	}

	flat := flatten(rec)
	if flat["author.name"] != "Ada" {
		t.Errorf("expected author.name, got %v", flat)
	}
	if flat["author.profile.bio"] != "..." {
		t.Errorf("expected author.profile.bio, got %v", flat)
	}
	if _, ok := flat["author"]; ok {
		t.Error("nested map key must be replaced by dot paths")
	}
	if _, ok := flat["tags"].([]any); !ok {
		t.Error("arrays must stay intact")
	}
}
