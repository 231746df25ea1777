package fieldmap

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func buildSample() *Mapping {
	m := New()
	m.SetField("Id", "permanentid")
	info := m.SetGroup("Info")
	info.SetField("Title", "title")
	info.SetField("Url", "clickableuri")
	meta := m.SetGroup("Metadata")
	meta.SetField("Summary", "summary_text")
	return m
}

func TestFlatten_OrderAndPaths(t *testing.T) {
	got := buildSample().Flatten()

	want := []Pair{
		{"Id", "permanentid"},
		{"Info.Title", "title"},
		{"Info.Url", "clickableuri"},
		{"Metadata.Summary", "summary_text"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v, want %v", got, want)
	}
}

func TestLen(t *testing.T) {
	if got := buildSample().Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	if got := New().Len(); got != 0 {
		t.Errorf("empty Len() = %d, want 0", got)
	}
}

func TestApply(t *testing.T) {
	record := map[string]any{
		"Id": "vid-42",
		"Info": map[string]any{
			"Title": "Lecture 12",
			"Url":   "https://demo.hosted.panopto.com/v/42",
		},
		"Metadata": map[string]any{
			"Summary": "An overview.",
		},
		"Unmapped": "ignored",
	}

	got := buildSample().Apply(record)

	want := map[string]any{
		"permanentid":  "vid-42",
		"title":        "Lecture 12",
		"clickableuri": "https://demo.hosted.panopto.com/v/42",
		"summary_text": "An overview.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestApply_MissingSourceSkipped(t *testing.T) {
	record := map[string]any{"Id": "vid-1"}

	got := buildSample().Apply(record)

	if len(got) != 1 {
		t.Fatalf("Apply() = %v, want only permanentid", got)
	}
	if got["permanentid"] != "vid-1" {
		t.Errorf("permanentid = %v", got["permanentid"])
	}
}

func TestApply_ScalarWhereGroupExpected(t *testing.T) {
	record := map[string]any{"Info": "not a map"}

	got := buildSample().Apply(record)
	if len(got) != 0 {
		t.Errorf("Apply() = %v, want empty", got)
	}
}

func TestEqual(t *testing.T) {
	a, b := buildSample(), buildSample()
	if !a.Equal(b) {
		t.Error("identical mappings reported unequal")
	}

	b.SetField("Extra", "extra")
	if a.Equal(b) {
		t.Error("different mappings reported equal")
	}

	// Same pairs, different order.
	c := New()
	c.SetField("B", "b")
	c.SetField("A", "a")
	d := New()
	d.SetField("A", "a")
	d.SetField("B", "b")
	if c.Equal(d) {
		t.Error("reordered mappings reported equal")
	}
}

func TestMarshalYAML_RoundTrip(t *testing.T) {
	data, err := yaml.Marshal(buildSample())
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		t.Fatalf("expected mapping root, got kind %d", root.Kind)
	}

	// The first key stays first: order survives serialization.
	if root.Content[0].Value != "Id" || root.Content[1].Value != "permanentid" {
		t.Errorf("first entry = %s: %s, want Id: permanentid", root.Content[0].Value, root.Content[1].Value)
	}
}
