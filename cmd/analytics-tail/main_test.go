package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gfbeer/venue-finder/internal/analytics"
)

func TestPrintEvent(t *testing.T) {
	e := analytics.NewEvent("search_submitted", analytics.CategorySearch, "proximity").WithCount(12)
	payload, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printEvent(&buf, payload); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, want := range []string{"search", "search_submitted proximity", "(12)"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}

	if err := printEvent(&buf, []byte("not json")); err == nil {
		t.Error("garbage payload accepted")
	}
}
