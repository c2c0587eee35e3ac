package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintTable(t *testing.T) {
	var out, errOut bytes.Buffer
	o := newOutputTo(false, &out, &errOut)

	o.Print(
		[]string{"ID", "STATUS"},
		[][]string{{"abc", "RUNNING"}, {"def", "COMPLETED"}},
		nil,
	)

	got := out.String()
	if !strings.Contains(got, "ID") || !strings.Contains(got, "COMPLETED") {
		t.Errorf("table output missing data:\n%s", got)
	}
}

func TestPrintEmptyGoesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	o := newOutputTo(false, &out, &errOut)

	o.Print([]string{"ID"}, nil, nil)

	if out.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "no results") {
		t.Errorf("stderr = %q, want 'no results' notice", errOut.String())
	}
}

func TestDetailsSkipsEmptyFields(t *testing.T) {
	var out, errOut bytes.Buffer
	o := newOutputTo(false, &out, &errOut)

	o.Details([][2]string{
		{"ID", "abc"},
		{"Error", ""},
	}, nil)

	got := out.String()
	if !strings.Contains(got, "ID:") {
		t.Errorf("details missing ID field:\n%s", got)
	}
	if strings.Contains(got, "Error") {
		t.Errorf("empty field should be skipped:\n%s", got)
	}
}

func TestJSONMode(t *testing.T) {
	var out, errOut bytes.Buffer
	o := newOutputTo(true, &out, &errOut)

	o.Print([]string{"ID"}, [][]string{{"abc"}}, map[string]string{"id": "abc"})

	if !strings.Contains(out.String(), `"id": "abc"`) {
		t.Errorf("json output = %q", out.String())
	}
}
