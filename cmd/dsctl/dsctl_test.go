package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"go.mercari.io/dataset"
	"go.mercari.io/dataset/internal/testutils"
)

func setup(t *testing.T) (context.Context, *dataset.Dataset) {
	t.Helper()

	ds, err := dataset.NewWithService(testutils.NewFakeService("test-project"))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		e := ds.Entity("Task", name, func(e *dataset.Entity) {
			e.Set("title", dataset.StringValue("task "+name))
		})
		if _, err := ds.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	return ctx, ds
}

func TestRun_Lookup(t *testing.T) {
	ctx, ds := setup(t)

	var buf bytes.Buffer
	if err := run(ctx, ds, &buf, "lookup", []string{"Task", "a", "10"}); err != nil {
		t.Fatal(err)
	}

	expected := heredoc.Doc(`
		/Task,a {title=task a}
		/Task,10 missing
	`)
	if v := buf.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestRun_Query(t *testing.T) {
	ctx, ds := setup(t)

	var buf bytes.Buffer
	if err := run(ctx, ds, &buf, "query", []string{"Task", "1"}); err != nil {
		t.Fatal(err)
	}

	expected := heredoc.Doc(`
		/Task,a {title=task a}
		cursor: MQ
	`)
	if v := buf.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}
}

func TestRun_AllocateAndDelete(t *testing.T) {
	ctx, ds := setup(t)

	var buf bytes.Buffer
	if err := run(ctx, ds, &buf, "allocate", []string{"Task", "2"}); err != nil {
		t.Fatal(err)
	}
	if err := run(ctx, ds, &buf, "delete", []string{"Task", "a", "b"}); err != nil {
		t.Fatal(err)
	}

	expected := heredoc.Doc(`
		/Task,1000
		/Task,1001
		deleted 2
	`)
	if v := buf.String(); v != expected {
		t.Errorf("unexpected: %v", v)
	}

	res, err := ds.Run(ctx, ds.Query("Task"))
	if err != nil {
		t.Fatal(err)
	}
	if v := len(res.Entities); v != 0 {
		t.Errorf("unexpected: %v", v)
	}
}

func TestRun_Errors(t *testing.T) {
	ctx, ds := setup(t)

	cases := []struct {
		command string
		args    []string
	}{
		{"unknown", []string{"Task"}},
		{"lookup", []string{"Task"}},
		{"query", []string{"Task", "ten"}},
		{"allocate", []string{"Task"}},
		{"allocate", []string{"Task", "x"}},
	}
	for idx, c := range cases {
		var buf bytes.Buffer
		if err := run(ctx, ds, &buf, c.command, c.args); err == nil {
			t.Errorf("#%d unexpected: nil error", idx)
		}
	}
}

func TestRealMain_ExitCodes(t *testing.T) {
	cases := []struct {
		argv     []string
		expected int
		stderr   string
	}{
		{[]string{}, 2, "usage: dsctl"},
		{[]string{"lookup"}, 2, "usage: dsctl"},
		{[]string{"-bogus", "lookup", "Task"}, 2, "flag provided but not defined"},
		{[]string{"unknown", "Task"}, 2, `dsctl: unknown command "unknown"`},
		{[]string{"-project", "p", "-emulator", "127.0.0.1:1", "lookup", "Task"}, 1, "dsctl: KIND and at least one ID_OR_NAME are required"},
		{[]string{"-project", "p", "-emulator", "127.0.0.1:1", "allocate", "Task", "x"}, 1, `dsctl: invalid COUNT "x"`},
	}
	for idx, c := range cases {
		var stdout, stderr bytes.Buffer
		if v := realMain(c.argv, &stdout, &stderr); v != c.expected {
			t.Errorf("#%d unexpected: %v", idx, v)
		}
		if v := stderr.String(); !strings.Contains(v, c.stderr) {
			t.Errorf("#%d unexpected: %v", idx, v)
		}
		if v := stdout.Len(); v != 0 {
			t.Errorf("#%d unexpected: %v", idx, v)
		}
	}
}
