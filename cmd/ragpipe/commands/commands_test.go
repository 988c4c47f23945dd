package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/54b3r/ragpipe-go/internal/retrieval"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	want := []string{"serve", "ingest", "query", "delete", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  retrieval.Event
		asJSON bool
		want   string
	}{
		{
			name:  "stage",
			event: retrieval.Event{Status: retrieval.StatusQueried, Message: "retrieved 2 passages"},
			want:  "[queried] retrieved 2 passages\n",
		},
		{
			name:  "reranked hides context",
			event: retrieval.Event{Status: retrieval.StatusReranked, Message: "[1] a"},
			want:  "[reranked]\n",
		},
		{
			name:  "done with context",
			event: retrieval.Event{Status: retrieval.StatusDone, Message: "processing complete", Context: "[1] a"},
			want:  "[done] processing complete\n\n[1] a\n",
		},
		{
			name:  "done without context",
			event: retrieval.Event{Status: retrieval.StatusDone, Message: "processing complete"},
			want:  "[done] processing complete\n",
		},
		{
			name:   "json",
			event:  retrieval.Event{Status: retrieval.StatusStart, Message: "q"},
			asJSON: true,
			want:   `{"status":"start","message":"q"}` + "\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := printEvent(&buf, tc.event, tc.asJSON); err != nil {
				t.Fatalf("printEvent: %v", err)
			}
			if got := buf.String(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	if !strings.HasPrefix(buf.String(), "ragpipe dev") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}
