package cli

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Serve(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	cmd, err := parse([]string{"serve", "--addr=:9000", "--data-dir="}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Name != CommandServe {
		t.Errorf("name: got %q", cmd.Name)
	}
	if cmd.Config.Addr != ":9000" || cmd.Config.DataDir != "" {
		t.Errorf("config: got %+v", cmd.Config)
	}
	if cmd.Config.APIKey != "k" {
		t.Errorf("api key: got %q", cmd.Config.APIKey)
	}
}

func TestParse_Analyze(t *testing.T) {
	cmd, err := parse([]string{"analyze", "--in=photo.jpg", "--x=200", "--y=100", "--width=400",
		"--save", "--client=ACME", "--card=out.png"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	o := cmd.Analyze
	if o.InPath != "photo.jpg" || o.X != 200 || o.Y != 100 || !o.HasPoint {
		t.Errorf("options: got %+v", o)
	}
	if !o.Save || o.ClientName != "ACME" || o.CardPath != "out.png" {
		t.Errorf("options: got %+v", o)
	}
	if cmd.Config.ContainerWidth != 400 {
		t.Errorf("width: got %d", cmd.Config.ContainerWidth)
	}
}

func TestParse_AnalyzeWholeImage(t *testing.T) {
	cmd, err := parse([]string{"analyze", "--in=photo.jpg"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Analyze.HasPoint {
		t.Error("no point given, HasPoint should be false")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "command is required"},
		{"unknown command", []string{"paint"}, "unknown command"},
		{"missing in", []string{"analyze"}, "--in is required"},
		{"negative point", []string{"analyze", "--in=a.jpg", "--x=-1", "--y=3"}, "must be >= 0"},
		{"zero width", []string{"analyze", "--in=a.jpg", "--width=0"}, "--width"},
		{"card not png", []string{"analyze", "--in=a.jpg", "--card=out.jpg"}, "--card must be a .png"},
		{"magnifier without point", []string{"analyze", "--in=a.jpg", "--magnifier=m.png"}, "sample point"},
		{"client without save", []string{"analyze", "--in=a.jpg", "--client=x"}, "--client requires --save"},
		{"bad log level", []string{"serve", "--log-level=loud"}, `config: invalid log level "loud"`},
		{"extra args", []string{"serve", "now"}, "unexpected arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.args, io.Discard)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_Help(t *testing.T) {
	if _, err := parse([]string{"help"}, io.Discard); !errors.Is(err, ErrHelp) {
		t.Errorf("got %v", err)
	}
	if _, err := parse([]string{"serve", "-h"}, io.Discard); !errors.Is(err, ErrHelp) {
		t.Errorf("got %v", err)
	}
}

func TestParse_ConfigFileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colormix.json")
	body := `{"addr": ":7000", "language": "English", "container_width": 500}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd, err := parse([]string{"serve", "--config=" + path, "--width=600"}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c := cmd.Config
	if c.Addr != ":7000" || c.Language != "English" {
		t.Errorf("file values lost: %+v", c)
	}
	if c.ContainerWidth != 600 {
		t.Errorf("flag should override file: width=%d", c.ContainerWidth)
	}
}

func TestParse_WriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	cmd, err := parse([]string{"analyze", "--write-config=" + path, "--language=English", "--data-dir="}, io.Discard)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.WriteConfig != path {
		t.Fatalf("write-config: got %q", cmd.WriteConfig)
	}
	if err := cmd.Config.Save(cmd.WriteConfig); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := parse([]string{"serve", "--config=" + path}, io.Discard)
	if err != nil {
		t.Fatalf("parse saved config: %v", err)
	}
	if again.Config.Language != "English" || again.Config.DataDir != "" {
		t.Errorf("round trip lost values: %+v", again.Config)
	}
}
