package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/harrisonrobin/hubsync/pkg/engine"
	"github.com/harrisonrobin/hubsync/pkg/model"
)

func TestResolveTask(t *testing.T) {
	tasks := []model.Task{
		{ID: "id-1", TaskID: "AT-1", Station: "North"},
		{ID: "id-2", TaskID: "AT-1", Station: "South"},
		{ID: "id-3", TaskID: "AT-3", Station: "North"},
	}
	tests := []struct {
		arg     string
		station model.Station
		want    string
		wantErr bool
	}{
		{"id-2", "", "id-2", false},
		{"AT-3", "", "id-3", false},
		{"AT-1", "South", "id-2", false},
		{"AT-1", "", "", true},
		{"AT-9", "", "", true},
	}
	for _, tt := range tests {
		got, err := resolveTask(tasks, tt.arg, tt.station)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveTask(%q, %q) error = %v, wantErr %v", tt.arg, tt.station, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveTask(%q, %q) = %q, want %q", tt.arg, tt.station, got, tt.want)
		}
	}
}

func TestUnsyncedError(t *testing.T) {
	if err := unsyncedError([]model.Task{{}}); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := unsyncedError([]model.Task{{Unsynced: true}, {Unsynced: true}}); err == nil || !strings.Contains(err.Error(), "2 status") {
		t.Errorf("Expected unsynced count in error, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo,
	} {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderPacket(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", TaskID: "AT-1", Courier: model.ParseCourier("ANGGA [Ops1187093]"), Station: "North", PackageCount: 4, Status: model.Ongoing, Unsynced: true},
	}
	var buf bytes.Buffer
	renderPacket(&buf, engine.Group(tasks)[0])
	out := buf.String()
	for _, want := range []string{"ANGGA", "Ops1187093", "North", "4 pkgs", "AT-1", "unsynced"} {
		if !strings.Contains(out, want) {
			t.Errorf("Rendered packet missing %q:\n%s", want, out)
		}
	}
}
