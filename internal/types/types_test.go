package types

import (
	"encoding/json"
	"testing"
)

func TestSeverityLevel(t *testing.T) {
	tests := []struct {
		s     Severity
		level int
	}{
		{SeverityLow, 0},
		{SeverityMedium, 1},
		{SeverityHigh, 2},
		{SeverityCritical, 3},
		{Severity("INVALID"), -1},
	}

	for _, tt := range tests {
		if got := tt.s.Level(); got != tt.level {
			t.Errorf("%s.Level() = %d, want %d", tt.s, got, tt.level)
		}
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityHigh.AtLeast(SeverityMedium) {
		t.Error("high should be at least medium")
	}
	if SeverityLow.AtLeast(SeverityHigh) {
		t.Error("low should not be at least high")
	}
	if !SeverityCritical.AtLeast(SeverityCritical) {
		t.Error("critical should be at least critical")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"low", true},
		{"medium", true},
		{"high", true},
		{"critical", true},
		{"HIGH", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := ParseSeverity(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseSeverity(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"chat", true},
		{"search", true},
		{"shopping", true},
		{"website", true},
		{"presentation", false},
		{"", false},
	}

	for _, tt := range tests {
		_, ok := ParseMode(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseMode(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
	}
}

func TestToolResultContent(t *testing.T) {
	ok := ToolResult{ID: "call_1", Success: true, Payload: map[string]string{"answer": "42"}}
	var got map[string]any
	if err := json.Unmarshal([]byte(ok.Content()), &got); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if got["success"] != true {
		t.Errorf("expected success=true, got %v", got["success"])
	}
	if _, has := got["error"]; has {
		t.Error("successful result should not carry an error field")
	}

	failed := ToolResult{ID: "call_2", Success: false, Error: "no user context"}
	got = nil
	if err := json.Unmarshal([]byte(failed.Content()), &got); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if got["error"] != "no user context" {
		t.Errorf("expected error text, got %v", got["error"])
	}
}
