package validate

import "testing"

func TestConversationID(t *testing.T) {
	if _, err := ConversationID("abc_123-XYZ"); err != nil {
		t.Errorf("expected valid id to pass, got %v", err)
	}
	if _, err := ConversationID(""); err == nil {
		t.Error("expected empty id to fail")
	}
	if _, err := ConversationID("has a space"); err == nil {
		t.Error("expected id with space to fail")
	}
}

func TestPathSelection(t *testing.T) {
	for _, v := range []string{"longest", "first", "last", ""} {
		if _, err := PathSelection(v); err != nil {
			t.Errorf("expected %q to pass, got %v", v, err)
		}
	}
	if _, err := PathSelection("latest"); err == nil {
		t.Error("expected unknown selection to fail")
	}
}

func TestExportFormat(t *testing.T) {
	if _, err := ExportFormat("markdown"); err != nil {
		t.Errorf("expected markdown to pass, got %v", err)
	}
	if _, err := ExportFormat(""); err == nil {
		t.Error("expected empty format to fail")
	}
	if _, err := ExportFormat("not valid!"); err == nil {
		t.Error("expected format with invalid characters to fail")
	}
}

func TestBoolean(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on"} {
		if b, err := Boolean("flag", v); err != nil || !b {
			t.Errorf("expected %q to be true, got %v, %v", v, b, err)
		}
	}
	for _, v := range []string{"false", "0", "no", "off"} {
		if b, err := Boolean("flag", v); err != nil || b {
			t.Errorf("expected %q to be false, got %v, %v", v, b, err)
		}
	}
	if _, err := Boolean("flag", "maybe"); err == nil {
		t.Error("expected unrecognized boolean string to fail")
	}
}

func TestInteger(t *testing.T) {
	if n, err := Integer("limit", "10", 1, 100); err != nil || n != 10 {
		t.Errorf("expected 10, got %v, %v", n, err)
	}
	if _, err := Integer("limit", "abc", 1, 100); err == nil {
		t.Error("expected non-numeric input to fail")
	}
	if _, err := Integer("limit", "200", 1, 100); err == nil {
		t.Error("expected out-of-range input to fail")
	}
}

func TestFilePath(t *testing.T) {
	resolved, err := FilePath(".", FileConstraints{AllowRelative: true, AllowDir: true})
	if err != nil {
		t.Fatalf("expected relative dir to resolve, got %v", err)
	}
	if resolved == "" {
		t.Error("expected a non-empty resolved path")
	}
	if _, err := FilePath("", FileConstraints{AllowRelative: true}); err == nil {
		t.Error("expected empty path to fail")
	}
}
