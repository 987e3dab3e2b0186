package domain

import "testing"

func TestCatalog_RegisterAndLookup(t *testing.T) {
	c := NewCatalog(nil)
	c.Register("MyEmailTool", Email)

	got, ok := c.GetDomainForTool("myemailtool")
	if !ok || got != Email {
		t.Fatalf("expected email domain, got %v ok=%v", got, ok)
	}

	tools := c.GetToolsForDomain(Email)
	found := false
	for _, tool := range tools {
		if tool == "myemailtool" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected registered tool in domain listing, got %v", tools)
	}
}

func TestCatalog_UnknownToolDefaultsGeneral(t *testing.T) {
	c := NewCatalog(nil)
	d, ok := c.GetDomainForTool("does-not-exist")
	if ok {
		t.Fatalf("expected ok=false for unknown tool")
	}
	if d != General {
		t.Fatalf("expected General for unknown tool, got %v", d)
	}
}

func TestCatalog_BuildFromAvailableTools(t *testing.T) {
	c := NewCatalog(nil)
	c.Register("search_notion", Notion)

	mapping := c.BuildFromAvailableTools([]string{"search_notion", "mystery_tool"})
	if mapping["search_notion"] != Notion {
		t.Fatalf("expected notion, got %v", mapping["search_notion"])
	}
	if mapping["mystery_tool"] != General {
		t.Fatalf("expected general fallback, got %v", mapping["mystery_tool"])
	}
}

func TestNormalizeToolName_Idempotent(t *testing.T) {
	x := "  Email_Tool  "
	once := NormalizeToolName(x)
	twice := NormalizeToolName(once)
	if once != twice {
		t.Fatalf("normalization not idempotent: %q vs %q", once, twice)
	}
}

func TestCatalog_CanonicalToolForDomain(t *testing.T) {
	c := NewCatalog(nil)
	tool, ok := c.CanonicalToolForDomain(Task)
	if !ok || tool != "tasks" {
		t.Fatalf("expected canonical tasks tool, got %q ok=%v", tool, ok)
	}
}
