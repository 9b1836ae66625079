// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func allIds() []Id {
	return []Id{
		ModuleNotFoundId,
		NoRootModulesId,
		DuplicateModuleId,
		PackageConflictId,
		InvalidDescriptorId,
		InvalidArchiveId,
		MissingReleaseAttributeId,
		DanglingLinkId,
		DestinationConflictId,
		OutputExistsId,
		InvalidOptionsId,
		ConfigLoadFailedId,
		PermissionDeniedId,
	}
}

func TestId_Constants(t *testing.T) {
	seen := make(map[Id]bool)
	for _, id := range allIds() {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true
	}

	if ModuleNotFoundId != 1 {
		t.Errorf("ModuleNotFoundId = %d, want 1", ModuleNotFoundId)
	}
}

func TestGet(t *testing.T) {
	for _, id := range allIds() {
		issue := Get(id)
		if issue == nil {
			t.Fatalf("Get(%d) returned nil", id)
		}
		if issue.Id() != id {
			t.Errorf("Get(%d).Id() = %d", id, issue.Id())
		}
	}

	if Get(Id(999)) != nil {
		t.Error("Get(999) should return nil")
	}
}

func TestValues(t *testing.T) {
	if got, want := len(Values()), len(allIds()); got != want {
		t.Errorf("len(Values()) = %d, want %d", got, want)
	}
}

func TestAllIssuesHaveContent(t *testing.T) {
	for _, issue := range Values() {
		msg := strings.TrimSpace(string(issue.MarkdownMsg()))
		if !strings.HasPrefix(msg, "# ") {
			t.Errorf("issue %d should start with a level-1 heading", issue.Id())
		}
	}
}

func TestIssue_MarkdownMsg(t *testing.T) {
	msg := string(Get(MissingReleaseAttributeId).MarkdownMsg())
	if !strings.Contains(msg, "os_name") {
		t.Error("release attribute help should show how to declare os_name")
	}
}

func TestIssue_Render(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return "rendered:" + in, nil
	}

	rendered, err := Get(ModuleNotFoundId).Render("")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(rendered, "modlink modules") {
		t.Error("rendered output should contain the issue content")
	}
	if strings.Contains(rendered, "See also") {
		t.Error("issue without links should not render a See also section")
	}
}

func TestIssue_Render_WithLinks(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}

	testIssue := &Issue{
		id:       ModuleNotFoundId,
		mdMsg:    "# Test",
		docLinks: []HttpLink{"https://example.com/docs"},
		extLinks: []HttpLink{"https://example.com/ext"},
	}

	rendered, err := testIssue.Render("")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"See also", "https://example.com/docs", "https://example.com/ext"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered output should contain %q", want)
		}
	}

	links := testIssue.DocLinks()
	links[0] = "changed"
	if testIssue.DocLinks()[0] != "https://example.com/docs" {
		t.Error("DocLinks() should return a copy")
	}
}
