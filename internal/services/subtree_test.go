package services

import (
	"errors"
	"reflect"
	"testing"

	"treeline/internal/apierrors"
	"treeline/internal/models"
)

func projectAtDepth(id string, depth int) *models.Project {
	p := &models.Project{ID: id}
	for i := 0; i < depth-1; i++ {
		p.Path = append(p.Path, "ancestor")
	}
	return p
}

func TestValidateProjectsDepth(t *testing.T) {
	testCases := []struct {
		name           string
		depths         []int
		oldParentDepth int
		newParentDepth int
		maxDepth       int
		wantErr        bool
	}{
		{"within bound", []int{2, 3}, 1, 1, 10, false},
		{"moving deeper stays legal", []int{2}, 1, 8, 10, false},
		{"moving deeper exceeds", []int{3}, 1, 9, 10, true},
		{"deepest descendant decides", []int{2, 3, 4}, 1, 8, 10, true},
		{"moving shallower always fits", []int{10}, 9, 1, 10, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var projects []*models.Project
			for i, d := range tc.depths {
				projects = append(projects, projectAtDepth(string(rune('a'+i)), d))
			}
			err := validateProjectsDepth(projects, tc.oldParentDepth, tc.newParentDepth, tc.maxDepth)
			if tc.wantErr && !errors.Is(err, apierrors.ErrDepthExceeded) {
				t.Fatalf("got %v, want ErrDepthExceeded", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// Moving a depth-3 project under another depth-3 location must be rejected
// with max depth 3: the moved node itself would land at depth 4.
func TestValidateProjectsDepthMoveScenario(t *testing.T) {
	project := projectAtDepth("abc", 3) // "a/b/c"
	err := validateProjectsDepth([]*models.Project{project}, len(project.Path), 3, 3)

	var depthErr *apierrors.DepthExceededError
	if !errors.As(err, &depthErr) {
		t.Fatalf("got %v, want DepthExceededError", err)
	}
	if depthErr.MaxDepth != 3 {
		t.Errorf("error carries max depth %d, want 3", depthErr.MaxDepth)
	}
}

func TestChildPathUnder(t *testing.T) {
	testCases := []struct {
		name        string
		newRootPath []string
		childPath   []string
		oldRootLen  int
		want        []string
	}{
		{
			name:        "move under deeper parent",
			newRootPath: []string{"x", "y"},
			childPath:   []string{"a", "p", "q"},
			oldRootLen:  1, // root's old path was ["a"]
			want:        []string{"x", "y", "p", "q"},
		},
		{
			name:        "move to tree root",
			newRootPath: nil,
			childPath:   []string{"a", "b", "p"},
			oldRootLen:  2,
			want:        []string{"p"},
		},
		{
			name:        "direct child keeps only the moved node",
			newRootPath: []string{"d"},
			childPath:   []string{"s", "p"},
			oldRootLen:  1,
			want:        []string{"d", "p"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := childPathUnder(tc.newRootPath, tc.childPath, tc.oldRootLen)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("childPathUnder() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChildNameUnder(t *testing.T) {
	testCases := []struct {
		name        string
		newRootName string
		oldRootName string
		childName   string
		want        string
	}{
		{"rename leaf segment", "a/b/new", "a/b/old", "a/b/old/sub", "a/b/new/sub"},
		{"move to new location", "x/y/c", "a/c", "a/c/deep/leaf", "x/y/c/deep/leaf"},
		{"move to root", "c", "a/b/c", "a/b/c/sub", "c/sub"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := childNameUnder(tc.newRootName, tc.oldRootName, tc.childName); got != tc.want {
				t.Errorf("childNameUnder() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSubtreePerChild(t *testing.T) {
	childA := &models.Project{ID: "a", Parent: "src", Path: []string{"src"}, Name: "src/a"}
	childB := &models.Project{ID: "b", Parent: "src", Path: []string{"src"}, Name: "src/b"}
	a1 := &models.Project{ID: "a1", Parent: "a", Path: []string{"src", "a"}, Name: "src/a/1"}
	a1x := &models.Project{ID: "a1x", Parent: "a1", Path: []string{"src", "a", "a1"}, Name: "src/a/1/x"}
	b1 := &models.Project{ID: "b1", Parent: "b", Path: []string{"src", "b"}, Name: "src/b/1"}

	immediate := []*models.Project{childA, childB}
	descendants := []*models.Project{childA, childB, a1, a1x, b1}

	subtrees := subtreePerChild(immediate, descendants)

	wantIDs := map[string][]string{
		"a": {"a1", "a1x"},
		"b": {"b1"},
	}
	for childID, want := range wantIDs {
		var got []string
		for _, d := range subtrees[childID] {
			got = append(got, d.ID)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("subtree of %q = %v, want %v", childID, got, want)
		}
	}

	// Every deeper descendant lands in exactly one child's subtree; the
	// immediate children themselves belong to none.
	assigned := map[string]int{}
	for _, subtree := range subtrees {
		for _, d := range subtree {
			assigned[d.ID]++
		}
	}
	for _, d := range []*models.Project{a1, a1x, b1} {
		if assigned[d.ID] != 1 {
			t.Errorf("descendant %q assigned %d times, want 1", d.ID, assigned[d.ID])
		}
	}
	for _, child := range immediate {
		if assigned[child.ID] != 0 {
			t.Errorf("immediate child %q assigned to a subtree", child.ID)
		}
	}
}

// After a merge repositions an immediate child under the destination,
// every descendant in that child's subtree must carry the destination's
// path prefix followed by the child id.
func TestSubtreePerChildRewritesUnderDestination(t *testing.T) {
	destination := &models.Project{ID: "dest", Path: []string{"top"}, Name: "top/dest"}
	childA := &models.Project{ID: "a", Parent: "src", Path: []string{"src"}, Name: "src/a"}
	a1 := &models.Project{ID: "a1", Parent: "a", Path: []string{"src", "a"}, Name: "src/a/1"}
	a1x := &models.Project{ID: "a1x", Parent: "a1", Path: []string{"src", "a", "a1"}, Name: "src/a/1/x"}

	subtrees := subtreePerChild([]*models.Project{childA}, []*models.Project{childA, a1, a1x})

	newRootPath := append(append([]string{}, destination.Path...), destination.ID)
	wantPrefix := []string{"top", "dest", "a"}
	for _, d := range subtrees["a"] {
		rewritten := childPathUnder(newRootPath, d.Path, len(childA.Path))
		if len(rewritten) < len(wantPrefix) || !reflect.DeepEqual(rewritten[:len(wantPrefix)], wantPrefix) {
			t.Errorf("descendant %q path rewritten to %v, want prefix %v", d.ID, rewritten, wantPrefix)
		}
	}
}

func TestIDSetKeepsOrderAndDeduplicates(t *testing.T) {
	set := newIDSet()
	set.add("a", "b")
	set.add("a", "c", "")
	got := set.values()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values() = %v, want %v", got, want)
	}
}

// Affected-id sets serialize as [] when nothing changed, never null.
func TestIDSetEmptyValuesNotNil(t *testing.T) {
	got := newIDSet().values()
	if got == nil {
		t.Fatal("values() of empty set is nil, want empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("values() of empty set = %v, want empty", got)
	}
}
