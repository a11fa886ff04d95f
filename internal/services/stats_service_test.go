package services

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"treeline/internal/models"
)

func TestReshapeStatusCountsDefaults(t *testing.T) {
	rows := []statusCountRow{
		{
			ID: "p1",
			Counts: []statusCountEntry{
				{Status: "completed", Count: 3, Archived: false},
				{Status: "queued", Count: 1, Archived: true},
			},
		},
	}

	reshaped := reshapeStatusCounts(rows)
	active := reshaped["p1"][string(models.VisibilityActive)]
	if active == nil {
		t.Fatal("active section missing")
	}
	if active["completed"] != 3 {
		t.Errorf("active completed = %d, want 3", active["completed"])
	}
	// Every known status must be present, zero when no leaves had it.
	if count, ok := active["failed"]; !ok || count != 0 {
		t.Errorf("active failed = %d (present=%v), want explicit 0", count, ok)
	}
	if len(active) != len(models.TaskStatuses) {
		t.Errorf("active section has %d statuses, want %d", len(active), len(models.TaskStatuses))
	}

	archived := reshaped["p1"][string(models.VisibilityArchived)]
	if archived["queued"] != 1 {
		t.Errorf("archived queued = %d, want 1", archived["queued"])
	}
}

func TestSumStatusCounts(t *testing.T) {
	a := statusSections{
		"active": {"completed": 2, "failed": 1},
	}
	b := statusSections{
		"active":   {"completed": 3},
		"archived": {"queued": 5},
	}

	sum := sumStatusCounts(a, b)
	if sum["active"]["completed"] != 5 {
		t.Errorf("active completed = %d, want 5", sum["active"]["completed"])
	}
	if sum["active"]["failed"] != 1 {
		t.Errorf("active failed = %d, want 1", sum["active"]["failed"])
	}
	if sum["archived"]["queued"] != 5 {
		t.Errorf("archived queued = %d, want 5", sum["archived"]["queued"])
	}
}

func TestSumRuntime(t *testing.T) {
	sum := sumRuntime(runtimeSections{"active": 10, "archived": 2}, runtimeSections{"active": 5})
	if sum["active"] != 15 || sum["archived"] != 2 {
		t.Errorf("sumRuntime = %v, want active=15 archived=2", sum)
	}
}

// Rollup additivity: the aggregate of a parent equals its own data plus
// the data of every descendant, pointwise per section and status.
func TestAggregateProjectDataRollup(t *testing.T) {
	childProjects := map[string][]*models.Project{
		"parent": {
			{ID: "c1", Path: []string{"parent"}},
			{ID: "c2", Path: []string{"parent"}},
		},
	}
	data := map[string]statusSections{
		"parent": {"active": {"completed": 1}},
		"c1":     {"active": {"completed": 2, "failed": 1}},
		"c2":     {"archived": {"queued": 4}},
	}

	rolled := aggregateProjectData(sumStatusCounts, []string{"parent"}, childProjects, data)
	got := rolled["parent"]
	if got["active"]["completed"] != 3 {
		t.Errorf("active completed = %d, want 3", got["active"]["completed"])
	}
	if got["active"]["failed"] != 1 {
		t.Errorf("active failed = %d, want 1", got["active"]["failed"])
	}
	if got["archived"]["queued"] != 4 {
		t.Errorf("archived queued = %d, want 4", got["archived"]["queued"])
	}
}

func TestAggregateProjectDataSkipsProjectsWithoutData(t *testing.T) {
	rolled := aggregateProjectData(sumRuntime, []string{"empty"}, map[string][]*models.Project{}, map[string]runtimeSections{})
	if len(rolled) != 0 {
		t.Errorf("rollup of empty data = %v, want empty", rolled)
	}

	rolled = aggregateProjectData(sumRuntime, []string{"p", "empty"}, map[string][]*models.Project{}, map[string]runtimeSections{
		"p": {"active": 7},
	})
	if _, ok := rolled["empty"]; ok {
		t.Error("project without any data must not appear in rollup")
	}
	if rolled["p"]["active"] != 7 {
		t.Errorf("p active runtime = %d, want 7", rolled["p"]["active"])
	}
}

func TestReshapeRuntimeHonorsState(t *testing.T) {
	rows := []runtimeRow{{ID: "p1", Active: 12, Archived: 3}}

	both := reshapeRuntime(rows, "")
	if both["p1"]["active"] != 12 || both["p1"]["archived"] != 3 {
		t.Errorf("unfiltered reshape = %v", both["p1"])
	}

	onlyActive := reshapeRuntime(rows, models.VisibilityActive)
	if _, ok := onlyActive["p1"]["archived"]; ok {
		t.Error("archived section present despite active-only state")
	}
}

func TestBuildStatusCountPipelineShape(t *testing.T) {
	pipeline := buildStatusCountPipeline("acme", []string{"p1", "p2"})
	if len(pipeline) != 4 {
		t.Fatalf("pipeline has %d stages, want 4", len(pipeline))
	}

	match := pipeline[0][0]
	if match.Key != "$match" {
		t.Fatalf("first stage is %q, want $match", match.Key)
	}
	filter := match.Value.(bson.M)
	if !reflect.DeepEqual(filter["project"], bson.M{"$in": []string{"p1", "p2"}}) {
		t.Errorf("project filter = %v", filter["project"])
	}
	company := filter["company"].(bson.M)["$in"].(bson.A)
	if len(company) != 3 || company[2] != "acme" {
		t.Errorf("company constraint = %v, want [nil \"\" acme]", company)
	}

	if pipeline[1][0].Key != "$addFields" {
		t.Errorf("second stage is %q, want $addFields", pipeline[1][0].Key)
	}
	if pipeline[2][0].Key != "$group" || pipeline[3][0].Key != "$group" {
		t.Error("pipeline must end with the two-level group")
	}
}

func TestBuildRuntimePipelineShape(t *testing.T) {
	pipeline := buildRuntimePipeline("acme", []string{"p1"}, "")
	match := pipeline[0][0].Value.(bson.M)
	if !reflect.DeepEqual(match["type"], bson.M{"$in": models.RuntimeTaskTypes}) {
		t.Errorf("type filter = %v, want runtime task types", match["type"])
	}

	group := pipeline[2][0].Value.(bson.M)
	if _, ok := group["active"]; !ok {
		t.Error("group stage missing active runtime accumulator")
	}
	if _, ok := group["archived"]; !ok {
		t.Error("group stage missing archived runtime accumulator")
	}

	activeOnly := buildRuntimePipeline("acme", []string{"p1"}, models.VisibilityActive)
	group = activeOnly[2][0].Value.(bson.M)
	if _, ok := group["archived"]; ok {
		t.Error("archived accumulator present despite active-only state")
	}
}

func TestBuildOwnContentsPipelineShape(t *testing.T) {
	pipeline := buildOwnContentsPipeline("acme", []string{"p1"})
	if len(pipeline) != 3 {
		t.Fatalf("pipeline has %d stages, want 3", len(pipeline))
	}
	group := pipeline[2][0].Value.(bson.M)
	if group["_id"] != "$project" {
		t.Errorf("group key = %v, want $project", group["_id"])
	}
}

func TestBuildTaskParentsQuery(t *testing.T) {
	testCases := []struct {
		name           string
		scope          []string
		state          models.EntityVisibility
		wantProject    bool
		wantSystemTags bson.M
	}{
		{"company wide, both sections", nil, "", false, nil},
		{"scoped", []string{"p1", "p2"}, "", true, nil},
		{"archived only", []string{"p1"}, models.VisibilityArchived, true,
			bson.M{"$in": []string{models.ArchivedTag}}},
		{"active only", nil, models.VisibilityActive, false,
			bson.M{"$nin": []string{models.ArchivedTag}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			query := buildTaskParentsQuery("acme", tc.scope, tc.state)
			if query["company"] != "acme" {
				t.Errorf("company = %v, want acme", query["company"])
			}
			project, scoped := query["project"]
			if scoped != tc.wantProject {
				t.Fatalf("project filter present = %v, want %v", scoped, tc.wantProject)
			}
			if scoped && !reflect.DeepEqual(project, bson.M{"$in": tc.scope}) {
				t.Errorf("project filter = %v, want $in %v", project, tc.scope)
			}
			tags := query["system_tags"]
			if tc.wantSystemTags == nil {
				if tags != nil {
					t.Errorf("system_tags filter = %v, want none", tags)
				}
			} else if !reflect.DeepEqual(tags, tc.wantSystemTags) {
				t.Errorf("system_tags filter = %v, want %v", tags, tc.wantSystemTags)
			}
		})
	}
}

func TestToStrings(t *testing.T) {
	got := toStrings([]interface{}{"a", "", nil, 3, "b"})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("toStrings = %v, want %v", got, want)
	}
}
