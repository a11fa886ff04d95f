package services

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"treeline/internal/apierrors"
	"treeline/internal/database"
	"treeline/internal/logging"
	"treeline/internal/models"
)

// StatsService computes aggregate statistics over project subtrees using
// grouping queries against the leaf collections.
type StatsService struct {
	mongoDB *database.MongoDB
}

// NewStatsService creates a new statistics service
func NewStatsService(mongoDB *database.MongoDB) *StatsService {
	return &StatsService{mongoDB: mongoDB}
}

func (s *StatsService) projects() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionProjects)
}

// SectionStats is one visibility section (active or archived) of a
// project's aggregated statistics.
type SectionStats struct {
	TotalRuntime int64          `json:"total_runtime"`
	StatusCount  map[string]int `json:"status_count"`
}

// OwnContents is the unrolled per-project leaf count: tasks and models
// owned directly by the project, subtrees excluded.
type OwnContents struct {
	OwnTasks  int64 `json:"own_tasks"`
	OwnModels int64 `json:"own_models"`
}

// section → status → count
type statusSections map[string]map[string]int

// section → total runtime seconds
type runtimeSections map[string]int64

// companyOrNone scopes a leaf query to one tenant plus globally shared
// (no-tenant) documents.
func companyOrNone(company string) bson.M {
	return bson.M{"$in": bson.A{nil, "", company}}
}

// archivedLeafCond is the aggregation expression deciding whether a leaf
// is archived; system_tags must be normalized to an array first.
var archivedLeafCond = bson.M{"$in": bson.A{models.ArchivedTag, "$system_tags"}}

// ensureValidFieldsStage normalizes system_tags to an array (required by
// the subsequent $in) and defaults a missing status to "unknown".
func ensureValidFieldsStage() bson.D {
	return bson.D{{Key: "$addFields", Value: bson.M{
		"system_tags": bson.M{"$cond": bson.M{
			"if":   bson.M{"$ne": bson.A{bson.M{"$type": "$system_tags"}, "array"}},
			"then": bson.A{},
			"else": "$system_tags",
		}},
		"status": bson.M{"$ifNull": bson.A{"$status", models.TaskStatusUnknown}},
	}}}
}

// buildStatusCountPipeline counts tasks per (project, status, archived)
// and regroups the triples into one counts list per project.
func buildStatusCountPipeline(company string, scope []string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"company": companyOrNone(company),
			"project": bson.M{"$in": scope},
		}}},
		ensureValidFieldsStage(),
		bson.D{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"project":  "$project",
				"status":   "$status",
				"archived": archivedLeafCond,
			},
			"count": bson.M{"$sum": 1},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id": "$_id.project",
			"counts": bson.M{"$push": bson.M{
				"status":   "$_id.status",
				"count":    "$count",
				"archived": "$_id.archived",
			}},
		}}},
	}
}

// runtimeSubquery sums floor((completed-started)/1000) over tasks matching
// the additional condition; tasks without both timestamps or with a
// non-positive interval contribute 0.
func runtimeSubquery(additionalCond interface{}) bson.M {
	return bson.M{"$sum": bson.M{"$cond": bson.M{
		"if": bson.M{"$and": bson.A{
			"$started",
			"$completed",
			bson.M{"$gt": bson.A{"$completed", "$started"}},
			additionalCond,
		}},
		"then": bson.M{"$floor": bson.M{"$divide": bson.A{
			bson.M{"$subtract": bson.A{"$completed", "$started"}},
			1000.0,
		}}},
		"else": 0,
	}}}
}

// buildRuntimePipeline computes per-project total runtime, split into
// active/archived sections, over the task types runtime is meaningful for.
func buildRuntimePipeline(company string, scope []string, state models.EntityVisibility) mongo.Pipeline {
	groupStep := bson.M{"_id": "$project"}
	for _, section := range state.Sections() {
		switch section {
		case models.VisibilityActive:
			groupStep[string(section)] = runtimeSubquery(bson.M{"$not": archivedLeafCond})
		case models.VisibilityArchived:
			groupStep[string(section)] = runtimeSubquery(archivedLeafCond)
		}
	}

	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"company": companyOrNone(company),
			"type":    bson.M{"$in": models.RuntimeTaskTypes},
			"project": bson.M{"$in": scope},
		}}},
		ensureValidFieldsStage(),
		bson.D{{Key: "$group", Value: groupStep}},
	}
}

type statusCountEntry struct {
	Status   string `bson:"status"`
	Count    int    `bson:"count"`
	Archived bool   `bson:"archived"`
}

type statusCountRow struct {
	ID     string             `bson:"_id"`
	Counts []statusCountEntry `bson:"counts"`
}

type runtimeRow struct {
	ID       string  `bson:"_id"`
	Active   float64 `bson:"active"`
	Archived float64 `bson:"archived"`
}

// defaultStatusCounts returns a zero count for every known task status.
func defaultStatusCounts() map[string]int {
	counts := make(map[string]int, len(models.TaskStatuses))
	for _, status := range models.TaskStatuses {
		counts[status] = 0
	}
	return counts
}

// reshapeStatusCounts turns aggregation rows into per-project section
// maps, filling in a zero for every status the data did not mention.
func reshapeStatusCounts(rows []statusCountRow) map[string]statusSections {
	result := make(map[string]statusSections, len(rows))
	for _, row := range rows {
		sections := statusSections{}
		for _, entry := range row.Counts {
			section := string(models.VisibilityActive)
			if entry.Archived {
				section = string(models.VisibilityArchived)
			}
			if sections[section] == nil {
				sections[section] = defaultStatusCounts()
			}
			sections[section][entry.Status] = entry.Count
		}
		result[row.ID] = sections
	}
	return result
}

// reshapeRuntime turns aggregation rows into per-project section runtimes.
func reshapeRuntime(rows []runtimeRow, state models.EntityVisibility) map[string]runtimeSections {
	result := make(map[string]runtimeSections, len(rows))
	for _, row := range rows {
		sections := runtimeSections{}
		for _, section := range state.Sections() {
			switch section {
			case models.VisibilityActive:
				sections[string(section)] = int64(row.Active)
			case models.VisibilityArchived:
				sections[string(section)] = int64(row.Archived)
			}
		}
		result[row.ID] = sections
	}
	return result
}

// sumStatusCounts pointwise-sums two section maps.
func sumStatusCounts(a, b statusSections) statusSections {
	sum := statusSections{}
	for _, m := range []statusSections{a, b} {
		for section, counts := range m {
			if sum[section] == nil {
				sum[section] = map[string]int{}
			}
			for status, count := range counts {
				sum[section][status] += count
			}
		}
	}
	return sum
}

// sumRuntime pointwise-sums two runtime section maps.
func sumRuntime(a, b runtimeSections) runtimeSections {
	sum := runtimeSections{}
	for _, m := range []runtimeSections{a, b} {
		for section, seconds := range m {
			sum[section] += seconds
		}
	}
	return sum
}

// aggregateProjectData rolls data collected per project in scope up to the
// requested-ancestor level: for each requested id the data of the project
// itself and all its descendants is combined with sum.
func aggregateProjectData[T any](sum func(a, b T) T, projectIDs []string, childProjects map[string][]*models.Project, data map[string]T) map[string]T {
	aggregated := make(map[string]T, len(projectIDs))
	if len(data) == 0 {
		return aggregated
	}
	for _, pid := range projectIDs {
		relevant := map[string]bool{pid: true}
		for _, child := range childProjects[pid] {
			relevant[child.ID] = true
		}
		var acc T
		found := false
		for project, d := range data {
			if !relevant[project] {
				continue
			}
			if !found {
				acc = d
				found = true
			} else {
				acc = sum(acc, d)
			}
		}
		if found {
			aggregated[pid] = acc
		}
	}
	return aggregated
}

// GetProjectStats returns, for each requested project id, per-section task
// status counts and total runtime aggregated over the project's entire
// subtree, plus the sorted list of its immediate children.
func (s *StatsService) GetProjectStats(ctx context.Context, company string, projectIDs []string, state models.EntityVisibility) (map[string]map[string]SectionStats, map[string][]models.ProjectChild, error) {
	if len(projectIDs) == 0 {
		return map[string]map[string]SectionStats{}, map[string][]models.ProjectChild{}, nil
	}

	childProjects, err := getSubProjects(ctx, s.projects(), projectIDs, "name", "parent")
	if err != nil {
		return nil, nil, err
	}

	scopeSet := newIDSet()
	scopeSet.add(projectIDs...)
	for _, children := range childProjects {
		for _, child := range children {
			scopeSet.add(child.ID)
		}
	}
	scope := scopeSet.values()

	// The two grouping queries have no data dependency and run in
	// parallel.
	var statusRows []statusCountRow
	var runtimeRows []runtimeRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cursor, err := s.mongoDB.Collection(database.CollectionTasks).Aggregate(gctx, buildStatusCountPipeline(company, scope))
		if err != nil {
			return apierrors.StoreError("status count aggregation", err)
		}
		if err := cursor.All(gctx, &statusRows); err != nil {
			return apierrors.StoreError("decode status counts", err)
		}
		return nil
	})
	g.Go(func() error {
		cursor, err := s.mongoDB.Collection(database.CollectionTasks).Aggregate(gctx, buildRuntimePipeline(company, scope, state))
		if err != nil {
			return apierrors.StoreError("runtime aggregation", err)
		}
		if err := cursor.All(gctx, &runtimeRows); err != nil {
			return apierrors.StoreError("decode runtimes", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	statusCount := aggregateProjectData(sumStatusCounts, projectIDs, childProjects, reshapeStatusCounts(statusRows))
	runtime := aggregateProjectData(sumRuntime, projectIDs, childProjects, reshapeRuntime(runtimeRows, state))

	stats := make(map[string]map[string]SectionStats, len(projectIDs))
	for _, pid := range projectIDs {
		sections := make(map[string]SectionStats)
		for _, visibility := range state.Sections() {
			section := string(visibility)
			counts := statusCount[pid][section]
			if counts == nil {
				counts = defaultStatusCounts()
			}
			sections[section] = SectionStats{
				TotalRuntime: runtime[pid][section],
				StatusCount:  counts,
			}
		}
		stats[pid] = sections
	}

	children := make(map[string][]models.ProjectChild, len(projectIDs))
	for _, pid := range projectIDs {
		immediate := []models.ProjectChild{}
		for _, child := range childProjects[pid] {
			if child.Parent == pid {
				immediate = append(immediate, models.ProjectChild{ID: child.ID, Name: child.Name})
			}
		}
		sort.Slice(immediate, func(i, j int) bool { return immediate[i].Name < immediate[j].Name })
		children[pid] = immediate
	}

	return stats, children, nil
}

// buildOwnContentsPipeline counts leaves per project, requested projects
// only, no descendant expansion.
func buildOwnContentsPipeline(company string, projectIDs []string) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"company": companyOrNone(company),
			"project": bson.M{"$in": projectIDs},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"project": 1}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$project",
			"count": bson.M{"$sum": 1},
		}}},
	}
}

// CalcOwnContents returns the amount of tasks and models owned directly by
// each requested project. Separate aggregations per leaf collection keep
// memory bounded on large task sets.
func (s *StatsService) CalcOwnContents(ctx context.Context, company string, projectIDs []string) (map[string]OwnContents, error) {
	if len(projectIDs) == 0 {
		return map[string]OwnContents{}, nil
	}

	pipeline := buildOwnContentsPipeline(company, projectIDs)
	counts := make([]map[string]int64, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range []string{database.CollectionTasks, database.CollectionModels} {
		i, collection := i, collection
		g.Go(func() error {
			cursor, err := s.mongoDB.Collection(collection).Aggregate(gctx, pipeline)
			if err != nil {
				return apierrors.StoreError("own contents aggregation", err)
			}
			var rows []struct {
				ID    string `bson:"_id"`
				Count int64  `bson:"count"`
			}
			if err := cursor.All(gctx, &rows); err != nil {
				return apierrors.StoreError("decode own contents", err)
			}
			byProject := make(map[string]int64, len(rows))
			for _, row := range rows {
				byProject[row.ID] = row.Count
			}
			counts[i] = byProject
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]OwnContents, len(projectIDs))
	for _, pid := range projectIDs {
		result[pid] = OwnContents{
			OwnTasks:  counts[0][pid],
			OwnModels: counts[1][pid],
		}
	}
	return result, nil
}

// GetActiveUsers returns the ids of users that created projects, tasks or
// models in the given subtrees. With user ids given, only that subset is
// considered.
func (s *StatsService) GetActiveUsers(ctx context.Context, company string, projectIDs, userIDs []string) ([]string, error) {
	leafQuery := bson.M{"company": company}
	if len(userIDs) > 0 {
		leafQuery["user"] = bson.M{"$in": userIDs}
	}
	projectsQuery := bson.M{"company": company}
	if len(userIDs) > 0 {
		projectsQuery["user"] = bson.M{"$in": userIDs}
	}

	if len(projectIDs) > 0 {
		scope, err := idsWithChildren(ctx, s.projects(), projectIDs)
		if err != nil {
			return nil, err
		}
		leafQuery["project"] = bson.M{"$in": scope}
		projectsQuery["_id"] = bson.M{"$in": scope}
	}

	users := newIDSet()
	values, err := s.projects().Distinct(ctx, "user", projectsQuery)
	if err != nil {
		return nil, apierrors.StoreError("distinct project users", err)
	}
	users.add(toStrings(values)...)

	for _, collection := range []string{database.CollectionTasks, database.CollectionModels} {
		values, err := s.mongoDB.Collection(collection).Distinct(ctx, "user", leafQuery)
		if err != nil {
			return nil, apierrors.StoreError("distinct leaf users", err)
		}
		users.add(toStrings(values)...)
	}

	result := users.values()
	sort.Strings(result)
	logging.WithCompany(company).WithField("active_users", len(result)).Debug("resolved active users")
	return result, nil
}

// GetProjectsWithActiveUser returns the ids of projects where any of the
// users created leaves or projects, expanded to report at every ancestor
// level. With project ids given, the result is filtered back to them.
func (s *StatsService) GetProjectsWithActiveUser(ctx context.Context, company string, users, projectIDs []string, allowPublic bool) ([]string, error) {
	leafQuery := bson.M{"user": bson.M{"$in": users}}
	if allowPublic {
		leafQuery["company"] = companyOrNone(company)
	} else {
		leafQuery["company"] = company
	}
	userProjectsQuery := bson.M{"user": bson.M{"$in": users}}
	userProjectsQuery["company"] = leafQuery["company"]

	if len(projectIDs) > 0 {
		scope, err := idsWithChildren(ctx, s.projects(), projectIDs)
		if err != nil {
			return nil, err
		}
		leafQuery["project"] = bson.M{"$in": scope}
		userProjectsQuery["_id"] = bson.M{"$in": scope}
	}

	found := newIDSet()
	cursor, err := s.projects().Find(ctx, userProjectsQuery)
	if err != nil {
		return nil, apierrors.StoreError("find user projects", err)
	}
	var ownProjects []*models.Project
	if err := cursor.All(ctx, &ownProjects); err != nil {
		return nil, apierrors.StoreError("decode user projects", err)
	}
	for _, p := range ownProjects {
		found.add(p.ID)
	}

	for _, collection := range []string{database.CollectionTasks, database.CollectionModels} {
		values, err := s.mongoDB.Collection(collection).Distinct(ctx, "project", leafQuery)
		if err != nil {
			return nil, apierrors.StoreError("distinct leaf projects", err)
		}
		found.add(toStrings(values)...)
	}

	ids := found.values()
	if len(ids) == 0 {
		return []string{}, nil
	}

	withParents, err := idsWithParents(ctx, s.projects(), ids)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) > 0 {
		requested := make(map[string]bool, len(projectIDs))
		for _, pid := range projectIDs {
			requested[pid] = true
		}
		filtered := withParents[:0]
		for _, pid := range withParents {
			if requested[pid] {
				filtered = append(filtered, pid)
			}
		}
		return filtered, nil
	}
	return withParents, nil
}

// TaskParent is a unique parent task referenced from tasks in a scope.
type TaskParent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Project string `json:"project"`
}

// buildTaskParentsQuery scopes the distinct-parent query to one company,
// the given project ids and one visibility section. An empty state means
// both sections.
func buildTaskParentsQuery(company string, scope []string, state models.EntityVisibility) bson.M {
	query := bson.M{"company": company}
	if len(scope) > 0 {
		query["project"] = bson.M{"$in": scope}
	}
	switch state {
	case models.VisibilityArchived:
		query["system_tags"] = bson.M{"$in": []string{models.ArchivedTag}}
	case models.VisibilityActive:
		query["system_tags"] = bson.M{"$nin": []string{models.ArchivedTag}}
	}
	return query
}

// GetTaskParents returns the unique parent tasks referenced by the
// company's tasks, sorted by task name. With project ids given only tasks
// from those projects (plus descendants when includeSubprojects) are
// considered; state narrows the referencing tasks to one visibility
// section.
func (s *StatsService) GetTaskParents(ctx context.Context, company string, projectIDs []string, includeSubprojects bool, state models.EntityVisibility) ([]TaskParent, error) {
	scope := projectIDs
	if len(projectIDs) > 0 && includeSubprojects {
		var err error
		scope, err = idsWithChildren(ctx, s.projects(), projectIDs)
		if err != nil {
			return nil, err
		}
	}

	tasks := s.mongoDB.Collection(database.CollectionTasks)
	values, err := tasks.Distinct(ctx, "parent", buildTaskParentsQuery(company, scope, state))
	if err != nil {
		return nil, apierrors.StoreError("distinct task parents", err)
	}
	parentIDs := toStrings(values)
	if len(parentIDs) == 0 {
		return []TaskParent{}, nil
	}

	cursor, err := tasks.Find(ctx,
		bson.M{
			"company": companyOrNone(company),
			"_id":     bson.M{"$in": parentIDs},
		},
		options.Find().SetProjection(bson.M{"name": 1, "project": 1}),
	)
	if err != nil {
		return nil, apierrors.StoreError("find parent tasks", err)
	}
	var found []models.Task
	if err := cursor.All(ctx, &found); err != nil {
		return nil, apierrors.StoreError("decode parent tasks", err)
	}

	parents := make([]TaskParent, 0, len(found))
	for _, task := range found {
		parents = append(parents, TaskParent{ID: task.ID, Name: task.Name, Project: task.Project})
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].Name < parents[j].Name })
	return parents, nil
}

// GetTaskTypes returns the externally meaningful task types in use by
// company and public tasks, optionally scoped to the given subtrees.
func (s *StatsService) GetTaskTypes(ctx context.Context, company string, projectIDs []string) ([]string, error) {
	query := bson.M{"company": companyOrNone(company)}
	if len(projectIDs) > 0 {
		scope, err := idsWithChildren(ctx, s.projects(), projectIDs)
		if err != nil {
			return nil, err
		}
		query["project"] = bson.M{"$in": scope}
	}

	values, err := s.mongoDB.Collection(database.CollectionTasks).Distinct(ctx, "type", query)
	if err != nil {
		return nil, apierrors.StoreError("distinct task types", err)
	}

	external := make(map[string]bool, len(models.ExternalTaskTypes))
	for _, t := range models.ExternalTaskTypes {
		external[t] = true
	}
	types := []string{}
	for _, t := range toStrings(values) {
		if external[t] {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types, nil
}

// GetModelFrameworks returns the frameworks in use by company and public
// models, optionally scoped to the given subtrees.
func (s *StatsService) GetModelFrameworks(ctx context.Context, company string, projectIDs []string) ([]string, error) {
	query := bson.M{"company": companyOrNone(company)}
	if len(projectIDs) > 0 {
		scope, err := idsWithChildren(ctx, s.projects(), projectIDs)
		if err != nil {
			return nil, err
		}
		query["project"] = bson.M{"$in": scope}
	}

	values, err := s.mongoDB.Collection(database.CollectionModels).Distinct(ctx, "framework", query)
	if err != nil {
		return nil, apierrors.StoreError("distinct model frameworks", err)
	}
	frameworks := toStrings(values)
	sort.Strings(frameworks)
	return frameworks, nil
}

func toStrings(values []interface{}) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}
