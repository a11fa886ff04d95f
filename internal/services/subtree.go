package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"treeline/internal/apierrors"
	"treeline/internal/models"
)

// validateProjectsDepth checks every affected project's depth after a
// reparenting from a parent at oldParentDepth to one at newParentDepth.
// Runs before any write; a rejected operation never mutates state.
func validateProjectsDepth(projects []*models.Project, oldParentDepth, newParentDepth, maxDepth int) error {
	for _, p := range projects {
		if p.Depth()-oldParentDepth+newParentDepth > maxDepth {
			return &apierrors.DepthExceededError{MaxDepth: maxDepth}
		}
	}
	return nil
}

// getSubProjects returns, for each requested id, every project whose path
// contains that id, i.e. all its transitive descendants. Only the
// requested fields are read back from the store.
func getSubProjects(ctx context.Context, projects *mongo.Collection, ids []string, fields ...string) (map[string][]*models.Project, error) {
	result := make(map[string][]*models.Project, len(ids))
	for _, id := range ids {
		result[id] = nil
	}
	if len(ids) == 0 {
		return result, nil
	}

	opts := options.Find()
	if len(fields) > 0 {
		projection := bson.M{"path": 1}
		for _, f := range fields {
			projection[f] = 1
		}
		opts.SetProjection(projection)
	}

	cursor, err := projects.Find(ctx, bson.M{"path": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, apierrors.StoreError("find sub projects", err)
	}

	var descendants []*models.Project
	if err := cursor.All(ctx, &descendants); err != nil {
		return nil, apierrors.StoreError("decode sub projects", err)
	}

	for _, d := range descendants {
		for _, ancestor := range d.Path {
			if _, requested := result[ancestor]; requested {
				result[ancestor] = append(result[ancestor], d)
			}
		}
	}
	return result, nil
}

// idsWithChildren expands a set of project ids with all their descendant
// ids. This is the canonical subtree scope for leaf-entity queries.
func idsWithChildren(ctx context.Context, projects *mongo.Collection, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := projects.Find(ctx,
		bson.M{"path": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, apierrors.StoreError("find subtree ids", err)
	}
	var descendants []*models.Project
	if err := cursor.All(ctx, &descendants); err != nil {
		return nil, apierrors.StoreError("decode subtree ids", err)
	}

	seen := make(map[string]bool, len(ids)+len(descendants))
	expanded := make([]string, 0, len(ids)+len(descendants))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			expanded = append(expanded, id)
		}
	}
	for _, d := range descendants {
		if !seen[d.ID] {
			seen[d.ID] = true
			expanded = append(expanded, d.ID)
		}
	}
	return expanded, nil
}

// idsWithParents expands a set of project ids with every ancestor id found
// in their materialized paths, so leaf-level results can be reported at
// every ancestor level too.
func idsWithParents(ctx context.Context, projects *mongo.Collection, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := projects.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"path": 1}),
	)
	if err != nil {
		return nil, apierrors.StoreError("find ancestor ids", err)
	}
	var found []*models.Project
	if err := cursor.All(ctx, &found); err != nil {
		return nil, apierrors.StoreError("decode ancestor ids", err)
	}

	seen := make(map[string]bool, len(ids))
	expanded := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			expanded = append(expanded, id)
		}
	}
	for _, p := range found {
		for _, ancestor := range p.Path {
			if !seen[ancestor] {
				seen[ancestor] = true
				expanded = append(expanded, ancestor)
			}
		}
	}
	return expanded, nil
}

// childPathUnder rewrites a descendant's path after its subtree root moved:
// the root's old path prefix is replaced with the root's new path.
func childPathUnder(newRootPath []string, childPath []string, oldRootPathLen int) []string {
	rewritten := make([]string, 0, len(newRootPath)+len(childPath)-oldRootPathLen)
	rewritten = append(rewritten, newRootPath...)
	rewritten = append(rewritten, childPath[oldRootPathLen:]...)
	return rewritten
}

// subtreePerChild partitions a merged project's descendants among its
// immediate children: each child gets the descendants whose path runs
// through it. The child documents themselves are among the descendants
// and are not part of any subtree slice.
func subtreePerChild(immediate []*models.Project, descendants []*models.Project) map[string][]*models.Project {
	subtrees := make(map[string][]*models.Project, len(immediate))
	for _, child := range immediate {
		var subtree []*models.Project
		for _, d := range descendants {
			if contains(d.Path, child.ID) {
				subtree = append(subtree, d)
			}
		}
		subtrees[child.ID] = subtree
	}
	return subtrees
}

// childNameUnder rewrites a descendant's display name after the subtree
// root's name changed from oldRootName to newRootName.
func childNameUnder(newRootName, oldRootName, childName string) string {
	return newRootName + strings.TrimPrefix(childName, oldRootName)
}

// repositionProjectWithChildren moves project under parent (nil for root),
// rewriting path, parent and name for the project and all the given
// descendants. Returns the number of repositioned projects.
func repositionProjectWithChildren(ctx context.Context, projects *mongo.Collection, project *models.Project, children []*models.Project, parent *models.Project) (int, error) {
	var newPath []string
	newParentID := ""
	parentName := ""
	if parent != nil {
		newPath = append(append([]string{}, parent.Path...), parent.ID)
		newParentID = parent.ID
		parentName = parent.Name
	}
	oldPathLen := len(project.Path)
	oldName := project.Name
	newName := models.JoinProjectName(parentName, project.BaseName())

	now := time.Now().UTC()
	update := bson.M{
		"name":        newName,
		"parent":      newParentID,
		"last_update": now,
	}
	if len(newPath) > 0 {
		update["path"] = newPath
	}
	set := bson.M{"$set": update}
	if len(newPath) == 0 {
		set["$unset"] = bson.M{"path": "", "parent": ""}
		delete(update, "parent")
		delete(update, "path")
	}
	if _, err := projects.UpdateOne(ctx, bson.M{"_id": project.ID}, set); err != nil {
		return 0, apierrors.StoreError("reposition project", err)
	}
	project.Path = newPath
	project.Parent = newParentID
	project.Name = newName

	moved := 1
	for _, child := range children {
		childUpdate := bson.M{"$set": bson.M{
			"path":        childPathUnder(newPath, child.Path, oldPathLen),
			"name":        childNameUnder(newName, oldName, child.Name),
			"last_update": now,
		}}
		if _, err := projects.UpdateOne(ctx, bson.M{"_id": child.ID}, childUpdate); err != nil {
			return moved, apierrors.StoreError("reposition sub project", err)
		}
		moved++
	}
	return moved, nil
}

// updateSubprojectNames cascades a renamed project's new name into every
// descendant's display name. Paths and parent ids are untouched.
func updateSubprojectNames(ctx context.Context, projects *mongo.Collection, project *models.Project, children []*models.Project, oldName string) error {
	now := time.Now().UTC()
	for _, child := range children {
		update := bson.M{"$set": bson.M{
			"name":        childNameUnder(project.Name, oldName, child.Name),
			"last_update": now,
		}}
		if _, err := projects.UpdateOne(ctx, bson.M{"_id": child.ID}, update); err != nil {
			return apierrors.StoreError("rename sub project", err)
		}
	}
	return nil
}
