package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"treeline/internal/apierrors"
	"treeline/internal/database"
	"treeline/internal/logging"
	"treeline/internal/models"
)

// ProjectService is the tree mutation engine: create, rename, move and
// merge of project subtrees. It holds no state besides the store handle
// and the configured depth bound; every operation re-reads what it needs.
type ProjectService struct {
	mongoDB  *database.MongoDB
	maxDepth int
}

// NewProjectService creates a new project service
func NewProjectService(mongoDB *database.MongoDB, maxDepth int) *ProjectService {
	return &ProjectService{
		mongoDB:  mongoDB,
		maxDepth: maxDepth,
	}
}

func (s *ProjectService) projects() *mongo.Collection {
	return s.mongoDB.Collection(database.CollectionProjects)
}

// LeafKind selects which leaf-entity collection an operation works on.
type LeafKind string

const (
	LeafTasks  LeafKind = database.CollectionTasks
	LeafModels LeafKind = database.CollectionModels
)

var leafKinds = []LeafKind{LeafTasks, LeafModels}

// newProjectID generates an opaque 32-char hex project id.
func newProjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetProject reads one project by id, company-scoped (public projects are
// visible to every tenant).
func (s *ProjectService) GetProject(ctx context.Context, company, id string) (*models.Project, error) {
	var project models.Project
	err := s.projects().FindOne(ctx, bson.M{
		"_id":     id,
		"company": bson.M{"$in": []string{"", company}},
	}).Decode(&project)
	if err == mongo.ErrNoDocuments {
		return nil, &apierrors.NotFoundError{ID: id, Company: company}
	}
	if err != nil {
		return nil, apierrors.StoreError("get project", err)
	}
	return &project, nil
}

// findByName reads one project by its full display name within a company.
func (s *ProjectService) findByName(ctx context.Context, company, name string) (*models.Project, error) {
	var project models.Project
	err := s.projects().FindOne(ctx, bson.M{"company": company, "name": name}).Decode(&project)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.StoreError("find project by name", err)
	}
	return &project, nil
}

// saveUnderParent attaches project as a child of parent (nil for root) and
// inserts it.
func (s *ProjectService) saveUnderParent(ctx context.Context, project *models.Project, parent *models.Project) error {
	if parent != nil {
		project.Path = append(append([]string{}, parent.Path...), parent.ID)
		project.Parent = parent.ID
	}
	if _, err := s.projects().InsertOne(ctx, project); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apierrors.ErrProjectExists
		}
		return apierrors.StoreError("insert project", err)
	}
	return nil
}

// ensureProject returns the project with the given full name, creating it
// and any missing ancestors when it does not exist. An empty name means
// the tree root and returns nil.
func (s *ProjectService) ensureProject(ctx context.Context, company, user, name string) (*models.Project, error) {
	if name == "" {
		return nil, nil
	}
	existing, err := s.findByName(ctx, company, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	_, location, err := models.SplitProjectName(name)
	if err != nil {
		return nil, err
	}
	parent, err := s.ensureProject(ctx, company, user, location)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:         newProjectID(),
		Company:    company,
		User:       user,
		Name:       name,
		Created:    now,
		LastUpdate: now,
	}
	if err := s.saveUnderParent(ctx, project, parent); err != nil {
		return nil, err
	}
	return project, nil
}

// CreateProjectParams carries the user-settable attributes of a new
// project.
type CreateProjectParams struct {
	Name                     string
	Description              string
	Tags                     []string
	SystemTags               []string
	DefaultOutputDestination string
}

// Create creates a new project at the location encoded in its dotted name,
// creating missing ancestor projects along the way. Returns the new
// project id.
func (s *ProjectService) Create(ctx context.Context, company, user string, params CreateProjectParams) (string, error) {
	if models.ProjectNameDepth(params.Name) > s.maxDepth {
		return "", &apierrors.DepthExceededError{MaxDepth: s.maxDepth}
	}
	_, location, err := models.SplitProjectName(params.Name)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:                       newProjectID(),
		Company:                  company,
		User:                     user,
		Name:                     params.Name,
		Description:              params.Description,
		Tags:                     params.Tags,
		SystemTags:               params.SystemTags,
		DefaultOutputDestination: params.DefaultOutputDestination,
		Created:                  now,
		LastUpdate:               now,
	}

	parent, err := s.ensureProject(ctx, company, user, location)
	if err != nil {
		return "", err
	}
	if err := s.saveUnderParent(ctx, project, parent); err != nil {
		return "", err
	}
	if parent != nil {
		if err := s.touch(ctx, parent.ID, now); err != nil {
			return "", err
		}
	}

	logging.WithProject(company, project.ID).WithField("name", project.Name).Info("project created")
	return project.ID, nil
}

// FindOrCreate resolves a project by id or full name, creating it when the
// name does not exist yet. Returns the project id.
func (s *ProjectService) FindOrCreate(ctx context.Context, company, user, projectID string, params CreateProjectParams) (string, error) {
	if projectID == "" && params.Name == "" {
		return "", apierrors.ErrMissingIDOrName
	}

	if projectID != "" {
		if _, err := s.GetProject(ctx, company, projectID); err != nil {
			return "", err
		}
		return projectID, nil
	}

	if _, _, err := models.SplitProjectName(params.Name); err != nil {
		return "", err
	}
	existing, err := s.findByName(ctx, company, params.Name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return s.Create(ctx, company, user, params)
}

// Update applies a partial update to a project. Only whitelisted fields
// are accepted. A name change must keep the project's location and
// cascades the new name into every descendant.
func (s *ProjectService) Update(ctx context.Context, company, projectID string, fields map[string]interface{}) (int64, error) {
	for field := range fields {
		if !models.UpdatableProjectFields[field] {
			return 0, apierrors.ErrUnknownField
		}
	}

	var project models.Project
	err := s.projects().FindOne(ctx, bson.M{"_id": projectID, "company": company}).Decode(&project)
	if err == mongo.ErrNoDocuments {
		return 0, &apierrors.NotFoundError{ID: projectID, Company: company}
	}
	if err != nil {
		return 0, apierrors.StoreError("get project for writing", err)
	}

	rawName, renaming := fields["name"]
	if renaming {
		newName, ok := rawName.(string)
		if !ok {
			return 0, apierrors.ErrInvalidName
		}
		newBase, newLocation, err := models.SplitProjectName(newName)
		if err != nil {
			return 0, err
		}
		_, oldLocation, err := models.SplitProjectName(project.Name)
		if err != nil {
			return 0, err
		}
		if newLocation != oldLocation {
			return 0, apierrors.ErrLocationChangeViaRename
		}
		fields["name"] = models.JoinProjectName(newLocation, newBase)
	}

	update := bson.M{"last_update": time.Now().UTC()}
	for field, value := range fields {
		update[field] = value
	}
	res, err := s.projects().UpdateOne(ctx, bson.M{"_id": project.ID}, bson.M{"$set": update})
	if err != nil {
		return 0, apierrors.StoreError("update project", err)
	}

	if renaming {
		oldName := project.Name
		project.Name = fields["name"].(string)
		subProjects, err := getSubProjects(ctx, s.projects(), []string{project.ID}, "name")
		if err != nil {
			return 0, err
		}
		if err := updateSubprojectNames(ctx, s.projects(), &project, subProjects[project.ID], oldName); err != nil {
			return 0, err
		}
		logging.WithProject(company, project.ID).
			WithField("old_name", oldName).
			WithField("new_name", project.Name).
			Info("project renamed")
	}

	return res.ModifiedCount, nil
}

// Move relocates a project with its whole subtree under a new location,
// creating the destination ancestor chain when it does not exist yet.
// Returns the number of moved projects and the set of all project ids
// whose subtree membership changed, for cache invalidation by callers.
func (s *ProjectService) Move(ctx context.Context, company, user, projectID, newLocation string) (int, []string, error) {
	project, err := s.GetProject(ctx, company, projectID)
	if err != nil {
		return 0, nil, err
	}

	var oldParent *models.Project
	if project.Parent != "" {
		oldParent, err = s.GetProject(ctx, project.Company, project.Parent)
		if err != nil {
			return 0, nil, err
		}
	}

	subProjects, err := getSubProjects(ctx, s.projects(), []string{project.ID}, "name")
	if err != nil {
		return 0, nil, err
	}
	children := subProjects[project.ID]

	affectedProjects := append([]*models.Project{project}, children...)
	if err := validateProjectsDepth(affectedProjects, len(project.Path), models.ProjectNameDepth(newLocation), s.maxDepth); err != nil {
		return 0, nil, err
	}

	newParent, err := s.ensureProject(ctx, company, user, newLocation)
	if err != nil {
		return 0, nil, err
	}
	newParentID := ""
	if newParent != nil {
		newParentID = newParent.ID
	}
	if project.Parent == newParentID {
		return 0, nil, apierrors.ErrSameSourceAndDestination
	}

	moved, err := repositionProjectWithChildren(ctx, s.projects(), project, children, newParent)
	if err != nil {
		return moved, nil, err
	}

	now := time.Now().UTC()
	affected := newIDSet()
	for _, p := range []*models.Project{oldParent, newParent} {
		if p == nil {
			continue
		}
		if err := s.touch(ctx, p.ID, now); err != nil {
			return moved, nil, err
		}
		affected.add(p.ID)
		affected.add(p.Path...)
	}

	logging.WithProject(company, project.ID).
		WithField("new_location", newLocation).
		WithField("moved", moved).
		Info("project moved")
	return moved, affected.values(), nil
}

// Merge moves all non-archived tasks and models plus every child subtree
// from the source project into the destination, then deletes the source.
// Archived leaves keep their original project reference; the dangling id
// is logged so operators can run a repair pass. Returns the number of
// moved leaf entities, the number of moved immediate sub projects, and
// the set of all affected project ids.
func (s *ProjectService) Merge(ctx context.Context, company, sourceID, destinationID string) (int64, int, []string, error) {
	if sourceID == destinationID {
		return 0, 0, nil, apierrors.ErrSameSourceAndDestination
	}
	source, err := s.GetProject(ctx, company, sourceID)
	if err != nil {
		return 0, 0, nil, err
	}
	destination, err := s.GetProject(ctx, company, destinationID)
	if err != nil {
		return 0, 0, nil, err
	}

	subProjects, err := getSubProjects(ctx, s.projects(), []string{source.ID}, "name", "parent")
	if err != nil {
		return 0, 0, nil, err
	}
	children := subProjects[source.ID]
	if err := validateProjectsDepth(children, source.Depth(), destination.Depth(), s.maxDepth); err != nil {
		return 0, 0, nil, err
	}

	// Phase 2: writes run in a fixed order (leaves, child projects, source
	// deletion) and are not atomic across documents.
	var movedEntities int64
	for _, kind := range leafKinds {
		res, err := s.mongoDB.Collection(string(kind)).UpdateMany(ctx,
			bson.M{
				"company":     company,
				"project":     source.ID,
				"system_tags": bson.M{"$nin": []string{models.ArchivedTag}},
			},
			bson.M{"$set": bson.M{"project": destination.ID}},
		)
		if err != nil {
			return movedEntities, 0, nil, apierrors.StoreError("merge leaf entities", err)
		}
		movedEntities += res.ModifiedCount
	}

	cursor, err := s.projects().Find(ctx, bson.M{"company": company, "parent": source.ID})
	if err != nil {
		return movedEntities, 0, nil, apierrors.StoreError("find immediate children", err)
	}
	var immediate []*models.Project
	if err := cursor.All(ctx, &immediate); err != nil {
		return movedEntities, 0, nil, apierrors.StoreError("decode immediate children", err)
	}

	movedSubProjects := 0
	subtrees := subtreePerChild(immediate, children)
	for _, child := range immediate {
		if _, err := repositionProjectWithChildren(ctx, s.projects(), child, subtrees[child.ID], destination); err != nil {
			return movedEntities, movedSubProjects, nil, err
		}
		movedSubProjects++
	}

	affected := newIDSet()
	affected.add(source.ID)
	affected.add(source.Path...)
	if _, err := s.projects().DeleteOne(ctx, bson.M{"_id": source.ID}); err != nil {
		return movedEntities, movedSubProjects, nil, apierrors.StoreError("delete source project", err)
	}

	if err := s.touch(ctx, destination.ID, time.Now().UTC()); err != nil {
		return movedEntities, movedSubProjects, nil, err
	}
	affected.add(destination.ID)
	affected.add(destination.Path...)

	logging.WithProject(company, destination.ID).
		WithField("source", source.ID).
		WithField("moved_entities", movedEntities).
		WithField("moved_sub_projects", movedSubProjects).
		Warn("project merged, archived leaves keep the deleted source project id")
	return movedEntities, movedSubProjects, affected.values(), nil
}

// MoveLeavesUnderProject moves a batch of tasks or models to the project
// given by id or full name, creating it when needed. Returns the target
// project id.
func (s *ProjectService) MoveLeavesUnderProject(ctx context.Context, kind LeafKind, company, user string, ids []string, projectID, projectName string) (string, error) {
	target, err := s.FindOrCreate(ctx, company, user, projectID, CreateProjectParams{Name: projectName})
	if err != nil {
		return "", err
	}

	_, err = s.mongoDB.Collection(string(kind)).UpdateMany(ctx,
		bson.M{"company": company, "_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{
			"project":     target,
			"last_change": time.Now().UTC(),
		}},
	)
	if err != nil {
		return "", apierrors.StoreError("move leaves under project", err)
	}
	return target, nil
}

// touch bumps a project's last_update bookkeeping timestamp.
func (s *ProjectService) touch(ctx context.Context, projectID string, now time.Time) error {
	_, err := s.projects().UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{"$set": bson.M{"last_update": now}},
	)
	if err != nil {
		return apierrors.StoreError("touch project", err)
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// idSet is an insertion-ordered string set used for affected-id reporting.
type idSet struct {
	seen  map[string]bool
	order []string
}

func newIDSet() *idSet {
	return &idSet{seen: map[string]bool{}}
}

func (s *idSet) add(ids ...string) {
	for _, id := range ids {
		if id != "" && !s.seen[id] {
			s.seen[id] = true
			s.order = append(s.order, id)
		}
	}
}

// values returns the ids in insertion order, never nil: affected-id sets
// serialize as [] rather than null when empty.
func (s *idSet) values() []string {
	if s.order == nil {
		return []string{}
	}
	return s.order
}
