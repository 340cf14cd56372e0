package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/wferrors"
)

// Store is the MongoDB-backed State Store (spec §4.1). All mutators are
// single-document atomic updates; callers never read-modify-write counters
// themselves.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials MongoDB per cfg, selects the configured database and
// collection, and ensures the unique index on workflow_id exists.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	uri := fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.Port)
	opts := options.Client().ApplyURI(uri)
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "connect to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "ping mongodb")
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "workflow_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "create workflow_id index")
	}

	return &Store{client: client, collection: coll}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the store's MongoDB connection is alive, for the
// /api/v1/health endpoint (spec §6).
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Save inserts a new workflow document, stamping created_at/updated_at.
// Fails with wferrors.TypeConflict on a duplicate workflow_id.
func (s *Store) Save(ctx context.Context, wf *Workflow) error {
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, wf); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return wferrors.Newf(wferrors.TypeConflict, "workflow %s already exists", wf.WorkflowID)
		}
		return wferrors.Wrap(wferrors.TypeTransient, err, "save workflow")
	}
	return nil
}

// Get retrieves a workflow by id. Returns a wferrors.TypeNotFound error if
// no document matches.
func (s *Store) Get(ctx context.Context, workflowID string) (*Workflow, error) {
	var wf Workflow
	err := s.collection.FindOne(ctx, bson.M{"workflow_id": workflowID}).Decode(&wf)
	if err == mongo.ErrNoDocuments {
		return nil, wferrors.Newf(wferrors.TypeNotFound, "workflow %s not found", workflowID)
	}
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "get workflow")
	}
	return &wf, nil
}

// ListByStatus returns every workflow with the given status, newest-first.
func (s *Store) ListByStatus(ctx context.Context, status string) ([]*Workflow, error) {
	return s.listWithFilter(ctx, bson.M{"status": status})
}

// ListActive returns every workflow whose status is pending, queued, or
// running, newest-first.
func (s *Store) ListActive(ctx context.Context) ([]*Workflow, error) {
	return s.listWithFilter(ctx, bson.M{"status": bson.M{"$in": bson.A{StatusPending, StatusQueued, StatusRunning}}})
}

func (s *Store) listWithFilter(ctx context.Context, filter bson.M) ([]*Workflow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "list workflows")
	}
	defer cursor.Close(ctx)

	var workflows []*Workflow
	if err := cursor.All(ctx, &workflows); err != nil {
		return nil, wferrors.Wrap(wferrors.TypeTransient, err, "decode workflows")
	}
	return workflows, nil
}

// UpdateWorkflowFields sets the given top-level fields plus updated_at.
func (s *Store) UpdateWorkflowFields(ctx context.Context, workflowID string, updates map[string]interface{}) error {
	return s.setFields(ctx, bson.M{"workflow_id": workflowID}, updates)
}

// UpdateStepFields updates the step addressed by step_id within workflowID,
// using the positional operator (spec §4.1). This is the addressing mode
// used after a step has been dispatched and has a step_id.
func (s *Store) UpdateStepFields(ctx context.Context, workflowID, stepID string, updates map[string]interface{}) error {
	set := prefixed("steps.$.", updates)
	return s.setFields(ctx, bson.M{"workflow_id": workflowID, "steps.step_id": stepID}, set)
}

// UpdateStepByName updates the step addressed by step_name within
// workflowID. Used prior to dispatch, before a step has a step_id.
func (s *Store) UpdateStepByName(ctx context.Context, workflowID, stepName string, updates map[string]interface{}) error {
	set := prefixed("steps.$.", updates)
	return s.setFields(ctx, bson.M{"workflow_id": workflowID, "steps.step_name": stepName}, set)
}

func prefixed(prefix string, updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		out[prefix+k] = v
	}
	return out
}

// setFields is the common $set helper backing UpdateWorkflowFields and the
// positional step updates.
func (s *Store) setFields(ctx context.Context, filter bson.M, updates map[string]interface{}) error {
	set := bson.M{}
	for k, v := range updates {
		set[k] = v
	}
	set["updated_at"] = time.Now().UTC()

	result, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return wferrors.Wrap(wferrors.TypeTransient, err, "update fields")
	}
	if result.MatchedCount == 0 {
		return wferrors.New(wferrors.TypeNotFound, "no matching document for update")
	}
	return nil
}

// AddToRunningSteps records stepID as currently running and increments
// running_steps, atomically (spec §4.1).
func (s *Store) AddToRunningSteps(ctx context.Context, workflowID, stepID string) error {
	update := bson.M{
		"$addToSet": bson.M{"execution_metadata.currently_running_step_ids": stepID},
		"$inc":      bson.M{"execution_metadata.running_steps": 1, "execution_metadata.pending_steps": -1},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	return s.updateOneOrNotFound(ctx, bson.M{"workflow_id": workflowID}, update)
}

// RemoveFromRunningSteps removes stepID from the running set and decrements
// running_steps.
func (s *Store) RemoveFromRunningSteps(ctx context.Context, workflowID, stepID string) error {
	update := bson.M{
		"$pull": bson.M{"execution_metadata.currently_running_step_ids": stepID},
		"$inc":  bson.M{"execution_metadata.running_steps": -1},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	return s.updateOneOrNotFound(ctx, bson.M{"workflow_id": workflowID}, update)
}

// AddToCompletedSteps records stepID as completed and increments
// completed_steps.
func (s *Store) AddToCompletedSteps(ctx context.Context, workflowID, stepID string) error {
	update := bson.M{
		"$addToSet": bson.M{"execution_metadata.completed_step_ids": stepID},
		"$inc":      bson.M{"execution_metadata.completed_steps": 1},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	return s.updateOneOrNotFound(ctx, bson.M{"workflow_id": workflowID}, update)
}

// IncrementWorkflowField atomically increments the counter at path (e.g.
// "execution_metadata.failed_steps") by delta.
func (s *Store) IncrementWorkflowField(ctx context.Context, workflowID, path string, delta int) error {
	update := bson.M{
		"$inc": bson.M{path: delta},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	return s.updateOneOrNotFound(ctx, bson.M{"workflow_id": workflowID}, update)
}

func (s *Store) updateOneOrNotFound(ctx context.Context, filter, update bson.M) error {
	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return wferrors.Wrap(wferrors.TypeTransient, err, "update workflow")
	}
	if result.MatchedCount == 0 {
		return wferrors.New(wferrors.TypeNotFound, "workflow not found")
	}
	return nil
}
