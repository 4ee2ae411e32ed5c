// Package store persists processed documents and evaluation results. The
// primary store is MongoDB, one collection per document type plus a results
// collection; a small sqlite sidecar holds run checkpoints, run metadata and
// API tokens (see local.go).
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/educheck/educheck/internal/model"
)

// DocumentStore is the persistence surface the pipeline depends on.
type DocumentStore interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	LatestDocument(ctx context.Context, docType model.DocType) (*model.Document, error)
	StudentDocuments(ctx context.Context) ([]*model.Document, error)

	InsertResult(ctx context.Context, res *model.StudentResult) error
	Results(ctx context.Context, runID string) ([]*model.StudentResult, error)
	ResultsMissingFeedback(ctx context.Context) ([]*model.StudentResult, error)
	SetFeedback(ctx context.Context, resultID, feedback string) error
}

type mongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps a connected client. Collection names follow the
// document types: question_paper, answer_key, student_answer, misc, plus
// results.
func NewMongoStore(client *mongo.Client, dbName string) DocumentStore {
	return &mongoStore{db: client.Database(dbName)}
}

func (s *mongoStore) collectionFor(docType model.DocType) *mongo.Collection {
	return s.db.Collection(string(docType))
}

func (s *mongoStore) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err := s.collectionFor(doc.Type).InsertOne(ctx, doc)
	return err
}

// LatestDocument returns the most recently uploaded document of the given
// type, or nil when the collection is empty.
func (s *mongoStore) LatestDocument(ctx context.Context, docType model.DocType) (*model.Document, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	var doc model.Document
	err := s.collectionFor(docType).FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// StudentDocuments returns every stored student answer sheet, oldest first,
// so evaluation order is stable across runs.
func (s *mongoStore) StudentDocuments(ctx context.Context) ([]*model.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: 1}})
	cursor, err := s.collectionFor(model.DocStudentAnswer).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*model.Document
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *mongoStore) InsertResult(ctx context.Context, res *model.StudentResult) error {
	if res.ID == "" {
		res.ID = primitive.NewObjectID().Hex()
	}
	if res.EvaluatedAt.IsZero() {
		res.EvaluatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection("results").InsertOne(ctx, res)
	return err
}

func (s *mongoStore) Results(ctx context.Context, runID string) ([]*model.StudentResult, error) {
	filter := bson.M{}
	if runID != "" {
		filter["run_id"] = runID
	}
	opts := options.Find().SetSort(bson.D{{Key: "evaluated_at", Value: 1}})
	cursor, err := s.db.Collection("results").Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []*model.StudentResult
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *mongoStore) ResultsMissingFeedback(ctx context.Context) ([]*model.StudentResult, error) {
	cursor, err := s.db.Collection("results").Find(ctx, bson.M{"feedback_generated": false})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []*model.StudentResult
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SetFeedback stores generated feedback and flips the generated flag in one
// update, so a crash between the two cannot strand a half-marked record.
func (s *mongoStore) SetFeedback(ctx context.Context, resultID, feedback string) error {
	now := time.Now().UTC()
	_, err := s.db.Collection("results").UpdateOne(ctx,
		bson.M{"_id": resultID},
		bson.M{"$set": bson.M{
			"feedback":              feedback,
			"feedback_generated":    true,
			"feedback_generated_at": now,
		}},
	)
	return err
}
