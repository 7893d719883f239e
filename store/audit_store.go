// Package store is the data-access layer over the MongoDB collections.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"auditmgt/models"
	"auditmgt/tracing"
)

const (
	AuditCollection = "audits"

	// TimeLayout matches JavaScript's toISOString so stored timestamps sort
	// lexically in time order.
	TimeLayout = "2006-01-02T15:04:05.000Z"

	createAttempts = 5
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// CreateAuditInput is everything the caller decides; the store fills in id,
// status, version and timestamps.
type CreateAuditInput struct {
	AuditName string
	Company   string
	AuditDate string
	Auditor   string
	AuditType models.AuditType
	UserID    string
	FormData  *models.FormData
}

// AuditUpdate carries the fields to replace. Nil pointers are left alone.
// ExpectedVersion, when set, makes the update conditional.
type AuditUpdate struct {
	AuditName       *string
	Company         *string
	AuditDate       *string
	Auditor         *string
	Status          *models.Status
	AuditType       *models.AuditType
	FormData        *models.FormData
	ExpectedVersion *int64
}

func (u AuditUpdate) setDoc(now string) bson.M {
	set := bson.M{"updatedAt": now}
	if u.AuditName != nil {
		set["auditName"] = *u.AuditName
	}
	if u.Company != nil {
		set["company"] = *u.Company
	}
	if u.AuditDate != nil {
		set["auditDate"] = *u.AuditDate
	}
	if u.Auditor != nil {
		set["auditor"] = *u.Auditor
	}
	if u.Status != nil {
		set["status"] = *u.Status
	}
	if u.AuditType != nil {
		set["auditType"] = *u.AuditType
	}
	if u.FormData != nil {
		set["formData"] = u.FormData
	}
	return set
}

// InitialStatus is completed when the full form was submitted with the
// create request and draft otherwise.
func InitialStatus(formData *models.FormData) models.Status {
	if formData != nil {
		return models.StatusCompleted
	}
	return models.StatusDraft
}

type AuditStore struct {
	coll   *mongo.Collection
	ids    *IDGenerator
	now    func() time.Time
	logger *slog.Logger
}

func NewAuditStore(db *mongo.Database, logger *slog.Logger) *AuditStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditStore{
		coll:   db.Collection(AuditCollection),
		ids:    NewIDGenerator(),
		now:    time.Now,
		logger: logger,
	}
}

func (s *AuditStore) timestamp() string {
	return s.now().UTC().Format(TimeLayout)
}

// Create inserts a new record. A collision on the unique id index gets a
// fresh identifier and another attempt.
func (s *AuditStore) Create(ctx context.Context, in CreateAuditInput) (_ *models.Audit, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "insert")
	defer func() { end(err) }()

	now := s.timestamp()
	audit := models.Audit{
		AuditName: in.AuditName,
		Company:   in.Company,
		AuditDate: in.AuditDate,
		Auditor:   in.Auditor,
		AuditType: in.AuditType,
		Status:    InitialStatus(in.FormData),
		UserID:    in.UserID,
		FormData:  in.FormData,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		audit.ID = s.ids.Next()
		res, err := s.coll.InsertOne(ctx, audit)
		if err == nil {
			if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
				audit.MongoID = oid
			}
			return &audit, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert audit: %w", err)
		}
		lastErr = err
		s.logger.Warn("audit id collision, regenerating", "id", audit.ID, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("insert audit after %d attempts: %w", createAttempts, lastErr)
}

func (s *AuditStore) GetByID(ctx context.Context, id string) (_ *models.Audit, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "findOne")
	defer func() { end(ignoreNotFound(err)) }()

	var audit models.Audit
	err = s.coll.FindOne(ctx, bson.M{"id": id}).Decode(&audit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find audit %s: %w", id, err)
	}
	return &audit, nil
}

func (s *AuditStore) ListByUser(ctx context.Context, userID string) ([]models.Audit, error) {
	return s.find(ctx, bson.M{"userId": userID})
}

func (s *AuditStore) ListByUserAndStatus(ctx context.Context, userID string, status models.Status) ([]models.Audit, error) {
	return s.find(ctx, bson.M{"userId": userID, "status": status})
}

func (s *AuditStore) find(ctx context.Context, filter bson.M) (_ []models.Audit, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "find")
	defer func() { end(err) }()

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find audits: %w", err)
	}
	defer cursor.Close(ctx)

	audits := []models.Audit{}
	if err := cursor.All(ctx, &audits); err != nil {
		return nil, fmt.Errorf("decode audits: %w", err)
	}
	return audits, nil
}

// Update merges the given fields into the stored document, refreshes
// updatedAt and bumps version. Without ExpectedVersion this is last write
// wins.
func (s *AuditStore) Update(ctx context.Context, id string, upd AuditUpdate) (_ *models.Audit, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "findOneAndUpdate")
	defer func() { end(ignoreNotFound(err)) }()

	filter := bson.M{"id": id}
	if upd.ExpectedVersion != nil {
		filter["version"] = *upd.ExpectedVersion
	}
	change := bson.M{
		"$set": upd.setDoc(s.timestamp()),
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var audit models.Audit
	err = s.coll.FindOneAndUpdate(ctx, filter, change, opts).Decode(&audit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if upd.ExpectedVersion == nil {
			return nil, ErrNotFound
		}
		// Tell a stale version apart from a missing record.
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update audit %s: %w", id, err)
	}
	return &audit, nil
}

// Delete reports whether a document was actually removed.
func (s *AuditStore) Delete(ctx context.Context, id string) (_ bool, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "delete")
	defer func() { end(err) }()

	res, err := s.coll.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return false, fmt.Errorf("delete audit %s: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

// StatsByUser groups the owner's records by status.
func (s *AuditStore) StatsByUser(ctx context.Context, userID string) (_ models.AuditStats, err error) {
	ctx, end := tracing.StartDBSpan(ctx, AuditCollection, "aggregate")
	defer func() { end(err) }()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "userId", Value: userID}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return models.AuditStats{}, fmt.Errorf("aggregate audit stats: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[models.Status]int64)
	for cursor.Next(ctx) {
		var row struct {
			Status models.Status `bson:"_id"`
			Count  int64         `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return models.AuditStats{}, fmt.Errorf("decode audit stats: %w", err)
		}
		counts[row.Status] += row.Count
	}
	if err := cursor.Err(); err != nil {
		return models.AuditStats{}, fmt.Errorf("iterate audit stats: %w", err)
	}

	stats := FoldStatusCounts(counts)
	if stats.Other > 0 {
		s.logger.Warn("audits with unrecognized status", "user_id", userID, "count", stats.Other)
	}
	return stats, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// FoldStatusCounts maps per-status counts onto the stats buckets. Every
// Status constant needs an arm here; anything else lands in Other.
func FoldStatusCounts(counts map[models.Status]int64) models.AuditStats {
	var stats models.AuditStats
	for status, n := range counts {
		stats.Total += n
		switch status {
		case models.StatusCompleted:
			stats.Completed += n
		case models.StatusInProgress:
			stats.InProgress += n
		case models.StatusPending:
			stats.Pending += n
		case models.StatusDraft:
			stats.Draft += n
		default:
			stats.Other += n
		}
	}
	return stats
}
