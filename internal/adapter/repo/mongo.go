package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"grantpay/internal/domain"
)

const colPayoutJobs = "payout_jobs"

// JobStoreMongo implements domain.JobStore backed by MongoDB. Amounts are
// stored as decimal strings inside the payload document.
type JobStoreMongo struct {
	col *mongo.Collection
}

// NewJobStoreMongo creates a job store on the payout_jobs collection of db.
func NewJobStoreMongo(db *mongo.Database) *JobStoreMongo {
	return &JobStoreMongo{col: db.Collection(colPayoutJobs)}
}

type winnerDocument struct {
	Address string `bson:"address"`
	Amount  string `bson:"amount"`
}

type payloadDocument struct {
	EventRef    string           `bson:"event_ref"`
	Winners     []winnerDocument `bson:"winners"`
	InitiatedBy string           `bson:"initiated_by"`
}

type resultDocument struct {
	Reference        string    `bson:"reference,omitempty"`
	Error            string    `bson:"error,omitempty"`
	RecordedAt       time.Time `bson:"recorded_at"`
	ProcessingTimeMs int64     `bson:"processing_time_ms"`
	RetryCount       int       `bson:"retry_count"`
}

type jobDocument struct {
	ID        string          `bson:"_id"`
	Kind      string          `bson:"kind"`
	Status    string          `bson:"status"`
	Payload   payloadDocument `bson:"payload"`
	Result    *resultDocument `bson:"result,omitempty"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

// EnsureIndexes creates the indexes the store queries rely on. Safe to call on
// every startup.
func (s *JobStoreMongo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "payload.event_ref", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "result.reference", Value: 1}}},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create payout job indexes: %w", err)
	}
	return nil
}

// Create inserts a new pending job.
func (s *JobStoreMongo) Create(ctx context.Context, kind domain.JobKind, payload domain.PayoutPayload) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.col.InsertOne(ctx, toJobDocument(job)); err != nil {
		return nil, fmt.Errorf("create payout job: %w", err)
	}
	return job, nil
}

// Get fetches a job by its identifier.
func (s *JobStoreMongo) Get(ctx context.Context, id string) (*domain.Job, error) {
	var doc jobDocument
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get payout job: %w", err)
	}
	return fromJobDocument(&doc)
}

// Claim moves a PENDING or FAILED job to PROCESSING via FindOneAndUpdate so
// the status predicate and the write are a single atomic operation.
func (s *JobStoreMongo) Claim(ctx context.Context, id string) (*domain.Job, bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []string{string(domain.JobStatusPending), string(domain.JobStatusFailed)}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     string(domain.JobStatusProcessing),
			"updated_at": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc jobDocument
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		job, convErr := fromJobDocument(&doc)
		if convErr != nil {
			return nil, false, convErr
		}
		return job, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("claim payout job: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// Save overwrites the job's status and result.
func (s *JobStoreMongo) Save(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	doc := toJobDocument(job)
	doc.UpdatedAt = time.Now().UTC()

	res, err := s.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return nil, fmt.Errorf("save payout job: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrNotFound
	}
	return fromJobDocument(doc)
}

// ListByStatus returns up to limit jobs in the given status, oldest first.
func (s *JobStoreMongo) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.col.Find(ctx, bson.M{"status": string(status)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list payout jobs by status: %w", err)
	}
	defer cursor.Close(ctx)
	return decodeJobCursor(ctx, cursor)
}

// ListByEvent returns all jobs for an event reference, newest first.
func (s *JobStoreMongo) ListByEvent(ctx context.Context, eventRef string) ([]*domain.Job, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.col.Find(ctx, bson.M{"payload.event_ref": eventRef}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("list payout jobs by event: %w", err)
	}
	defer cursor.Close(ctx)
	return decodeJobCursor(ctx, cursor)
}

// FindByReference returns the job whose result carries the given ledger reference.
func (s *JobStoreMongo) FindByReference(ctx context.Context, reference string) (*domain.Job, error) {
	var doc jobDocument
	err := s.col.FindOne(ctx, bson.M{"result.reference": reference}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find payout job by reference: %w", err)
	}
	return fromJobDocument(&doc)
}

func decodeJobCursor(ctx context.Context, cursor *mongo.Cursor) ([]*domain.Job, error) {
	var docs []jobDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payout jobs: %w", err)
	}
	jobs := make([]*domain.Job, 0, len(docs))
	for i := range docs {
		job, err := fromJobDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toJobDocument(job *domain.Job) *jobDocument {
	winners := make([]winnerDocument, len(job.Payload.Winners))
	for i, w := range job.Payload.Winners {
		winners[i] = winnerDocument{Address: w.Address, Amount: w.Amount.String()}
	}
	doc := &jobDocument{
		ID:     job.ID,
		Kind:   string(job.Kind),
		Status: string(job.Status),
		Payload: payloadDocument{
			EventRef:    job.Payload.EventRef,
			Winners:     winners,
			InitiatedBy: job.Payload.InitiatedBy,
		},
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Result != nil {
		doc.Result = &resultDocument{
			Reference:        job.Result.Reference,
			Error:            job.Result.Error,
			RecordedAt:       job.Result.RecordedAt,
			ProcessingTimeMs: job.Result.ProcessingTimeMs,
			RetryCount:       job.Result.RetryCount,
		}
	}
	return doc
}

func fromJobDocument(doc *jobDocument) (*domain.Job, error) {
	winners := make([]domain.Winner, len(doc.Payload.Winners))
	for i, w := range doc.Payload.Winners {
		amount, err := domain.ParseAmount(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode payout job %s: winner %d: %w", doc.ID, i, err)
		}
		winners[i] = domain.Winner{Address: w.Address, Amount: amount}
	}
	job := &domain.Job{
		ID:     doc.ID,
		Kind:   domain.JobKind(doc.Kind),
		Status: domain.JobStatus(doc.Status),
		Payload: domain.PayoutPayload{
			EventRef:    doc.Payload.EventRef,
			Winners:     winners,
			InitiatedBy: doc.Payload.InitiatedBy,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Result != nil {
		job.Result = &domain.JobResult{
			Reference:        doc.Result.Reference,
			Error:            doc.Result.Error,
			RecordedAt:       doc.Result.RecordedAt,
			ProcessingTimeMs: doc.Result.ProcessingTimeMs,
			RetryCount:       doc.Result.RetryCount,
		}
	}
	return job, nil
}
