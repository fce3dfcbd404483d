// Package mongostore stores events and users in MongoDB collections "events" and "users".
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusattend/internal/clock"
	"campusattend/internal/domain"
	"campusattend/internal/repository/watch"
)

// Collection names.
const (
	EventsCollection = "events"
	UsersCollection  = "users"
)

const defaultResyncInterval = time.Minute

// eventDoc is the stored shape of an event.
type eventDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Date        time.Time `bson:"date"`
	Location    string    `bson:"location"`
	CreatedBy   string    `bson:"createdBy"`
	RSVPs       []string  `bson:"rsvps"`
	CheckedIn   []string  `bson:"checkedIn"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func toEventDoc(e *domain.Event) eventDoc {
	return eventDoc{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date.UTC(),
		Location:    e.Location,
		CreatedBy:   e.CreatedBy,
		RSVPs:       e.RSVPs.Sorted(),
		CheckedIn:   e.CheckedIn.Sorted(),
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func (d eventDoc) toDomain() *domain.Event {
	return &domain.Event{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Date:        d.Date,
		Location:    d.Location,
		CreatedBy:   d.CreatedBy,
		RSVPs:       domain.NewUserSet(d.RSVPs...),
		CheckedIn:   domain.NewUserSet(d.CheckedIn...),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type eventRepository struct {
	col    *mongo.Collection
	clock  clock.Clock
	logger *slog.Logger
	resync time.Duration
}

// NewEventRepository returns a MongoDB-backed event store over col.
func NewEventRepository(col *mongo.Collection, c clock.Clock, logger *slog.Logger) domain.EventRepository {
	return &eventRepository{col: col, clock: c, logger: logger, resync: defaultResyncInterval}
}

// EnsureIndexes creates the indexes used by the upcoming query and user lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(EventsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("events index: %w", translate(err))
	}
	_, err = db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", translate(err))
	}
	return nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := r.col.InsertOne(ctx, toEventDoc(e)); err != nil {
		return translate(err)
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var doc eventDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// Update applies the non-nil fields of upd. Concurrent updates are last-writer-wins.
func (r *eventRepository) Update(ctx context.Context, id string, upd domain.EventUpdate, updatedAt time.Time) (*domain.Event, error) {
	var probe domain.Event
	upd.Apply(&probe)
	set := bson.M{"updatedAt": updatedAt.UTC()}
	if upd.Title != nil {
		set["title"] = probe.Title
	}
	if upd.Description != nil {
		set["description"] = probe.Description
	}
	if upd.Date != nil {
		set["date"] = probe.Date.UTC()
	}
	if upd.Location != nil {
		set["location"] = probe.Location
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc eventDoc
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func setKey(field domain.SetField) (string, error) {
	switch field {
	case domain.FieldRSVPs:
		return "rsvps", nil
	case domain.FieldCheckedIn:
		return "checkedIn", nil
	}
	return "", fmt.Errorf("unknown set field %q: %w", field, domain.ErrInvalidInput)
}

// AddToSet uses $addToSet. A check-in only matches documents whose rsvps already hold userID.
func (r *eventRepository) AddToSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	key, err := setKey(field)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": id}
	guard := error(nil)
	if field == domain.FieldCheckedIn {
		filter["rsvps"] = userID
		guard = domain.ErrNotRSVPd
	}
	update := bson.M{
		"$addToSet": bson.M{key: userID},
		"$set":      bson.M{"updatedAt": r.clock.Now().UTC()},
	}
	return r.updateGuarded(ctx, id, filter, update, guard)
}

// RemoveFromSet uses $pull. An RSVP removal only matches documents where userID is not checked in.
func (r *eventRepository) RemoveFromSet(ctx context.Context, id string, field domain.SetField, userID string) error {
	key, err := setKey(field)
	if err != nil {
		return err
	}
	filter := bson.M{"_id": id}
	guard := error(nil)
	if field == domain.FieldRSVPs {
		filter["checkedIn"] = bson.M{"$ne": userID}
		guard = domain.ErrCheckedIn
	}
	update := bson.M{
		"$pull": bson.M{key: userID},
		"$set":  bson.M{"updatedAt": r.clock.Now().UTC()},
	}
	return r.updateGuarded(ctx, id, filter, update, guard)
}

// updateGuarded runs update against filter. When nothing matched it tells a
// missing document apart from a failed guard.
func (r *eventRepository) updateGuarded(ctx context.Context, id string, filter, update bson.M, guard error) error {
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if guard == nil {
		return domain.ErrNotFound
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return guard
}

func (r *eventRepository) listUpcoming(ctx context.Context) ([]*domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"date": bson.M{"$gte": r.clock.Now().UTC()}}, opts)
	if err != nil {
		return nil, translate(err)
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}
	events := make([]*domain.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}
	return events, nil
}

// WatchUpcoming re-runs the upcoming query whenever the collection's change
// stream fires, and on the resync interval. Deployments without change
// streams (standalone servers) fall back to the resync interval alone.
func (r *eventRepository) WatchUpcoming(ctx context.Context) (domain.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	feed := watch.NewFeed(cancel)

	changes := make(chan struct{}, 1)
	stream, err := r.col.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		r.logger.Warn("change stream unavailable, polling upcoming events", "interval", r.resync, "err", err)
	} else {
		go func() {
			defer stream.Close(context.Background())
			for stream.Next(ctx) {
				select {
				case changes <- struct{}{}:
				default:
				}
			}
			if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("change stream ended", "err", err)
			}
		}()
	}

	refresh := func() {
		events, err := r.listUpcoming(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Warn("upcoming events query failed", "err", err)
		}
		feed.Publish(domain.EventsSnapshot{Events: events, Err: err})
	}

	go func() {
		defer feed.Close()
		ticker := time.NewTicker(r.resync)
		defer ticker.Stop()

		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			case <-changes:
				refresh()
			}
		}
	}()
	return feed, nil
}

func (r *eventRepository) Ping(ctx context.Context) error {
	return translate(r.col.Database().Client().Ping(ctx, nil))
}
