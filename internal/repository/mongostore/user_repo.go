package mongostore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"campusattend/internal/domain"
)

type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Name      string    `bson:"name"`
	Role      string    `bson:"role"`
	PushToken string    `bson:"pushToken,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:        d.ID,
		Email:     d.Email,
		Name:      d.Name,
		Role:      domain.Role(d.Role),
		PushToken: d.PushToken,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type userRepository struct {
	col *mongo.Collection
}

// NewUserRepository returns a MongoDB-backed user store over col.
func NewUserRepository(col *mongo.Collection) domain.UserRepository {
	return &userRepository{col: col}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	doc := userDoc{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		PushToken: u.PushToken,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
	_, err := r.col.InsertOne(ctx, doc)
	return translate(err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc.toDomain(), nil
}

// ListByIDs returns the users that exist, in the order of ids. Unknown ids are skipped.
func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate(err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}
	byID := make(map[string]*domain.User, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.toDomain()
	}
	users := make([]*domain.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
			delete(byID, id)
		}
	}
	return users, nil
}
