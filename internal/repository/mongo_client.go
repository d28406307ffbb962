package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// MongoClientRepository implements domain.ClientRepository
type MongoClientRepository struct {
	collection *mongo.Collection
}

func NewMongoClientRepository(db *mongo.Database) *MongoClientRepository {
	coll := db.Collection("clients")
	return &MongoClientRepository{
		collection: coll,
	}
}

func (r *MongoClientRepository) Create(ctx context.Context, client *domain.Client) error {
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	objID := primitive.NewObjectID()
	client.ID = objID.Hex()

	doc := bson.M{
		"_id":        objID,
		"name":       client.Name,
		"email":      client.Email,
		"phone":      client.Phone,
		"document":   client.Document,
		"address":    addressDoc(client.Address),
		"active":     client.Active,
		"created_at": client.CreatedAt,
		"updated_at": client.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (r *MongoClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid client id: %w", err)
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return mapBsonToClient(raw), nil
}

func (r *MongoClientRepository) ListActive(ctx context.Context) ([]*domain.Client, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}
	defer cursor.Close(ctx)

	var clients []*domain.Client
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		clients = append(clients, mapBsonToClient(raw))
	}
	return clients, nil
}

func (r *MongoClientRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Client, error) {
	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		objID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid client id %q: %w", id, err)
		}
		objIDs = append(objIDs, objID)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer cursor.Close(ctx)

	var clients []*domain.Client
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		clients = append(clients, mapBsonToClient(raw))
	}
	return clients, nil
}

func (r *MongoClientRepository) Update(ctx context.Context, client *domain.Client) error {
	objID, err := primitive.ObjectIDFromHex(client.ID)
	if err != nil {
		return fmt.Errorf("invalid client id: %w", err)
	}

	client.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"name":       client.Name,
			"email":      client.Email,
			"phone":      client.Phone,
			"document":   client.Document,
			"address":    addressDoc(client.Address),
			"active":     client.Active,
			"updated_at": client.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoClientRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid client id: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func addressDoc(a domain.Address) bson.M {
	return bson.M{
		"zip_code":   a.ZipCode,
		"street":     a.Street,
		"number":     a.Number,
		"complement": a.Complement,
		"district":   a.District,
		"city":       a.City,
		"state":      a.State,
	}
}

func mapBsonToClient(raw bson.M) *domain.Client {
	client := &domain.Client{}

	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		client.ID = oid.Hex()
	}
	if name, ok := raw["name"].(string); ok {
		client.Name = name
	}
	if email, ok := raw["email"].(string); ok {
		client.Email = email
	}
	if phone, ok := raw["phone"].(string); ok {
		client.Phone = phone
	}
	if document, ok := raw["document"].(string); ok {
		client.Document = document
	}
	if addr, ok := raw["address"].(bson.M); ok {
		client.Address = mapBsonToAddress(addr)
	}
	if active, ok := raw["active"].(bool); ok {
		client.Active = active
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		client.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		client.UpdatedAt = updated.Time()
	}

	return client
}

func mapBsonToAddress(raw bson.M) domain.Address {
	addr := domain.Address{}
	if v, ok := raw["zip_code"].(string); ok {
		addr.ZipCode = v
	}
	if v, ok := raw["street"].(string); ok {
		addr.Street = v
	}
	if v, ok := raw["number"].(string); ok {
		addr.Number = v
	}
	if v, ok := raw["complement"].(string); ok {
		addr.Complement = v
	}
	if v, ok := raw["district"].(string); ok {
		addr.District = v
	}
	if v, ok := raw["city"].(string); ok {
		addr.City = v
	}
	if v, ok := raw["state"].(string); ok {
		addr.State = v
	}
	return addr
}
