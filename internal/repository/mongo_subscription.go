package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// MongoSubscriptionRepository implements domain.SubscriptionRepository
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

func NewMongoSubscriptionRepository(db *mongo.Database) *MongoSubscriptionRepository {
	coll := db.Collection("subscriptions")
	return &MongoSubscriptionRepository{
		collection: coll,
	}
}

func (r *MongoSubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	objID := primitive.NewObjectID()
	sub.ID = objID.Hex()

	doc := bson.M{
		"_id":            objID,
		"client_id":      sub.ClientID,
		"name":           sub.Name,
		"amount":         sub.Amount.String(),
		"billing_day":    sub.BillingDay,
		"payment_method": sub.PaymentMethod,
		"active":         sub.Active,
		"created_at":     sub.CreatedAt,
		"updated_at":     sub.UpdatedAt,
	}
	if sub.NextBillingDate != nil {
		doc["next_billing_date"] = sub.NextBillingDate.UTC()
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *MongoSubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid subscription id: %w", err)
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return mapBsonToSubscription(raw), nil
}

func (r *MongoSubscriptionRepository) ListActiveByBillingDay(ctx context.Context, day int) ([]*domain.Subscription, error) {
	filter := bson.M{
		"active":      true,
		"billing_day": day,
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions by billing day: %w", err)
	}
	defer cursor.Close(ctx)

	var subs []*domain.Subscription
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		subs = append(subs, mapBsonToSubscription(raw))
	}
	return subs, nil
}

func (r *MongoSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	objID, err := primitive.ObjectIDFromHex(sub.ID)
	if err != nil {
		return fmt.Errorf("invalid subscription id: %w", err)
	}

	sub.UpdatedAt = time.Now().UTC()

	set := bson.M{
		"name":           sub.Name,
		"amount":         sub.Amount.String(),
		"billing_day":    sub.BillingDay,
		"payment_method": sub.PaymentMethod,
		"active":         sub.Active,
		"updated_at":     sub.UpdatedAt,
	}
	if sub.NextBillingDate != nil {
		set["next_billing_date"] = sub.NextBillingDate.UTC()
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoSubscriptionRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid subscription id: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapBsonToSubscription(raw bson.M) *domain.Subscription {
	sub := &domain.Subscription{}

	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		sub.ID = oid.Hex()
	}
	if clientID, ok := raw["client_id"].(string); ok {
		sub.ClientID = clientID
	}
	if name, ok := raw["name"].(string); ok {
		sub.Name = name
	}
	if amount, ok := raw["amount"].(string); ok {
		if dec, err := decimal.NewFromString(amount); err == nil {
			sub.Amount = dec
		}
	} else if amount, ok := raw["amount"].(float64); ok {
		sub.Amount = decimal.NewFromFloat(amount)
	}
	if day, ok := raw["billing_day"].(int32); ok {
		sub.BillingDay = int(day)
	} else if day, ok := raw["billing_day"].(int64); ok {
		sub.BillingDay = int(day)
	}
	if method, ok := raw["payment_method"].(string); ok {
		sub.PaymentMethod = method
	}
	if active, ok := raw["active"].(bool); ok {
		sub.Active = active
	}
	if next, ok := raw["next_billing_date"].(primitive.DateTime); ok {
		t := next.Time()
		sub.NextBillingDate = &t
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		sub.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		sub.UpdatedAt = updated.Time()
	}

	return sub
}
