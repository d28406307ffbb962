package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// MongoInvoiceRepository implements domain.InvoiceRepository
type MongoInvoiceRepository struct {
	collection *mongo.Collection
}

// NewMongoInvoiceRepository creates a new invoice repository
// Note: No index creation to ensure zero-impact deployment on existing collections
func NewMongoInvoiceRepository(db *mongo.Database) *MongoInvoiceRepository {
	coll := db.Collection("invoices")
	return &MongoInvoiceRepository{
		collection: coll,
	}
}

func (r *MongoInvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	if invoice.Status == "" {
		invoice.Status = domain.InvoiceStatusPending
	}

	objID := primitive.NewObjectID()
	invoice.ID = objID.Hex()

	doc := bson.M{
		"_id":             objID,
		"client_id":       invoice.ClientID,
		"subscription_id": invoice.SubscriptionID,
		"title":           invoice.Title,
		"amount":          invoice.Amount.String(),
		"due_date":        invoice.DueDate,
		"status":          invoice.Status,
		"payment_method":  invoice.PaymentMethod,
		"notifications":   notificationDocs(invoice.Notifications),
		"sent":            invoice.Sent,
		"created_at":      invoice.CreatedAt,
		"updated_at":      invoice.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *MongoInvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid invoice id: %w", err)
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return mapBsonToInvoice(raw), nil
}

func (r *MongoInvoiceRepository) GetByProviderID(ctx context.Context, providerID string) (*domain.Invoice, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"provider_id": providerID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice by provider id: %w", err)
	}
	return mapBsonToInvoice(raw), nil
}

func (r *MongoInvoiceRepository) ListByClient(ctx context.Context, clientID string) ([]*domain.Invoice, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID})
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by client: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []*domain.Invoice
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		invoices = append(invoices, mapBsonToInvoice(raw))
	}
	return invoices, nil
}

func (r *MongoInvoiceRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time) ([]*domain.Invoice, error) {
	filter := bson.M{
		"status":   domain.InvoiceStatusPending,
		"due_date": bson.M{"$lt": cutoff},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invoices: %w", err)
	}
	defer cursor.Close(ctx)

	var invoices []*domain.Invoice
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		invoices = append(invoices, mapBsonToInvoice(raw))
	}
	return invoices, nil
}

func (r *MongoInvoiceRepository) ExistsForSubscriptionBetween(ctx context.Context, subscriptionID string, from, to time.Time) (bool, error) {
	filter := bson.M{
		"subscription_id": subscriptionID,
		"due_date": bson.M{
			"$gte": from,
			"$lt":  to,
		},
	}
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to count subscription invoices: %w", err)
	}
	return count > 0, nil
}

func (r *MongoInvoiceRepository) SetGatewayData(ctx context.Context, id, providerID, paymentURL, paymentCode string, details json.RawMessage, publicLink string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"provider_id":     providerID,
			"payment_url":     paymentURL,
			"payment_code":    paymentCode,
			"payment_details": string(details),
			"public_link":     publicLink,
			"updated_at":      time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to set gateway data: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoInvoiceRepository) ApplyStatus(ctx context.Context, id, status string, paidAt *time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}

	// paid date is write-once: replayed notifications never move it
	if paidAt != nil {
		filter := bson.M{
			"_id":       objID,
			"paid_date": bson.M{"$in": []interface{}{nil, primitive.Null{}}},
		}
		_, err := r.collection.UpdateOne(ctx, filter, bson.M{
			"$set": bson.M{"paid_date": paidAt.UTC()},
		})
		if err != nil {
			return fmt.Errorf("failed to set paid date: %w", err)
		}
	}
	return nil
}

func (r *MongoInvoiceRepository) AppendNotifications(ctx context.Context, id string, entries []domain.NotificationRecord, markSent bool) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	update := bson.M{
		"$push": bson.M{
			"notifications": bson.M{"$each": notificationDocs(entries)},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	// sent is only ever raised, never lowered
	if markSent {
		update["$set"].(bson.M)["sent"] = true
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to append notifications: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoInvoiceRepository) Update(ctx context.Context, invoice *domain.Invoice) error {
	objID, err := primitive.ObjectIDFromHex(invoice.ID)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	invoice.UpdatedAt = time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"title":          invoice.Title,
			"amount":         invoice.Amount.String(),
			"due_date":       invoice.DueDate,
			"status":         invoice.Status,
			"payment_method": invoice.PaymentMethod,
			"updated_at":     invoice.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoInvoiceRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid invoice id: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notificationDocs(entries []domain.NotificationRecord) []bson.M {
	docs := make([]bson.M, 0, len(entries))
	for _, e := range entries {
		doc := bson.M{
			"channel": e.Channel,
			"sent_at": e.SentAt,
			"status":  e.Status,
		}
		if e.Error != "" {
			doc["error"] = e.Error
		}
		if len(e.Meta) > 0 {
			doc["meta"] = e.Meta
		}
		docs = append(docs, doc)
	}
	return docs
}

func mapBsonToInvoice(raw bson.M) *domain.Invoice {
	invoice := &domain.Invoice{}

	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		invoice.ID = oid.Hex()
	}
	if clientID, ok := raw["client_id"].(string); ok {
		invoice.ClientID = clientID
	}
	if subID, ok := raw["subscription_id"].(string); ok {
		invoice.SubscriptionID = subID
	}
	if title, ok := raw["title"].(string); ok {
		invoice.Title = title
	}
	if amount, ok := raw["amount"].(string); ok {
		if dec, err := decimal.NewFromString(amount); err == nil {
			invoice.Amount = dec
		}
	} else if amount, ok := raw["amount"].(float64); ok {
		invoice.Amount = decimal.NewFromFloat(amount)
	}
	if dueDate, ok := raw["due_date"].(primitive.DateTime); ok {
		invoice.DueDate = dueDate.Time()
	}
	if paidDate, ok := raw["paid_date"].(primitive.DateTime); ok {
		t := paidDate.Time()
		invoice.PaidDate = &t
	}
	if status, ok := raw["status"].(string); ok {
		invoice.Status = status
	}
	if method, ok := raw["payment_method"].(string); ok {
		invoice.PaymentMethod = method
	}
	if url, ok := raw["payment_url"].(string); ok {
		invoice.PaymentURL = url
	}
	if code, ok := raw["payment_code"].(string); ok {
		invoice.PaymentCode = code
	}
	if details, ok := raw["payment_details"].(string); ok && details != "" {
		invoice.PaymentDetails = json.RawMessage(details)
	}
	if providerID, ok := raw["provider_id"].(string); ok {
		invoice.ProviderID = providerID
	}
	if link, ok := raw["public_link"].(string); ok {
		invoice.PublicLink = link
	}
	if sent, ok := raw["sent"].(bool); ok {
		invoice.Sent = sent
	}
	if entries, ok := raw["notifications"].(primitive.A); ok {
		for _, entry := range entries {
			doc, ok := entry.(bson.M)
			if !ok {
				continue
			}
			record := domain.NotificationRecord{}
			if channel, ok := doc["channel"].(string); ok {
				record.Channel = channel
			}
			if sentAt, ok := doc["sent_at"].(primitive.DateTime); ok {
				record.SentAt = sentAt.Time()
			}
			if status, ok := doc["status"].(string); ok {
				record.Status = status
			}
			if errMsg, ok := doc["error"].(string); ok {
				record.Error = errMsg
			}
			if meta, ok := doc["meta"].(bson.M); ok {
				record.Meta = map[string]interface{}(meta)
			}
			invoice.Notifications = append(invoice.Notifications, record)
		}
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		invoice.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		invoice.UpdatedAt = updated.Time()
	}

	return invoice
}
