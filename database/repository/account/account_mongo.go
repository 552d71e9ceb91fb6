package accountRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"corebill/database"
	"corebill/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAccountRepo implements AccountRepository using MongoDB.
type MongoAccountRepo struct {
	accounts *mongo.Collection
}

// NewMongoAccountRepo creates a new AccountRepository instance.
func NewMongoAccountRepo() AccountRepository {
	repo := &MongoAccountRepo{
		accounts: database.DB().Collection("accounts"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create account indexes: %v\n", err)
	}
	return repo
}

func (r *MongoAccountRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "external_key", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.accounts.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

type accountDoc struct {
	ID                  string    `bson:"id"`
	ExternalKey         string    `bson:"external_key"`
	Name                string    `bson:"name"`
	Currency            string    `bson:"currency"`
	TimeZone            string    `bson:"time_zone"`
	BillCycleDay        int       `bson:"bill_cycle_day"`
	PaymentMethodID     string    `bson:"payment_method_id,omitempty"`
	NotifiedForInvoices bool      `bson:"notified_for_invoices"`
	FCMToken            string    `bson:"fcm_token,omitempty"`
	CreatedAt           time.Time `bson:"created_at"`
	UpdatedAt           time.Time `bson:"updated_at"`
}

func toAccountDoc(a *models.Account) accountDoc {
	doc := accountDoc{
		ID:                  a.ID.String(),
		ExternalKey:         a.ExternalKey,
		Name:                a.Name,
		Currency:            string(a.Currency),
		TimeZone:            a.TimeZone,
		BillCycleDay:        a.BillCycleDay,
		NotifiedForInvoices: a.NotifiedForInvoices,
		FCMToken:            a.FCMToken,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
	if a.PaymentMethodID != nil {
		doc.PaymentMethodID = a.PaymentMethodID.String()
	}
	return doc
}

func fromAccountDoc(doc accountDoc) (*models.Account, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("bad account id %q: %w", doc.ID, err)
	}
	account := &models.Account{
		ID:                  id,
		ExternalKey:         doc.ExternalKey,
		Name:                doc.Name,
		Currency:            models.Currency(doc.Currency),
		TimeZone:            doc.TimeZone,
		BillCycleDay:        doc.BillCycleDay,
		NotifiedForInvoices: doc.NotifiedForInvoices,
		FCMToken:            doc.FCMToken,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	if doc.PaymentMethodID != "" {
		pmID, err := uuid.Parse(doc.PaymentMethodID)
		if err != nil {
			return nil, fmt.Errorf("bad payment method id %q: %w", doc.PaymentMethodID, err)
		}
		account.PaymentMethodID = &pmID
	}
	return account, nil
}

func (r *MongoAccountRepo) findOne(ctx context.Context, filter bson.M) (*models.Account, error) {
	var doc accountDoc
	err := r.accounts.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return fromAccountDoc(doc)
}

// GetAccount retrieves an account by id.
func (r *MongoAccountRepo) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"id": id.String()})
}

// GetAccountByExternalKey retrieves an account by its external key.
func (r *MongoAccountRepo) GetAccountByExternalKey(ctx context.Context, externalKey string) (*models.Account, error) {
	return r.findOne(ctx, bson.M{"external_key": externalKey})
}

// SaveAccount upserts an account by id.
func (r *MongoAccountRepo) SaveAccount(ctx context.Context, account *models.Account) error {
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	if _, err := r.accounts.ReplaceOne(ctx, bson.M{"id": account.ID.String()}, toAccountDoc(account), opts); err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}
	return nil
}
