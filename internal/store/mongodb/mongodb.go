// Package mongodb implements AppStore on a MongoDB collection. Documents keep
// the field names the service has always used (appName, senderEmail,
// apiGatewayKeyId, ...). Uniqueness is enforced by the indexes created in
// EnsureIndexes.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mickBoat00/email-service/internal/config"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/store"
)

func init() {
	store.Register(config.BackendMongoDB, func(ctx context.Context, cfg *config.Config) (store.AppStore, error) {
		return Connect(ctx, cfg.MongoDB)
	})
}

// Index names; also used to identify the violated field in E11000 errors.
const (
	indexAppName     = "uniq_appName"
	indexSenderEmail = "uniq_senderEmail"
	indexAPIKeyHash  = "uniq_apiKeyHash"
)

var indexFields = map[string]string{
	indexAppName:     store.FieldAppName,
	indexSenderEmail: store.FieldSenderEmail,
	indexAPIKeyHash:  store.FieldAPIKeyHash,
}

type appDocument struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	AppName         string             `bson:"appName"`
	SenderEmail     string             `bson:"senderEmail"`
	Status          string             `bson:"status"`
	APIKeyHash      *string            `bson:"apiKeyHash,omitempty"`
	APIGatewayKeyID *string            `bson:"apiGatewayKeyId,omitempty"`
	APIKeyCreatedAt *time.Time         `bson:"apiKeyCreatedAt,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (d *appDocument) toModel() *models.App {
	return &models.App{
		ID:            d.ID.Hex(),
		AppName:       d.AppName,
		SenderEmail:   d.SenderEmail,
		Status:        models.AppStatus(d.Status),
		APIKeyHash:    d.APIKeyHash,
		ExternalKeyID: d.APIGatewayKeyID,
		KeyCreatedAt:  d.APIKeyCreatedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// Store handles app record operations against a MongoDB collection
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials the cluster, verifies it with a ping and creates the indexes
func Connect(ctx context.Context, cfg config.MongoDBConfig) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := New(client.Database(cfg.Database).Collection(cfg.Collection))
	if err := s.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	log.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("mongodb app store ready")
	return s, nil
}

// New wraps an existing collection
func New(coll *mongo.Collection) *Store {
	return &Store{client: coll.Database().Client(), coll: coll}
}

// EnsureIndexes creates the unique indexes backing the uniqueness rules.
// The key hash index only covers string hashes, so apps without a key do not
// collide whether the field is absent or stored as null.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "appName", Value: 1}},
			Options: options.Index().SetName(indexAppName).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "senderEmail", Value: 1}},
			Options: options.Index().SetName(indexSenderEmail).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "apiKeyHash", Value: 1}},
			Options: options.Index().SetName(indexAPIKeyHash).SetUnique(true).
				SetPartialFilterExpression(bson.M{"apiKeyHash": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func mapError(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		msg := err.Error()
		for index, field := range indexFields {
			if strings.Contains(msg, index) {
				return &store.DuplicateError{Field: field}
			}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, store.ErrInvalidID
	}
	return oid, nil
}

func (s *Store) Insert(ctx context.Context, app *models.App) error {
	doc := appDocument{
		ID:          primitive.NewObjectID(),
		AppName:     app.AppName,
		SenderEmail: app.SenderEmail,
		Status:      string(app.Status),
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return mapError(err, "insert app")
	}
	app.ID = doc.ID.Hex()
	return nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.App, error) {
	var doc appDocument
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*models.App, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *Store) FindByName(ctx context.Context, name string) (*models.App, error) {
	return s.findOne(ctx, bson.M{"appName": name})
}

func (s *Store) FindBySenderEmail(ctx context.Context, email string) (*models.App, error) {
	return s.findOne(ctx, bson.M{"senderEmail": email})
}

func (s *Store) FindByKeyHash(ctx context.Context, hash string) (*models.App, error) {
	if hash == "" {
		return nil, store.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"apiKeyHash": hash})
}

func (s *Store) List(ctx context.Context) ([]*models.App, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer cur.Close(ctx)

	var docs []appDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode apps: %w", err)
	}
	apps := make([]*models.App, 0, len(docs))
	for i := range docs {
		apps = append(apps, docs[i].toModel())
	}
	return apps, nil
}

// ActivateKey matches on the previously observed apiGatewayKeyId; a nil
// filter value matches documents where the field is absent.
func (s *Store) ActivateKey(ctx context.Context, id, expectedKeyID string, grant models.KeyGrant) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": oid, "apiGatewayKeyId": nil}
	if expectedKeyID != "" {
		filter["apiGatewayKeyId"] = expectedKeyID
	}
	update := bson.M{"$set": bson.M{
		"apiGatewayKeyId": grant.ExternalKeyID,
		"apiKeyHash":      grant.KeyHash,
		"apiKeyCreatedAt": grant.CreatedAt,
		"status":          string(models.StatusActive),
		"updatedAt":       grant.CreatedAt,
	}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapError(err, "activate key")
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to check app: %w", err)
	}
	if n > 0 {
		return store.ErrStaleKey
	}
	return store.ErrNotFound
}

func (s *Store) ClearKey(ctx context.Context, id string, now time.Time) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	update := bson.M{
		"$unset": bson.M{"apiGatewayKeyId": "", "apiKeyHash": "", "apiKeyCreatedAt": ""},
		"$set":   bson.M{"status": string(models.StatusInactive), "updatedAt": now},
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to clear key: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
