package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ameernasser/auctionhouse/internal/observability"
)

// CatalogRepository is the vehicle read model the registry consults before
// listing an auction.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("vehicles"),
		logger: logger,
	}
}

type VehicleDoc struct {
	ID           uuid.UUID `bson:"_id" json:"vehicle_id"`
	Make         string    `bson:"make" json:"make"`
	Model        string    `bson:"model" json:"model"`
	Year         int       `bson:"year" json:"year"`
	Mileage      int       `bson:"mileage" json:"mileage"`
	VIN          string    `bson:"vin" json:"vin"`
	Color        string    `bson:"color" json:"color"`
	Transmission string    `bson:"transmission" json:"transmission"`
	Description  string    `bson:"description" json:"description"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at,omitempty"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at,omitempty"`
}

func (c *CatalogRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*VehicleDoc, error) {
	var vehicle VehicleDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (c *CatalogRepository) VehicleExists(ctx context.Context, id uuid.UUID) (bool, error) {
	count, err := c.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		c.logger.Error("failed to look up vehicle", err)
		return false, err
	}
	return count > 0, nil
}

func (c *CatalogRepository) CreateVehicle(ctx context.Context, vehicle VehicleDoc) error {
	vehicle.CreatedAt = time.Now()
	vehicle.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, vehicle)
	if err != nil {
		c.logger.Error("failed to create vehicle", err)
		return err
	}
	return nil
}
