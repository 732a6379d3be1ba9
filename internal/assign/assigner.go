package assign

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/models"
	"github.com/safar/marketplace-settlement/internal/store"
)

// ErrNoCourier means no active courier serves the city. The order is left unassigned.
var ErrNoCourier = errors.New("no active courier available")

// Assigner picks the least busy active courier in a city for an order.
type Assigner struct {
	db *sql.DB
}

func NewAssigner(db *sql.DB) *Assigner {
	return &Assigner{db: db}
}

func txOptions() database.TxOptions {
	return database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}
}

// AssignByCity assigns the order to the active courier in city with the
// fewest active orders, ties going to the lowest id. The order keeps its
// status.
func (a *Assigner) AssignByCity(ctx context.Context, orderID int64, city string) (*models.Courier, error) {
	if strings.TrimSpace(city) == "" {
		log.Printf("assign: order #%d has no city to match couriers", orderID)
		return nil, ErrNoCourier
	}

	var chosen *models.Courier
	err := database.WithRetry(ctx, a.db, txOptions(), func(tx *sql.Tx) error {
		var err error
		chosen, err = assignInTx(ctx, tx, orderID, city)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNoCourier) {
			log.Printf("assign: no active courier in %q for order #%d", city, orderID)
		}
		return nil, err
	}

	log.Printf("assign: order #%d -> courier #%d (%s)", orderID, chosen.ID, chosen.City)
	return chosen, nil
}

func assignInTx(ctx context.Context, tx *sql.Tx, orderID int64, city string) (*models.Courier, error) {
	order, err := store.LockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	couriers, err := store.ActiveCouriersInCity(ctx, tx, city)
	if err != nil {
		return nil, err
	}
	if len(couriers) == 0 {
		return nil, ErrNoCourier
	}

	ids := make([]int64, len(couriers))
	for i, c := range couriers {
		ids[i] = c.ID
	}

	counts, err := store.ActiveOrderCounts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	chosen := pickLeastLoaded(couriers, counts)

	if err := store.AssignCourier(ctx, tx, orderID, chosen.ID, order.Status); err != nil {
		return nil, err
	}

	return &chosen, nil
}

// pickLeastLoaded returns the courier with the smallest count. couriers must
// be sorted by id, so the first minimum found wins ties.
func pickLeastLoaded(couriers []models.Courier, counts map[int64]int) models.Courier {
	best := couriers[0]
	bestCount := counts[best.ID]

	for _, c := range couriers[1:] {
		if n := counts[c.ID]; n < bestCount {
			best, bestCount = c, n
		}
	}

	return best
}

// AssignForSeller returns the order's courier if it already has one and
// otherwise assigns by the seller's city. A zero sellerID uses the first
// seller on the order that has a city.
func (a *Assigner) AssignForSeller(ctx context.Context, orderID, sellerID int64) (*models.Courier, error) {
	q := database.Conn(ctx, a.db)

	order, err := store.GetOrder(ctx, q, orderID)
	if err != nil {
		return nil, err
	}

	if order.CourierID != nil {
		return store.GetCourier(ctx, q, *order.CourierID)
	}

	var seller *models.Seller
	if sellerID == 0 {
		seller, err = firstSellerWithCity(ctx, q, orderID)
	} else {
		seller, err = store.GetSeller(ctx, q, sellerID)
	}
	if err != nil {
		return nil, err
	}

	return a.AssignByCity(ctx, orderID, seller.City)
}

func firstSellerWithCity(ctx context.Context, q database.Querier, orderID int64) (*models.Seller, error) {
	items, err := store.GetOrderItems(ctx, q, orderID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	for _, item := range items {
		id, ok := item.EffectiveSellerID()
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		seller, err := store.GetSeller(ctx, q, id)
		if errors.Is(err, database.ErrSellerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(seller.City) != "" {
			return seller, nil
		}
	}

	log.Printf("assign: order #%d has no seller to derive a city from", orderID)
	return nil, database.ErrSellerNotFound
}
