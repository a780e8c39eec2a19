package inventory

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/store"
)

const stockTable = "stock_levels"

func seedStock(t *testing.T, db *store.Memory, itemID, storeID string, qty int64, managed bool) {
	t.Helper()
	err := db.Seed(store.Key{Table: stockTable, ID: itemID}, StockLevel{
		ItemID:      itemID,
		StoreID:     storeID,
		ManageStock: managed,
		Quantity:    qty,
	})
	require.NoError(t, err)
}

func stockQuantity(t *testing.T, db *store.Memory, itemID string) int64 {
	t.Helper()
	var stock StockLevel
	require.NoError(t, db.Get(context.Background(), store.Key{Table: stockTable, ID: itemID}, &stock))
	units, err := stock.Units()
	require.NoError(t, err)
	return units
}

func TestDeduct_StagesQuantities(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-1", 10, true)
	seedStock(t, db, "fries", "store-1", 4, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{
			{ItemID: "burger", Quantity: 3},
			{ItemID: "fries", Quantity: 4},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stockQuantity(t, db, "burger"))
	assert.Equal(t, int64(0), stockQuantity(t, db, "fries"))
}

func TestDeduct_ItemNotFound(t *testing.T) {
	db := store.NewMemory()
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{{ItemID: "ghost", Quantity: 1}})
	})

	var nf *ItemNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ItemID)
}

func TestDeduct_StoreMismatch(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-2", 10, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{{ItemID: "burger", Quantity: 1}})
	})

	var sm *StoreMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "store-2", sm.GotStore)
	assert.Equal(t, "store-1", sm.WantStore)
}

func TestDeduct_SkipsUntrackedItems(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "soda", "store-1", 2, false)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{{ItemID: "soda", Quantity: 50}})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stockQuantity(t, db, "soda"), "untracked stock must stay put")
}

func TestDeduct_MalformedQuantity(t *testing.T) {
	db := store.NewMemory()
	db.SeedRaw(store.Key{Table: stockTable, ID: "burger"}, store.Item{
		"store_id":     &types.AttributeValueMemberS{Value: "store-1"},
		"manage_stock": &types.AttributeValueMemberBOOL{Value: true},
		"quantity":     &types.AttributeValueMemberS{Value: "plenty"},
	})
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{{ItemID: "burger", Quantity: 1}})
	})

	var mf *MalformedStockError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "burger", mf.ItemID)
}

func TestDeduct_InsufficientStock(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-1", 2, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{{ItemID: "burger", Quantity: 5}})
	})

	var is *InsufficientStockError
	require.ErrorAs(t, err, &is)
	assert.Equal(t, int64(5), is.Required)
	assert.Equal(t, int64(2), is.Available)
	assert.Equal(t, int64(2), stockQuantity(t, db, "burger"), "rejected deduction must not write")
}

func TestDeduct_AtomicAcrossLines(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-1", 10, true)
	seedStock(t, db, "fries", "store-1", 1, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Deduct(ctx, tx, "store-1", []Line{
			{ItemID: "burger", Quantity: 2}, // would succeed alone
			{ItemID: "fries", Quantity: 3},  // insufficient
		})
	})

	var is *InsufficientStockError
	require.ErrorAs(t, err, &is)
	assert.Equal(t, int64(10), stockQuantity(t, db, "burger"), "no partial commit")
	assert.Equal(t, int64(1), stockQuantity(t, db, "fries"))
}

func TestRestore_AddsQuantitiesBack(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-1", 10, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Restore(ctx, tx, "store-1", []Line{{ItemID: "burger", Quantity: 3}})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(13), stockQuantity(t, db, "burger"))
}

func TestRestore_ToleratesMissingItem(t *testing.T) {
	db := store.NewMemory()
	seedStock(t, db, "burger", "store-1", 10, true)
	svc := NewService(stockTable, zap.NewNop())

	// "deleted" item in the middle of the batch must not abort the rest
	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Restore(ctx, tx, "store-1", []Line{
			{ItemID: "retired-item", Quantity: 2},
			{ItemID: "burger", Quantity: 3},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(13), stockQuantity(t, db, "burger"))
}

func TestRestore_ToleratesMalformedStock(t *testing.T) {
	db := store.NewMemory()
	db.SeedRaw(store.Key{Table: stockTable, ID: "weird"}, store.Item{
		"store_id":     &types.AttributeValueMemberS{Value: "store-1"},
		"manage_stock": &types.AttributeValueMemberBOOL{Value: true},
		"quantity":     &types.AttributeValueMemberS{Value: "NaN"},
	})
	seedStock(t, db, "burger", "store-1", 1, true)
	svc := NewService(stockTable, zap.NewNop())

	err := db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Restore(ctx, tx, "store-1", []Line{
			{ItemID: "weird", Quantity: 2},
			{ItemID: "burger", Quantity: 2},
		})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), stockQuantity(t, db, "burger"))
}
