package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artrise/models"
	"artrise/models/modeltest"
	"artrise/notify"
)

type saleFixture struct {
	seller  models.User
	buyer   models.User
	artwork models.Artwork
	order   models.Order
}

// newSale 建立一件已結標售出的作品與待付款訂單
func newSale(t *testing.T, ts *testServer) saleFixture {
	t.Helper()
	seller := modeltest.CreateUser(t, ts.db, "seller", models.RoleSeller)
	buyer := modeltest.CreateUser(t, ts.db, "buyer", models.RoleBuyer)
	auction := modeltest.CreateAuction(t, ts.db, seller, func(a *models.Auction) {
		a.EndTime = time.Now().UTC().Add(-time.Minute)
	})
	artwork := modeltest.CreateArtwork(t, ts.db, auction, func(a *models.Artwork) {
		a.Status = models.ArtworkSold
		a.EndPrice = decimal.NewNullDecimal(decimal.NewFromInt(150))
	})
	modeltest.CreateOffer(t, ts.db, artwork, buyer, 150)
	order := models.Order{
		ArtworkID: artwork.ID,
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		Amount:    decimal.NewFromInt(150),
		Currency:  "USD",
		Status:    models.OrderPending,
	}
	require.NoError(t, ts.db.Create(&order).Error)
	return saleFixture{seller: seller, buyer: buyer, artwork: artwork, order: order}
}

func TestOrders(t *testing.T) {
	ts := newTestServer(t)
	sale := newSale(t, ts)
	stranger := modeltest.CreateUser(t, ts.db, "stranger", models.RoleBuyer)
	orderPath := "/orders/" + sale.order.ID.String()

	w := ts.do(t, http.MethodGet, "/orders/me", nil, &sale.buyer)
	requireStatus(t, w, http.StatusOK)
	orders := decodeBody[map[string][]models.Order](t, w)["orders"]
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].Artwork)
	assert.Equal(t, sale.artwork.ID, orders[0].Artwork.ID)

	w = ts.do(t, http.MethodGet, "/orders/selling", nil, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decodeBody[map[string][]models.Order](t, w)["orders"], 1)

	w = ts.do(t, http.MethodGet, "/orders/selling", nil, &sale.buyer)
	requireStatus(t, w, http.StatusForbidden)

	tests := []struct {
		name   string
		user   models.User
		status int
	}{
		{name: "買家", user: sale.buyer, status: http.StatusOK},
		{name: "賣家", user: sale.seller, status: http.StatusOK},
		{name: "其他人", user: stranger, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, orderPath, nil, &tt.user)
			requireStatus(t, w, tt.status)
		})
	}

	w = ts.do(t, http.MethodPatch, orderPath+"/status", map[string]any{"status": "shipped"}, &sale.seller)
	requireStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPatch, orderPath+"/status", map[string]any{"status": "paid", "paymentReference": "wire-42"}, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	var stored models.Order
	require.NoError(t, ts.db.Where("id = ?", sale.order.ID).Take(&stored).Error)
	assert.Equal(t, models.OrderPaid, stored.Status)
	assert.Equal(t, "wire-42", stored.PaymentReference)
}

func TestCreatePayment(t *testing.T) {
	ts := newTestServer(t)
	sale := newSale(t, ts)
	request := func(amount string) map[string]any {
		return map[string]any{"orderId": sale.order.ID, "amount": amount, "method": "card", "reference": "ch_1"}
	}

	w := ts.do(t, http.MethodPost, "/payments", request("150"), &sale.seller)
	requireStatus(t, w, http.StatusForbidden)

	w = ts.do(t, http.MethodPost, "/payments", request("149.99"), &sale.buyer)
	requireStatus(t, w, http.StatusBadRequest)

	w = ts.do(t, http.MethodPost, "/payments", map[string]any{"orderId": sale.order.ID, "amount": "150", "currency": "EUR", "method": "card"}, &sale.buyer)
	requireStatus(t, w, http.StatusBadRequest)

	// 付款失敗後訂單仍可再付款
	failed := request("150")
	failed["status"] = "failed"
	w = ts.do(t, http.MethodPost, "/payments", failed, &sale.buyer)
	requireStatus(t, w, http.StatusCreated)
	var stored models.Order
	require.NoError(t, ts.db.Where("id = ?", sale.order.ID).Take(&stored).Error)
	assert.Equal(t, models.OrderFailed, stored.Status)

	w = ts.do(t, http.MethodPost, "/payments", request("150.00"), &sale.buyer)
	requireStatus(t, w, http.StatusCreated)
	payment := decodeBody[map[string]models.Payment](t, w)["payment"]
	assert.Equal(t, models.PaymentSucceeded, payment.Status)
	assert.Equal(t, sale.buyer.ID, payment.PayerID)

	require.NoError(t, ts.db.Where("id = ?", sale.order.ID).Take(&stored).Error)
	assert.Equal(t, models.OrderPaid, stored.Status)
	assert.Equal(t, "ch_1", stored.PaymentReference)

	paid := ts.waitNotification(t, notify.KindOrderPaid, sale.seller.ID)
	assert.Equal(t, sale.order.ID, paid.OrderID)
	assert.True(t, decimalField(t, paid.Amount).Equal(dec(150)))

	w = ts.do(t, http.MethodPost, "/payments", request("150"), &sale.buyer)
	requireStatus(t, w, http.StatusConflict)

	w = ts.do(t, http.MethodGet, "/payments/order/"+sale.order.ID.String(), nil, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	assert.Len(t, decodeBody[map[string][]models.Payment](t, w)["payments"], 2)
}

func TestShipping(t *testing.T) {
	ts := newTestServer(t)
	sale := newSale(t, ts)
	otherSeller := modeltest.CreateUser(t, ts.db, "other", models.RoleSeller)
	artworkID := sale.artwork.ID.String()

	w := ts.do(t, http.MethodGet, "/shipping/verify/"+artworkID, nil, &sale.buyer)
	requireStatus(t, w, http.StatusOK)
	verify := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, verify["isWinner"])
	assert.True(t, decimalField(t, verify["amount"]).Equal(dec(150)))

	w = ts.do(t, http.MethodGet, "/shipping/verify/"+artworkID, nil, &otherSeller)
	requireStatus(t, w, http.StatusForbidden)
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["isWinner"])

	address := map[string]any{
		"artworkId":  sale.artwork.ID,
		"fullName":   "Bob Buyer",
		"line1":      "1 Main St",
		"city":       "Taipei",
		"postalCode": "100",
		"country":    "TW",
	}
	w = ts.do(t, http.MethodPost, "/shipping", address, &otherSeller)
	requireStatus(t, w, http.StatusForbidden)

	w = ts.do(t, http.MethodPost, "/shipping", address, &sale.buyer)
	requireStatus(t, w, http.StatusCreated)
	shipping := decodeBody[map[string]models.ShippingAddress](t, w)["shipping"]
	assert.Equal(t, models.ShippingPending, shipping.Status)

	w = ts.do(t, http.MethodPost, "/shipping", address, &sale.buyer)
	requireStatus(t, w, http.StatusConflict)

	w = ts.do(t, http.MethodGet, "/shipping/artwork/"+artworkID, nil, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	w = ts.do(t, http.MethodGet, "/shipping/artwork/"+artworkID, nil, &otherSeller)
	requireStatus(t, w, http.StatusForbidden)

	statusPath := "/shipping/" + shipping.ID.String() + "/status"
	w = ts.do(t, http.MethodPatch, statusPath, map[string]any{"status": "shipped"}, &sale.seller)
	requireStatus(t, w, http.StatusBadRequest)
	w = ts.do(t, http.MethodPatch, statusPath, map[string]any{"status": "shipped", "trackingNumber": "TRK1"}, &otherSeller)
	requireStatus(t, w, http.StatusForbidden)

	w = ts.do(t, http.MethodPatch, statusPath, map[string]any{"status": "shipped", "trackingNumber": "TRK1"}, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	var stored models.ShippingAddress
	require.NoError(t, ts.db.Where("id = ?", shipping.ID).Take(&stored).Error)
	assert.Equal(t, models.ShippingShipped, stored.Status)
	assert.Equal(t, "TRK1", stored.TrackingNumber)
	assert.NotNil(t, stored.ShippedAt)
	assert.Nil(t, stored.DeliveredAt)

	sent := ts.waitNotification(t, notify.KindShipmentSent, sale.buyer.ID)
	assert.Equal(t, "TRK1", sent.TrackingNumber)
	assert.Equal(t, sale.order.ID, sent.OrderID)

	w = ts.do(t, http.MethodPatch, statusPath, map[string]any{"status": "delivered"}, &sale.seller)
	requireStatus(t, w, http.StatusOK)
	require.NoError(t, ts.db.Where("id = ?", shipping.ID).Take(&stored).Error)
	assert.NotNil(t, stored.DeliveredAt)
	assert.Equal(t, "TRK1", stored.TrackingNumber)
}

func TestShipping_UnsoldArtwork(t *testing.T) {
	ts := newTestServer(t)
	seller := modeltest.CreateUser(t, ts.db, "seller", models.RoleSeller)
	buyer := modeltest.CreateUser(t, ts.db, "buyer", models.RoleBuyer)
	artwork := modeltest.CreateArtwork(t, ts.db, modeltest.CreateAuction(t, ts.db, seller))

	w := ts.do(t, http.MethodGet, "/shipping/verify/"+artwork.ID.String(), nil, &buyer)
	requireStatus(t, w, http.StatusForbidden)
	w = ts.do(t, http.MethodGet, "/shipping/verify/not-an-id", nil, &buyer)
	requireStatus(t, w, http.StatusBadRequest)
}
