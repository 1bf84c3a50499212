//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestCart_RequiresAuth(t *testing.T) {
	resp := doGet(t, "/api/cart")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCart_EmptyByDefault(t *testing.T) {
	resp := doGetAs(t, "it-cart-empty", "/api/cart")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	c := decodeJSON[cartResponse](t, resp)
	if len(c.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(c.Items))
	}
	if c.GrandTotal != 0 {
		t.Errorf("grandTotal: got %v, want 0", c.GrandTotal)
	}
}

func TestCart_AddAndTotals(t *testing.T) {
	const customer = "it-cart-add"
	t.Cleanup(func() { clearCart(t, customer) })

	c := addItem(t, customer, "prod-espresso-blend", 2)
	if len(c.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(c.Items))
	}
	if c.Subtotal != 29 {
		t.Errorf("subtotal: got %v, want 29", c.Subtotal)
	}
	if c.GrandTotal != 29 {
		t.Errorf("grandTotal: got %v, want 29", c.GrandTotal)
	}

	// Same product merges into the line.
	c = addItem(t, customer, "prod-espresso-blend", 1)
	if len(c.Items) != 1 || c.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line of 3, got %+v", c.Items)
	}
}

func TestCart_UpdateAndRemove(t *testing.T) {
	const customer = "it-cart-update"
	t.Cleanup(func() { clearCart(t, customer) })

	addItem(t, customer, "prod-croissant", 2)
	addItem(t, customer, "prod-sourdough", 1)

	resp := doJSONAs(t, customer, http.MethodPatch, "/api/cart/items/prod-croissant", map[string]any{
		"quantity": 4,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp)
	// 4 x 3.75 + 7.25
	if c.Subtotal != 22.25 {
		t.Errorf("subtotal: got %v, want 22.25", c.Subtotal)
	}

	resp = doJSONAs(t, customer, http.MethodDelete, "/api/cart/items/prod-sourdough", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	c = decodeJSON[cartResponse](t, resp)
	if len(c.Items) != 1 {
		t.Fatalf("expected 1 item after delete, got %d", len(c.Items))
	}

	// Setting quantity to zero removes the last line.
	resp = doJSONAs(t, customer, http.MethodPatch, "/api/cart/items/prod-croissant", map[string]any{
		"quantity": 0,
	})
	defer resp.Body.Close()
	c = decodeJSON[cartResponse](t, resp)
	if len(c.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(c.Items))
	}
}

func TestCart_UnknownProduct(t *testing.T) {
	resp := doJSONAs(t, "it-cart-missing", http.MethodPost, "/api/cart/items", map[string]any{
		"productId": "prod-nope",
		"quantity":  1,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != "product_not_found" {
		t.Errorf("code: got %q, want product_not_found", errResp.Code)
	}
}

func TestCart_InvalidQuantity(t *testing.T) {
	resp := doJSONAs(t, "it-cart-badqty", http.MethodPost, "/api/cart/items", map[string]any{
		"productId": "prod-croissant",
		"quantity":  0,
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCart_MembershipFreeUnits(t *testing.T) {
	// demo-customer carries the seeded membership: 4 free coffee units,
	// 2 free bakery units. Pricing only projects availability; nothing is
	// consumed until an order confirms, so clearing the cart afterwards
	// leaves the ledger untouched for other tests.
	const customer = "demo-customer"
	t.Cleanup(func() { clearCart(t, customer) })

	c := addItem(t, customer, "prod-espresso-blend", 2)
	if c.Items[0].FreeUnits != 2 {
		t.Fatalf("freeUnits: got %d, want 2", c.Items[0].FreeUnits)
	}
	if c.MembershipDiscount != 29 {
		t.Errorf("membershipDiscount: got %v, want 29", c.MembershipDiscount)
	}
	if c.GrandTotal != 0 {
		t.Errorf("grandTotal: got %v, want 0", c.GrandTotal)
	}

	// A third unit exceeds nothing: allocation covers only what remains.
	c = addItem(t, customer, "prod-single-origin", 3)
	var origin *cartItemResponse
	for i := range c.Items {
		if c.Items[i].ProductID == "prod-single-origin" {
			origin = &c.Items[i]
		}
	}
	if origin == nil {
		t.Fatal("prod-single-origin line not found")
	}
	if origin.FreeUnits != 2 {
		t.Errorf("freeUnits: got %d, want 2 (shared coffee pool)", origin.FreeUnits)
	}
}

func TestCart_PromotionMinimumNotMet(t *testing.T) {
	const customer = "it-promo-min"
	t.Cleanup(func() { clearCart(t, customer) })

	addItem(t, customer, "prod-croissant", 1)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "SAVE10",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != "minimum_not_met" {
		t.Errorf("code: got %q, want minimum_not_met", errResp.Code)
	}
}

func TestCart_PromotionUnknownCode(t *testing.T) {
	const customer = "it-promo-unknown"
	t.Cleanup(func() { clearCart(t, customer) })

	addItem(t, customer, "prod-croissant", 1)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "NOSUCHCODE",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != "code_not_found" {
		t.Errorf("code: got %q, want code_not_found", errResp.Code)
	}
}

func TestCart_ApplyPercentagePromotion(t *testing.T) {
	const customer = "it-promo-pct"
	t.Cleanup(func() { clearCart(t, customer) })

	// 3 x 22.00 = 66.00 clears the $50 minimum.
	addItem(t, customer, "prod-tote", 3)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "save10",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp)
	// Codes are normalized to their canonical form.
	if c.PromotionCode != "SAVE10" {
		t.Errorf("promotionCode: got %q, want SAVE10", c.PromotionCode)
	}
	if c.PromotionDiscount != 6.6 {
		t.Errorf("promotionDiscount: got %v, want 6.6", c.PromotionDiscount)
	}
	if c.GrandTotal != 59.4 {
		t.Errorf("grandTotal: got %v, want 59.4", c.GrandTotal)
	}

	// Removing items below the minimum silently detaches the code.
	del := doJSONAs(t, customer, http.MethodPatch, "/api/cart/items/prod-tote", map[string]any{
		"quantity": 1,
	})
	defer del.Body.Close()
	c = decodeJSON[cartResponse](t, del)
	if c.PromotionCode != "" {
		t.Errorf("promotionCode still attached: %q", c.PromotionCode)
	}
	if c.GrandTotal != 22 {
		t.Errorf("grandTotal: got %v, want 22", c.GrandTotal)
	}
}

func TestCart_FixedPromotionExcludesMarkdown(t *testing.T) {
	const customer = "it-promo-markdown"
	t.Cleanup(func() { clearCart(t, customer) })

	// Decaf is marked down and COFFEE5 excludes discounted items.
	addItem(t, customer, "prod-decaf", 1)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "COFFEE5",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != "nothing_eligible" {
		t.Errorf("code: got %q, want nothing_eligible", errResp.Code)
	}

	// Full-price coffee qualifies.
	addItem(t, customer, "prod-espresso-blend", 1)
	resp2 := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "COFFEE5",
	})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp2)
	if c.PromotionDiscount != 5 {
		t.Errorf("promotionDiscount: got %v, want 5", c.PromotionDiscount)
	}
	// 13.00 + 14.50 - 5.00
	if c.GrandTotal != 22.5 {
		t.Errorf("grandTotal: got %v, want 22.5", c.GrandTotal)
	}
}

func TestCart_CollectionScopedPromotion(t *testing.T) {
	const customer = "it-promo-gifts"
	t.Cleanup(func() { clearCart(t, customer) })

	// Coffee is not part of the gift-shop collection.
	addItem(t, customer, "prod-espresso-blend", 1)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "GIFTS15",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	errResp := decodeJSON[errorResponse](t, resp)
	if errResp.Code != "nothing_eligible" {
		t.Errorf("code: got %q, want nothing_eligible", errResp.Code)
	}

	// The mug is in the gift-shop collection; the discount covers it alone.
	addItem(t, customer, "prod-mug", 1)
	resp2 := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "GIFTS15",
	})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp2)
	// 15% of the 16.00 mug, never of the 14.50 coffee.
	if c.PromotionDiscount != 2.4 {
		t.Errorf("promotionDiscount: got %v, want 2.4", c.PromotionDiscount)
	}
	if c.GrandTotal != 28.1 {
		t.Errorf("grandTotal: got %v, want 28.1", c.GrandTotal)
	}
}

func TestCart_BuyTwoGetOneBakery(t *testing.T) {
	const customer = "it-promo-b2g1"
	t.Cleanup(func() { clearCart(t, customer) })

	addItem(t, customer, "prod-croissant", 3)

	resp := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "TREATYOURSELF",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp)
	// One croissant free per complete group of three.
	if c.PromotionDiscount != 3.75 {
		t.Errorf("promotionDiscount: got %v, want 3.75", c.PromotionDiscount)
	}
	if c.GrandTotal != 7.5 {
		t.Errorf("grandTotal: got %v, want 7.5", c.GrandTotal)
	}
}

func TestCart_RemovePromotion(t *testing.T) {
	const customer = "it-promo-remove"
	t.Cleanup(func() { clearCart(t, customer) })

	addItem(t, customer, "prod-croissant", 3)
	apply := doJSONAs(t, customer, http.MethodPost, "/api/cart/promotion", map[string]any{
		"code": "TREATYOURSELF",
	})
	apply.Body.Close()

	resp := doJSONAs(t, customer, http.MethodDelete, "/api/cart/promotion", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	c := decodeJSON[cartResponse](t, resp)
	if c.PromotionCode != "" || c.PromotionDiscount != 0 {
		t.Errorf("promotion not detached: %+v", c)
	}
	if c.GrandTotal != 11.25 {
		t.Errorf("grandTotal: got %v, want 11.25", c.GrandTotal)
	}
}
