package orders

type CreateOrderRequest struct {
	Currency string               `json:"currency" validate:"required,len=3"`
	Note     *string              `json:"note,omitempty"`
	Items    []CreateOrderItemReq `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderItemReq struct {
	ProductID      int64  `json:"product_id" validate:"required,gt=0"`
	VariantID      *int64 `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	SKU            string `json:"sku" validate:"required,max=64"`
	Quantity       int64  `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
}
