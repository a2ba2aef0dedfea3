package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"shopledger/internal/domain/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("listing products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				encodeProduct(e, p)
			}
		})
	})
}

func encodeProduct(e *jx.Encoder, p catalog.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		if p.DiscountPrice != nil {
			e.Field("discount_price", func(e *jx.Encoder) { money(e, *p.DiscountPrice) })
		}
		e.Field("tax_percent", func(e *jx.Encoder) { e.Raw([]byte(p.TaxPercent.String())) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("available", func(e *jx.Encoder) { e.Bool(p.Available) })
	})
}
