package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"shopledger/internal/domain/installment"
)

const (
	timeFormat = time.RFC3339
	dateFormat = "2006-01-02"
)

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	var status *installment.PlanStatus
	if s := q.Get("status"); s != "" {
		switch ps := installment.PlanStatus(s); ps {
		case installment.PlanActive, installment.PlanCompleted, installment.PlanDefaulted, installment.PlanCancelled:
			status = &ps
		default:
			writeError(w, http.StatusBadRequest, "unknown plan status "+strconv.Quote(s))
			return
		}
	}

	result, err := h.plans.ListPlans(r.Context(), cid, status, page, pageSize)
	if err != nil {
		writePlanError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("plans", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, p := range result.Plans {
						encodePlan(e, p)
					}
				})
			})
			e.Field("total", func(e *jx.Encoder) { e.Int(result.Total) })
			e.Field("page", func(e *jx.Encoder) { e.Int(result.Page) })
			e.Field("page_size", func(e *jx.Encoder) { e.Int(result.PageSize) })
		})
	})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	detail, err := h.plans.GetPlan(r.Context(), r.PathValue("id"), cid)
	if err != nil {
		writePlanError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("plan", func(e *jx.Encoder) { encodePlan(e, detail.Plan) })
			e.Field("installments", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, inst := range detail.Installments {
						encodeInstallment(e, inst)
					}
				})
			})
		})
	})
}

func (h *Handler) listUpcoming(w http.ResponseWriter, r *http.Request) {
	h.listDue(w, r, true)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	h.listDue(w, r, false)
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request, upcoming bool) {
	cid, ok := customerID(w, r)
	if !ok {
		return
	}

	var (
		installments []installment.Installment
		err          error
	)
	if upcoming {
		installments, err = h.plans.ListUpcoming(r.Context(), cid)
	} else {
		installments, err = h.plans.ListOverdue(r.Context(), cid)
	}
	if err != nil {
		writePlanError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("installments", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, inst := range installments {
						encodeInstallment(e, inst)
					}
				})
			})
		})
	})
}

func writePlanError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, installment.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "installment plan not found")
		return
	}
	zctx.From(r.Context()).Error("installment query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func encodePlan(e *jx.Encoder, p installment.Plan) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(p.OrderID) })
		e.Field("principal", func(e *jx.Encoder) { money(e, p.Principal) })
		e.Field("annual_interest_rate", func(e *jx.Encoder) { e.Raw([]byte(p.AnnualInterestRate.String())) })
		e.Field("tenure", func(e *jx.Encoder) { e.Int(p.Tenure) })
		e.Field("periodic_installment", func(e *jx.Encoder) { money(e, p.Periodic) })
		e.Field("total_amount", func(e *jx.Encoder) { money(e, p.TotalAmount) })
		e.Field("total_interest", func(e *jx.Encoder) { money(e, p.TotalInterest) })
		e.Field("start_date", func(e *jx.Encoder) { e.Str(p.StartDate.UTC().Format(dateFormat)) })
		if p.NextDueDate != nil {
			e.Field("next_due_date", func(e *jx.Encoder) { e.Str(p.NextDueDate.UTC().Format(dateFormat)) })
		}
		e.Field("status", func(e *jx.Encoder) { e.Str(string(p.Status)) })
		e.Field("paid_count", func(e *jx.Encoder) { e.Int(p.PaidCount) })
		e.Field("remaining_count", func(e *jx.Encoder) { e.Int(p.RemainingCount) })
	})
}

func encodeInstallment(e *jx.Encoder, inst installment.Installment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(inst.ID) })
		e.Field("plan_id", func(e *jx.Encoder) { e.Str(inst.PlanID) })
		e.Field("sequence_number", func(e *jx.Encoder) { e.Int(inst.SequenceNumber) })
		e.Field("due_date", func(e *jx.Encoder) { e.Str(inst.DueDate.UTC().Format(dateFormat)) })
		e.Field("amount", func(e *jx.Encoder) { money(e, inst.Amount) })
		e.Field("principal_portion", func(e *jx.Encoder) { money(e, inst.PrincipalPortion) })
		e.Field("interest_portion", func(e *jx.Encoder) { money(e, inst.InterestPortion) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(inst.Status)) })
	})
}
