package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"dispatchline/internal/domain"
	"dispatchline/internal/engine"
	"dispatchline/internal/masterdata"
	"dispatchline/internal/schedule"
)

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-contract",
		Method:        http.MethodPost,
		Path:          "/contracts",
		Summary:       "Create contract",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateContractRequest `json:"body"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateContract(ctx, engine.ContractInput{
			ID:           input.Body.ID,
			SiteID:       input.Body.SiteID,
			Kind:         input.Body.Kind,
			MonthlyQuota: input.Body.MonthlyQuota,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "List contracts",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Contract `json:"body"`
	}, error) {
		items, err := e.ListContracts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Contract{}
		}
		return &struct {
			Body []domain.Contract `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get contract with per-month consumption",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
	}) (*struct {
		Body domain.Contract `json:"body"`
	}, error) {
		c, err := e.GetContract(ctx, input.ContractID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Contract `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quota",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}/quota",
		Summary:     "Quota consumption for a business month",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ContractID string `path:"contract_id"`
		Month      string `query:"month" doc:"YYYY-MM; defaults to the current business month"`
	}) (*struct {
		Body schedule.QuotaStatus `json:"body"`
	}, error) {
		q, err := e.GetQuota(ctx, input.ContractID, input.Month)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body schedule.QuotaStatus `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-quota",
		Method:      http.MethodPost,
		Path:        "/quota/reconcile",
		Summary:     "Back-fill quota consumption for completed orders",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ReconcileRequest `json:"body"`
	}) (*struct {
		Body ReconcileResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		added, err := e.ReconcileQuota(ctx, input.Body.Month, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReconcileResponse `json:"body"`
		}{Body: ReconcileResponse{Month: input.Body.Month, Added: added}}, nil
	})
}

func registerReference(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/workers",
		Summary:     "List workers",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActiveOnly bool `query:"active_only"`
	}) (*struct {
		Body []domain.Worker `json:"body"`
	}, error) {
		items, err := e.ListWorkers(ctx, input.ActiveOnly)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Worker{}
		}
		return &struct {
			Body []domain.Worker `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sites",
		Method:      http.MethodGet,
		Path:        "/sites",
		Summary:     "List sites",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Site `json:"body"`
	}, error) {
		items, err := e.ListSites(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Site{}
		}
		return &struct {
			Body []domain.Site `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-masterdata",
		Method:      http.MethodPost,
		Path:        "/masterdata",
		Summary:     "Upsert workers and sites",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body MasterDataRequest `json:"body"`
	}) (*struct {
		Body ImportResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		imp, err := masterdata.NormalizeImport(masterdata.Import{Workers: input.Body.Workers, Sites: input.Body.Sites})
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.ImportMasterData(ctx, imp, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ImportResponse `json:"body"`
		}{Body: ImportResponse{Workers: len(imp.Workers), Sites: len(imp.Sites)}}, nil
	})
}
