package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/AvinFlower/shadow-link/internal/provisioner/orchestrator"
	apperrors "github.com/AvinFlower/shadow-link/internal/shared/errors"
	"github.com/AvinFlower/shadow-link/pkg/api"
)

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = WriteSuccess(w, api.HealthResponse{
			Status:  "ok",
			Version: s.version,
		})
	}
}

func (s *Server) createConfigurationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateConfigurationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteErrorResponse(w, r, apperrors.NewProvisioningError(
				apperrors.ErrCodeInvalidArgument, "invalid request body", false, err))
			return
		}
		if req.UserID <= 0 {
			WriteErrorResponse(w, r, apperrors.NewProvisioningError(
				apperrors.ErrCodeInvalidArgument, "user_id must be positive", false, nil))
			return
		}

		result, err := s.provisioner.Provision(r.Context(), orchestrator.Request{
			UserID:  req.UserID,
			Country: req.Country,
			Months:  req.Months,
		})
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		_ = WriteSuccess(w, api.CreateConfigurationResponse{
			ClientUUID:     result.ClientUUID,
			Link:           result.Link,
			ServerID:       result.ServerID,
			ExpirationDate: result.ExpirationDate,
			Price:          result.Price,
			Warnings:       result.Warnings,
		})
	}
}

func (s *Server) listConfigurationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
		if err != nil || userID <= 0 {
			WriteErrorResponse(w, r, apperrors.NewProvisioningError(
				apperrors.ErrCodeInvalidArgument, "invalid user id", false, err))
			return
		}

		configs, err := s.configs.ListConfigurationsByUser(r.Context(), userID)
		if err != nil {
			WriteErrorResponse(w, r, apperrors.NewDatabaseError(
				apperrors.ErrCodeDatabase, "listing configurations", true, err))
			return
		}

		infos := make([]api.ConfigurationInfo, 0, len(configs))
		for _, c := range configs {
			infos = append(infos, api.ConfigurationInfo{
				ClientUUID:     c.ClientUUID,
				ServerID:       c.ServerID,
				Link:           c.ConfigLink,
				Months:         c.Months,
				ExpirationDate: c.ExpirationDate,
				CreatedAt:      c.CreatedAt,
			})
		}

		_ = WriteSuccess(w, api.ConfigurationsListResponse{
			Configurations: infos,
			TotalCount:     len(infos),
		})
	}
}

func (s *Server) syncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.SyncConfigurationsRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteErrorResponse(w, r, apperrors.NewReconcileError(
					apperrors.ErrCodeInvalidArgument, "invalid request body", false, err))
				return
			}
		}

		if req.UserID > 0 {
			summary, err := s.syncer.SyncUser(r.Context(), req.UserID)
			if err != nil {
				WriteErrorResponse(w, r, err)
				return
			}
			_ = WriteSuccess(w, api.SyncConfigurationsResponse{
				Users:    1,
				Inserted: summary.Inserted,
				Updated:  summary.Updated,
				Deleted:  summary.Deleted,
			})
			return
		}

		summary, err := s.syncer.SyncAll(r.Context())
		if err != nil {
			WriteErrorResponse(w, r, err)
			return
		}

		failed := make([]int64, 0, len(summary.Failures))
		for userID := range summary.Failures {
			failed = append(failed, userID)
		}
		_ = WriteSuccess(w, api.SyncConfigurationsResponse{
			Users:    summary.Users,
			Inserted: summary.Inserted,
			Updated:  summary.Updated,
			Deleted:  summary.Deleted,
			Failures: failed,
		})
	}
}
