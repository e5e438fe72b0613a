// Package api exposes the progression engine over a JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	engineerrors "github.com/louisbranch/questline/internal/errors"
	"github.com/louisbranch/questline/internal/services/engine/graph"
	"github.com/louisbranch/questline/internal/services/engine/policy"
	"github.com/louisbranch/questline/internal/services/engine/progression"
)

type roleKey struct{}

// Handler serves the engine API.
type Handler struct {
	service *progression.Service
	logf    func(format string, args ...any)
}

// New builds the engine API handler.
func New(service *progression.Service, logf func(format string, args ...any)) *Handler {
	if logf == nil {
		logf = log.Printf
	}
	return &Handler{service: service, logf: logf}
}

// Router wires every endpoint onto a mux. The caller's role is resolved once
// per request and carried on the context for the permission checks.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/assignments", h.assign)
	mux.HandleFunc("POST /v1/missions/start", h.start)
	mux.HandleFunc("POST /v1/missions/submit", h.submit)
	mux.HandleFunc("POST /v1/missions/approve", h.approve)
	mux.HandleFunc("POST /v1/missions/reject", h.reject)
	mux.HandleFunc("POST /v1/missions/checkin", h.checkIn)
	mux.HandleFunc("GET /v1/progress", h.progress)
	mux.HandleFunc("GET /v1/campaigns/validate", h.validateCampaign)
	mux.HandleFunc("POST /v1/campaigns/publish", h.publish)
	mux.HandleFunc("POST /v1/simulation/complete", h.quickComplete)
	mux.HandleFunc("POST /v1/simulation/reset", h.resetSimulation)
	mux.HandleFunc("POST /v1/admin/reset", h.resetProgress)
	mux.HandleFunc("POST /v1/admin/unlock-all", h.unlockAll)
	mux.HandleFunc("POST /v1/admin/complete-all", h.completeAll)
	mux.HandleFunc("POST /v1/admin/remove", h.removeParticipant)

	return withRole(mux)
}

// withRole resolves the caller's role from the request once and stores it on
// the context.
func withRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := policy.Role(r.Header.Get("X-Questline-Role"))
		if role == "" {
			role = policy.RoleParticipant
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
	})
}

func roleFrom(ctx context.Context) policy.Role {
	if role, ok := ctx.Value(roleKey{}).(policy.Role); ok {
		return role
	}
	return policy.Role("")
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, action policy.Action) bool {
	if err := policy.Check(roleFrom(r.Context()), action); err != nil {
		h.writeError(w, err)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := engineerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logf("engine api error: %v", err)
	}
	body := map[string]any{
		"code":    string(engineerrors.GetCode(err)),
		"message": err.Error(),
	}
	if metadata := engineerrors.GetMetadata(err); len(metadata) > 0 {
		body["metadata"] = metadata
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"code":    "MALFORMED_BODY",
			"message": "request body is not valid JSON",
		})
		return false
	}
	return true
}

type assignRequest struct {
	ParticipantID string `json:"participant_id"`
	CampaignID    string `json:"campaign_id"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionAssign) {
		return
	}
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	assignment, err := h.service.Assign(r.Context(), req.ParticipantID, req.CampaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"participant_id":   assignment.ParticipantID,
		"root_campaign_id": assignment.RootCampaignID,
		"campaign_id":      assignment.CampaignID,
		"assigned_at":      assignment.AssignedAt,
	})
}

type missionRequest struct {
	ParticipantID string `json:"participant_id"`
	MissionID     string `json:"mission_id"`
	Payload       string `json:"payload"`
	Comment       string `json:"comment"`
}

func actionResponse(result progression.ActionResult) map[string]any {
	body := map[string]any{"status": string(result.Status)}
	if len(result.Unlocked) > 0 {
		body["unlocked"] = result.Unlocked
	}
	if result.Promotion.Promoted {
		body["new_rank"] = result.Promotion.NewRank
	}
	if len(result.Promotion.UnmetRequirements) > 0 {
		body["unmet_requirements"] = result.Promotion.UnmetRequirements
	}
	return body
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionSubmit) {
		return
	}
	var req missionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.Start(r.Context(), req.ParticipantID, req.MissionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionSubmit) {
		return
	}
	var req missionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.Submit(r.Context(), req.ParticipantID, req.MissionID, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionApprove) {
		return
	}
	var req missionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.Approve(r.Context(), req.ParticipantID, req.MissionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionReject) {
		return
	}
	var req missionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.Reject(r.Context(), req.ParticipantID, req.MissionID, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionCheckIn) {
		return
	}
	var req missionRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.CheckIn(r.Context(), req.ParticipantID, req.MissionID, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionViewProgress) {
		return
	}
	view, err := h.service.Progress(r.Context(), r.URL.Query().Get("participant_id"), r.URL.Query().Get("campaign_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	missions := make([]map[string]any, 0, len(view.Missions))
	for _, progress := range view.Missions {
		entry := map[string]any{
			"mission_id": progress.Mission.ID,
			"name":       progress.Mission.Name,
			"status":     string(progress.Status),
		}
		if progress.Record != nil && progress.Record.ReviewerComment != "" {
			entry["reviewer_comment"] = progress.Record.ReviewerComment
		}
		missions = append(missions, entry)
	}
	body := map[string]any{
		"participant_id":  view.Participant.ID,
		"campaign_id":     view.Campaign.ID,
		"experience":      view.Participant.Experience,
		"currency":        view.Participant.Currency,
		"rank_level":      view.Participant.RankLevel,
		"completed_count": view.CompletedCount,
		"missions":        missions,
	}
	if view.NextRank != nil {
		body["next_rank_level"] = view.NextRank.Level
		body["unmet_requirements"] = view.UnmetRequirements
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) validateCampaign(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionValidateGraph) {
		return
	}
	report, err := h.service.ValidateCampaign(r.Context(), r.URL.Query().Get("campaign_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse(report))
}

func reportResponse(report graph.Report) map[string]any {
	issues := make([]map[string]any, 0, len(report.Issues))
	for _, issue := range report.Issues {
		issues = append(issues, map[string]any{
			"severity":    string(issue.Severity),
			"code":        issue.Code,
			"mission_ids": issue.MissionIDs,
			"message":     issue.Message,
			"remediation": issue.Remediation,
		})
	}
	return map[string]any{
		"is_valid":     report.IsValid,
		"health_score": report.HealthScore,
		"issues":       issues,
	}
}

type campaignRequest struct {
	CampaignID string `json:"campaign_id"`
	MissionID  string `json:"mission_id"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionPublish) {
		return
	}
	var req campaignRequest
	if !decode(w, r, &req) {
		return
	}
	report, err := h.service.Publish(r.Context(), req.CampaignID)
	if err != nil {
		if engineerrors.IsCode(err, engineerrors.CodeCampaignUnpublishable) {
			body := reportResponse(report)
			body["code"] = string(engineerrors.CodeCampaignUnpublishable)
			writeJSON(w, http.StatusConflict, body)
			return
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse(report))
}

func (h *Handler) quickComplete(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionSimulate) {
		return
	}
	var req campaignRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.QuickComplete(r.Context(), req.CampaignID, req.MissionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(result))
}

func (h *Handler) resetSimulation(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionSimulate) {
		return
	}
	var req campaignRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.ResetSimulation(r.Context(), req.CampaignID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

type adminRequest struct {
	ParticipantID string `json:"participant_id"`
	CampaignID    string `json:"campaign_id"`
	Confirm       bool   `json:"confirm"`
}

func (h *Handler) resetProgress(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionReset) {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.Reset(r.Context(), req.ParticipantID, req.CampaignID, req.Confirm); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (h *Handler) unlockAll(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionBulkProgress) {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	unlocked, err := h.service.UnlockAll(r.Context(), req.ParticipantID, req.CampaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": unlocked})
}

func (h *Handler) completeAll(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionBulkProgress) {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	completed, err := h.service.CompleteAll(r.Context(), req.ParticipantID, req.CampaignID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": completed})
}

func (h *Handler) removeParticipant(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, policy.ActionRemove) {
		return
	}
	var req adminRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.RemoveParticipant(r.Context(), req.ParticipantID, req.CampaignID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}
