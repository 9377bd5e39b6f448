package transport

import (
	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/internal/leads/repository"
)

func ToLeadResponse(l domain.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                  l.ID,
		ClientID:            l.ClientID,
		CampaignID:          l.CampaignID,
		FirstName:           l.FirstName,
		LastName:            l.LastName,
		Phone:               l.Phone,
		Email:               l.Email,
		Stage:               string(l.Stage),
		AutomationStatus:    string(l.AutomationStatus),
		Status:              l.Status,
		ClosedAt:            l.ClosedAt,
		CloseNotes:          l.CloseNotes,
		AssignedTo:          l.AssignedTo,
		AssignedAt:          l.AssignedAt,
		IntentionStatus:     l.IntentionStatus,
		IntentionDecidedAt:  l.IntentionDecidedAt,
		NextActionAt:        l.NextActionAt,
		AutomationAttempts:  l.AutomationAttempts,
		AutomationError:     l.AutomationError,
		LastAutomationRunAt: l.LastAutomationRunAt,
		Version:             l.Version,
		CreatedAt:           l.CreatedAt,
		UpdatedAt:           l.UpdatedAt,
	}
	if l.CloseReason != nil {
		reason := string(*l.CloseReason)
		resp.CloseReason = &reason
	}
	return resp
}

func ToLeadListResponse(leads []domain.Lead) LeadListResponse {
	items := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, ToLeadResponse(l))
	}
	return LeadListResponse{Items: items, Total: len(items)}
}

func ToTimelineResponse(items []repository.TimelineEvent) TimelineResponse {
	out := make([]TimelineEventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, TimelineEventResponse{
			ID:        e.ID,
			ActorType: e.ActorType,
			ActorName: e.ActorName,
			EventType: e.EventType,
			Title:     e.Title,
			Summary:   e.Summary,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	return TimelineResponse{Items: out}
}

func ToDispatchAttemptResponse(a dispatch.Attempt) DispatchAttemptResponse {
	return DispatchAttemptResponse{
		ID:             a.ID,
		LeadID:         a.LeadID,
		CampaignID:     a.CampaignID,
		Type:           string(a.Type),
		Trigger:        string(a.Trigger),
		DestinationID:  a.DestinationID,
		RequestPayload: a.RequestPayload,
		RequestURL:     a.RequestURL,
		RequestMethod:  a.RequestMethod,
		ResponseStatus: a.ResponseStatus,
		ResponseBody:   a.ResponseBody,
		ErrorMessage:   a.ErrorMessage,
		Status:         string(a.Status),
		AttemptNo:      a.AttemptNo,
		NextRetryAt:    a.NextRetryAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func ToDispatchAttemptListResponse(attempts []dispatch.Attempt) DispatchAttemptListResponse {
	items := make([]DispatchAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		items = append(items, ToDispatchAttemptResponse(a))
	}
	return DispatchAttemptListResponse{Items: items}
}
