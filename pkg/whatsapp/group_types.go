package whatsapp

import (
	"sort"

	"go.mau.fi/whatsmeow/types"
)

func participantJID(p types.GroupParticipant) string {
	// LID-addressed groups carry the phone number separately
	if p.JID.Server == types.HiddenUserServer && !p.PhoneNumber.IsEmpty() {
		return p.PhoneNumber.String()
	}
	return p.JID.String()
}

func convertGroupInfo(group *types.GroupInfo) GroupInfo {
	info := GroupInfo{
		ID:           group.JID.String(),
		Subject:      group.Name,
		Description:  group.Topic,
		CreatedAt:    group.GroupCreated,
		Announce:     group.IsAnnounce,
		Locked:       group.IsLocked,
		Participants: make([]GroupParticipant, 0, len(group.Participants)),
	}
	if !group.OwnerJID.IsEmpty() {
		info.Owner = group.OwnerJID.String()
	}
	for _, p := range group.Participants {
		info.Participants = append(info.Participants, GroupParticipant{
			JID:          participantJID(p),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		})
	}
	return info
}

func convertGroups(groups []*types.GroupInfo) []GroupInfo {
	out := make([]GroupInfo, 0, len(groups))
	for _, g := range groups {
		if g == nil {
			continue
		}
		out = append(out, convertGroupInfo(g))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Subject < out[j].Subject
	})
	return out
}

func convertParticipantResults(participants []types.GroupParticipant) []ParticipantResult {
	out := make([]ParticipantResult, 0, len(participants))
	for _, p := range participants {
		out = append(out, ParticipantResult{JID: participantJID(p), Error: p.Error})
	}
	return out
}
